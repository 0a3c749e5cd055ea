package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/arthurfmn/tsh/internal/config"
	"github.com/arthurfmn/tsh/internal/job"
	"github.com/arthurfmn/tsh/internal/launcher"
	"github.com/arthurfmn/tsh/internal/resources"
	"github.com/arthurfmn/tsh/internal/shell"
	"github.com/arthurfmn/tsh/internal/signals"
)

func main() {
	os.Exit(run())
}

// run wires the root command and reports the process exit code. -h and any
// unrecognized flag exit 1; everything else runs the shell and returns its
// own exit code (0 for quit or end-of-stream).
func run() int {
	// Test harnesses capture a single stream; at startup fd 1 is duplicated
	// onto fd 2 so diagnostics written to stderr land wherever stdout goes.
	_ = unix.Dup2(int(os.Stdout.Fd()), int(os.Stderr.Fd()))

	cfg := &config.Config{}
	exitCode := 0

	root := &cobra.Command{
		Use:           "tsh",
		Short:         "tsh is a small interactive job-control shell",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = runShell(cfg)
			return nil
		},
	}
	cfg.Flags(root)

	if _, err := root.ExecuteC(); err != nil {
		fmt.Fprintln(os.Stdout, root.UsageString())
		return 1
	}

	if help, _ := root.Flags().GetBool("help"); help {
		return 1
	}

	return exitCode
}

func runShell(cfg *config.Config) int {
	tbl := job.New()

	res := resources.New()
	if !resources.Available() {
		slog.Warn("resource controls unavailable on this host")
		res = nil
	}

	lnc := &launcher.Launcher{
		Table:     tbl,
		Resources: res,
		Verbose:   cfg.Verbose,
		Out:       os.Stdout,
	}

	router := signals.New(tbl, os.Stdout)
	router.Start()
	defer router.Stop()

	sh := shell.New(tbl, lnc, res, os.Stdin, os.Stdout, !cfg.NoPrompt)
	return sh.Run()
}
