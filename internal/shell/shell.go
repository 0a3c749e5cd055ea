// Package shell implements the REPL: it reads command lines, dispatches
// built-ins inline, and hands everything else to the launcher.
//
// Grounded on the read-dispatch-report shape of a one-handler-per-command
// package, adapted from a gRPC request handler to a REPL built-in
// dispatcher, with a busy-poll foreground wait for job-state transitions.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/arthurfmn/tsh/internal/job"
	"github.com/arthurfmn/tsh/internal/launcher"
	"github.com/arthurfmn/tsh/internal/parser"
	"github.com/arthurfmn/tsh/internal/resources"
)

// prompt is the literal prompt text printed before each read when prompting
// is enabled.
const prompt = "tsh> "

// foregroundPollInterval is how often waitForeground rechecks the job
// table: a short busy-poll rather than a blocking wait.
const foregroundPollInterval = 500 * time.Microsecond

// Shell is the REPL: it owns the job table, the launcher, and the streams
// it reads from and writes to.
type Shell struct {
	Table     *job.Table
	Launcher  *launcher.Launcher
	Resources *resources.Manager // may be nil to disable the limit built-in
	In        *bufio.Scanner
	Out       *os.File
	Prompt    bool // print the literal "tsh> " before each read
}

// New wires a Shell reading from in and writing to out.
func New(tbl *job.Table, lnc *launcher.Launcher, res *resources.Manager, in *os.File, out *os.File, promptEnabled bool) *Shell {
	return &Shell{
		Table:     tbl,
		Launcher:  lnc,
		Resources: res,
		In:        bufio.NewScanner(in),
		Out:       out,
		Prompt:    promptEnabled,
	}
}

// Run reads lines until end-of-stream, dispatching each one. It returns the
// process exit code: 0 for a clean quit or EOF.
func (s *Shell) Run() int {
	for {
		if s.Prompt {
			fmt.Fprint(s.Out, prompt)
		}

		if !s.In.Scan() {
			return 0
		}

		if code, exit := s.dispatch(s.In.Text()); exit {
			return code
		}
	}
}

// dispatch parses one line and either runs a built-in inline or launches it
// as a pipeline. It returns the shell's exit code and whether to stop the
// REPL loop (only "quit" and end-of-stream do).
func (s *Shell) dispatch(line string) (int, bool) {
	p := parser.Parse(line)
	if p == nil {
		return 0, false
	}

	argv := p.Stages[0].Argv
	if len(argv) == 0 {
		// A line that is only a redirection, a bare "&", or a leading "|"
		// parses to a stage with no command to run.
		return 0, false
	}

	switch argv[0] {
	case "quit":
		return 0, true
	case "jobs":
		s.jobs()
		return 0, false
	case "fg":
		s.bgfg(argv, true)
		return 0, false
	case "bg":
		s.bgfg(argv, false)
		return 0, false
	case "limit":
		s.limit(argv)
		return 0, false
	}

	res, err := s.Launcher.Launch(p, line)
	if err != nil {
		return 0, false
	}

	if !p.Background {
		s.waitForeground(res.Job.PID)
	}

	return 0, false
}

// waitForeground busy-polls until the job at pid is no longer in state FG:
// either the signal router deleted it (normal exit or signaled termination)
// or transitioned it to ST (stopped by SIGTSTP/SIGSTOP).
func (s *Shell) waitForeground(pid int) {
	for {
		j, ok := s.Table.LockedFindByPID(pid)
		if !ok || j.State != job.FG {
			return
		}
		time.Sleep(foregroundPollInterval)
	}
}

func (s *Shell) jobs() {
	for _, j := range s.Table.List() {
		fmt.Fprintln(s.Out, job.Format(j))
	}
}

var (
	errMissingJobSpec = errors.New("Numero de processo nao informado")
)

func errUnknownJobSpec(token string) error {
	return fmt.Errorf("Numero de processo nao reconhecido: %s", token)
}

// resolveJobSpec resolves argv[1] of a fg/bg/limit command: a "%jid" token
// is looked up by JID, a bare token is parsed as a pid. A token that fails
// to parse and a token that parses but names no live job report the same
// "unknown" diagnostic; only a wholly absent token is "missing".
func (s *Shell) resolveJobSpec(token string) (job.Job, error) {
	if token == "" {
		return job.Job{}, errMissingJobSpec
	}

	var (
		j  job.Job
		ok bool
	)

	if rest, found := strings.CutPrefix(token, "%"); found {
		jid, err := strconv.Atoi(rest)
		if err != nil {
			return job.Job{}, errUnknownJobSpec(token)
		}
		j, ok = s.Table.LockedFindByJID(jid)
	} else {
		pid, err := strconv.Atoi(token)
		if err != nil {
			return job.Job{}, errUnknownJobSpec(token)
		}
		j, ok = s.Table.LockedFindByPID(pid)
	}

	if !ok {
		return job.Job{}, errUnknownJobSpec(token)
	}

	return j, nil
}

// bgfg implements the fg and bg built-ins: resolve the spec, send SIGCONT
// to the target's process group, then transition its state. fg additionally
// blocks until the job leaves the foreground.
func (s *Shell) bgfg(argv []string, foreground bool) {
	token := ""
	if len(argv) > 1 {
		token = argv[1]
	}

	j, err := s.resolveJobSpec(token)
	if err != nil {
		fmt.Fprintln(s.Out, err.Error())
		return
	}

	_ = syscall.Kill(-j.PID, syscall.SIGCONT)

	if foreground {
		s.Table.LockedSetState(j.PID, job.FG)
		s.waitForeground(j.PID)
		return
	}

	s.Table.LockedSetState(j.PID, job.BG)
}

// limit %<jid-or-pid> cpu=<fraction> mem=<bytes> writes cpu.max/memory.max
// into the job's leaf cgroup for as long as it keeps running. It is a
// no-op, with a diagnostic, when resource controls are unavailable.
func (s *Shell) limit(argv []string) {
	if s.Resources == nil || !resources.Available() {
		fmt.Fprintln(s.Out, "Resource controls are unavailable on this system")
		return
	}

	token := ""
	if len(argv) > 1 {
		token = argv[1]
	}

	j, err := s.resolveJobSpec(token)
	if err != nil {
		fmt.Fprintln(s.Out, err.Error())
		return
	}

	var cpuFrac float64
	var memBytes int64

	var opts []string
	if len(argv) > 2 {
		opts = argv[2:]
	}

	for _, kv := range opts {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch key {
		case "cpu":
			cpuFrac, _ = strconv.ParseFloat(val, 64)
		case "mem":
			memBytes, _ = strconv.ParseInt(val, 10, 64)
		}
	}

	// Moves the pid into a fresh leaf cgroup rather than reusing the one the
	// launcher created at job start; cgroup v2 allows a pid in only one
	// cgroup, so this migrates it rather than layering limits.
	jobCG, err := s.Resources.NewJob(j.PID)
	if err != nil {
		fmt.Fprintf(s.Out, "Erro ao aplicar limite de recursos: %s\n", err)
		return
	}

	if err := jobCG.Limit(cpuFrac, memBytes); err != nil {
		fmt.Fprintf(s.Out, "Erro ao aplicar limite de recursos: %s\n", err)
	}
}
