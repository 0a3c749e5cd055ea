// Package launcher implements the process launcher: it forks a pipeline of
// one or more stages, places every stage in the pipeline leader's process
// group, wires up the pipes and file redirections the parser planned, and
// registers the leader in the job table.
//
// This is grounded on pkg/job/job.go and pkg/worker/worker.go's
// StartJob/StartJobChild (fork+register pattern, os/exec based process
// creation) and kkloberdanz-teleport-challenge/job/local_job.go (SysProcAttr
// process-group placement, syscall.Kill(-pid, ...) group signaling). Unlike
// both of those, this launcher forks more than one process per call (one
// os/exec.Cmd per pipeline stage) because a shell pipeline, unlike a single
// job-worker job, may be `a | b | c`.
package launcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"github.com/arthurfmn/tsh/internal/job"
	"github.com/arthurfmn/tsh/internal/parser"
	"github.com/arthurfmn/tsh/internal/resources"
)

// Launcher forks pipelines and registers their leaders in a job table.
type Launcher struct {
	Table     *job.Table
	Resources *resources.Manager // may be nil to disable resource controls entirely
	Verbose   bool
	Out       *os.File // where background-launch and verbose notices go
}

// Result is returned by Launch for a pipeline that was successfully
// started and registered.
type Result struct {
	Job *job.Job
}

// Launch forks every stage of p, wires redirections and inter-stage pipes,
// places all stages in one process group equal to the leader's pid, and
// registers the leader in the job table under FG or BG per p.Background.
// Diagnostics for open/exec/fork failures are written to l.Out; every stage
// already started of a pipeline that fails partway through is sent SIGKILL
// before Launch returns, and is left for the signal router's reaper to
// collect. The table lock is held for the whole call, so the reaper cannot
// collect the leader before it is registered.
func (l *Launcher) Launch(p *parser.Pipeline, cmdline string) (*Result, error) {
	cmds := make([]*exec.Cmd, 0, len(p.Stages))
	opened := make([]*os.File, 0, len(p.Stages)*2)

	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()

	l.Table.Lock()
	defer l.Table.Unlock()

	var prevRead *os.File
	var leaderPID int

	for i, stage := range p.Stages {
		if len(stage.Argv) == 0 {
			l.killStarted(cmds)
			return nil, fmt.Errorf("empty pipeline stage")
		}

		cmd := exec.Command(stage.Argv[0], stage.Argv[1:]...)
		cmd.Env = os.Environ()

		stdin, stdinOpened := l.resolveStdin(stage, prevRead)
		if stdinOpened != nil {
			opened = append(opened, stdinOpened)
		}
		cmd.Stdin = stdin

		last := i == len(p.Stages)-1

		// The redir chain the parser planned for fd 1, opened once regardless
		// of pipeline position: a non-last stage's actual stdout still comes
		// from the inter-stage pipe (the pipe always wins: the wiring loop
		// overwrites fd 1 with the pipe write end after a file redirect has
		// already been planned for it), but fd 2's "&>" Dup needs the file
		// fd 1 was *planned* to use, not whatever fd 1 actually ended up as.
		// Every superseded target in the chain (e.g. "> a > b") is still
		// opened, so an earlier overridden file is created and truncated
		// even though only the final one is wired to the command.
		explicitStdout, explicitStdoutOpened := l.resolveWriteChain(stage, 1, nil)
		if explicitStdoutOpened != nil {
			opened = append(opened, explicitStdoutOpened)
		}

		var nextRead, myWrite *os.File
		switch {
		case !last:
			r, w, perr := os.Pipe()
			if perr != nil {
				l.killStarted(cmds)
				return nil, fmt.Errorf("create pipe: %w", perr)
			}
			nextRead, myWrite = r, w
			cmd.Stdout = w
		case explicitStdout != nil:
			cmd.Stdout = explicitStdout
		default:
			cmd.Stdout = os.Stdout
		}

		stderr, stderrOpened := l.resolveWriteChain(stage, 2, explicitStdout)
		if stderrOpened != nil {
			opened = append(opened, stderrOpened)
		}
		if stderr == nil {
			stderr = os.Stderr
		}
		cmd.Stderr = stderr

		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if i > 0 {
			cmd.SysProcAttr.Pgid = leaderPID
		}

		if err := cmd.Start(); err != nil {
			fmt.Fprintf(l.Out, "Erro ao executar %s: %s\n", stage.Argv[0], errnoMessage(err))
			if myWrite != nil {
				_ = myWrite.Close()
			}
			l.killStarted(cmds)
			return nil, err
		}

		if i == 0 {
			leaderPID = cmd.Process.Pid
		}

		if prevRead != nil {
			_ = prevRead.Close()
		}
		if myWrite != nil {
			_ = myWrite.Close()
		}
		prevRead = nextRead

		cmds = append(cmds, cmd)
	}

	state := job.BG
	if !p.Background {
		state = job.FG
	}

	j, err := l.Table.Add(leaderPID, state, cmdline)
	if err != nil {
		fmt.Fprintln(l.Out, err.Error())
		l.killStarted(cmds)
		return nil, err
	}

	if l.Resources != nil {
		if _, rerr := l.Resources.NewJob(leaderPID); rerr != nil {
			slog.Warn("resource controls unavailable for job", "jid", j.JID, "err", rerr)
		}
	}

	if l.Verbose {
		fmt.Fprintf(l.Out, "Added job [%d] %d %s\n", j.JID, j.PID, j.CmdLine)
	}

	if p.Background {
		fmt.Fprintf(l.Out, "[%d] (%d)\n", j.JID, j.PID)
	}

	return &Result{Job: j}, nil
}

// killStarted sends SIGKILL to every stage already forked so a partially
// built pipeline doesn't run to completion after a later stage fails to
// start: "kill what's already running" rather than letting the surviving
// stages continue; the SIGCHLD reaper still needs to drain them (they were
// never registered in the job table, so the reaper finds no matching job
// and just reaps silently).
func (l *Launcher) killStarted(cmds []*exec.Cmd) {
	for _, cmd := range cmds {
		if cmd.Process == nil {
			continue
		}
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

// resolveStdin opens, in order, every read redirection the parser recorded
// for fd 0, closing each one superseded by a later "<" on the same stage so
// that an earlier target is still opened even though only the last one
// feeds the command. The pipe end from a previous pipeline stage always
// wins over any redirection recorded for this stage.
func (l *Launcher) resolveStdin(stage parser.Stage, prevRead *os.File) (*os.File, *os.File) {
	if prevRead != nil {
		return prevRead, nil
	}

	var current *os.File
	for _, redir := range stage.Redirs {
		if redir.FD != 0 {
			continue
		}

		f, err := os.Open(redir.Path)
		if err != nil {
			fmt.Fprintf(l.Out, "Erro ao abrir o arquivo %s para leitura: %s\n", redir.Path, errnoMessage(err))
			continue
		}
		if current != nil {
			_ = current.Close()
		}
		current = f
	}

	if current == nil {
		return os.Stdin, nil
	}
	return current, current
}

// resolveWriteChain opens, in order, every write redirection the parser
// recorded for fd, closing each file superseded by a later redirection for
// the same fd so that an earlier overridden target is still created (and
// truncated or appended to) even though only the final target is actually
// wired to the command. A RedirDup entry (fd 2 under "&>") aliases fd to
// aliasFile instead of opening anything; aliasFile is the file already
// opened for fd 1 by a prior call to resolveWriteChain on the same stage.
func (l *Launcher) resolveWriteChain(stage parser.Stage, fd int, aliasFile *os.File) (*os.File, *os.File) {
	var current *os.File
	ownsCurrent := false

	for _, redir := range stage.Redirs {
		if redir.FD != fd {
			continue
		}

		if redir.Kind == parser.RedirDup {
			if ownsCurrent {
				_ = current.Close()
			}
			current, ownsCurrent = aliasFile, false
			continue
		}

		f, err := l.openWriteRedir(redir)
		if err != nil {
			fmt.Fprintf(l.Out, "Erro ao abrir o arquivo %s para escrita: %s\n", redir.Path, errnoMessage(err))
			continue
		}
		if ownsCurrent {
			_ = current.Close()
		}
		current, ownsCurrent = f, true
	}

	if current == nil {
		return nil, nil
	}
	if !ownsCurrent {
		return current, nil
	}
	return current, current
}

// createFilePerm grants read/write permission for user and group.
const createFilePerm = 0o660

func (l *Launcher) openWriteRedir(redir parser.Redir) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if redir.Kind == parser.RedirWriteAppend {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	return os.OpenFile(redir.Path, flags, createFilePerm)
}

// errnoMessage extracts the bare syscall error string (e.g. "no such file
// or directory") out of a wrapped *fs.PathError, mirroring C's
// strerror(errno) instead of Go's "open path: ..." wrapping.
func errnoMessage(err error) string {
	var pErr *fs.PathError
	if errors.As(err, &pErr) {
		return pErr.Err.Error()
	}
	return err.Error()
}
