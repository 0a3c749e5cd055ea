// Package signals installs the shell's terminal and SIGCHLD handlers and
// translates delivered signals into job table mutations.
//
// Grounded on canonical-pebble's internal/overlord/servstate/reaper.go
// (signal.Notify(unix.SIGCHLD) feeding a non-blocking unix.Wait4 drain loop)
// for the reaper shape, and on kkloberdanz-teleport-challenge's group-kill
// pattern (syscall.Kill(-pid, sig)) for forwarding terminal signals to a
// job's process group. Unlike a real POSIX signal handler, a Go handler
// cannot run with SIGCHLD literally blocked around the launcher's
// fork-and-register window; job.Table.Lock/Unlock (held by the launcher
// across that window, and by Router.reapOnce while it drains) is this
// repo's substitute, closing the same insert/reap race a masked SIGCHLD
// would close.
package signals

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/arthurfmn/tsh/internal/job"
)

// Router owns the signal channel and the job table it mutates in response
// to terminal and SIGCHLD signals.
type Router struct {
	Table *job.Table
	Out   *os.File // where background termination/signal notices are written

	sigCh chan os.Signal
	done  chan struct{}
}

// New returns a Router that has not yet installed any handler; call Start.
func New(tbl *job.Table, out *os.File) *Router {
	return &Router{
		Table: tbl,
		Out:   out,
		sigCh: make(chan os.Signal, 8),
		done:  make(chan struct{}),
	}
}

// Start installs handlers for SIGINT, SIGTSTP, SIGQUIT, and SIGCHLD and
// begins routing them from a background goroutine. It returns immediately;
// call Stop to uninstall the handlers and end the goroutine.
func (r *Router) Start() {
	signal.Notify(r.sigCh, syscall.SIGINT, syscall.SIGTSTP, syscall.SIGQUIT, unix.SIGCHLD)
	go r.run()
}

// Stop uninstalls the handlers and ends the routing goroutine.
func (r *Router) Stop() {
	signal.Stop(r.sigCh)
	close(r.done)
}

func (r *Router) run() {
	for {
		select {
		case sig := <-r.sigCh:
			r.handle(sig)
		case <-r.done:
			return
		}
	}
}

func (r *Router) handle(sig os.Signal) {
	switch sig {
	case syscall.SIGINT:
		r.forwardToForeground(syscall.SIGINT)
	case syscall.SIGTSTP:
		r.handleSIGTSTP()
	case unix.SIGCHLD:
		r.reapOnce()
	case syscall.SIGQUIT:
		fmt.Fprintln(r.Out, "Terminating after receipt of SIGQUIT signal")
		os.Exit(0)
	}
}

// forwardToForeground sends sig to the foreground job's process group, if
// one exists. The shell itself never exits because of SIGINT.
func (r *Router) forwardToForeground(sig syscall.Signal) {
	pid := r.Table.FGPID()
	if pid == 0 {
		return
	}
	_ = syscall.Kill(-pid, sig)
}

// handleSIGTSTP forwards SIGTSTP to the foreground job's group and
// optimistically marks it Stopped; the SIGCHLD that follows confirms the
// transition by observing WIFSTOPPED, but the REPL's own jobs/fg/bg
// bookkeeping should not have to wait for that confirmation to see Stopped.
func (r *Router) handleSIGTSTP() {
	pid := r.Table.FGPID()
	if pid == 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGTSTP)
	r.Table.LockedSetState(pid, job.ST)
}

// reapOnce drains every reapable child with a non-blocking, stop-reporting
// wait, mutating the job table for each one. It loops until Wait4 reports
// no more children have changed state or there are no children left.
func (r *Router) reapOnce() {
	r.Table.Lock()
	defer r.Table.Unlock()

	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
		if err != nil || pid <= 0 {
			return
		}

		j, ok := r.Table.FindByPID(pid)
		if !ok {
			continue
		}

		switch {
		case ws.Stopped():
			r.Table.SetState(pid, job.ST)

		case ws.Exited():
			if j.State != job.FG {
				fmt.Fprintf(r.Out, "O processo %%%d (pid %d) terminou com valor %d\n", j.JID, j.PID, ws.ExitStatus())
			}
			r.Table.Delete(pid)

		case ws.Signaled():
			if j.State != job.FG {
				fmt.Fprintf(r.Out, "O processo %%%d (pid %d) foi terminado com o sinal %d\n", j.JID, j.PID, int(ws.Signal()))
			}
			r.Table.Delete(pid)
		}
	}
}
