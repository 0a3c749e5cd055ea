// Package job implements the shell's job table: the fixed-capacity registry
// of live child pipelines, their process group leaders, and the state
// transitions between foreground, background, and stopped.
package job

import (
	"fmt"
	"sync"
)

// MaxJobs is the maximum number of concurrently live jobs.
const MaxJobs = 16

// State is one of the states a job can occupy.
type State int

// NOTE: keep in sync with the state labels printed by Format.
const (
	Undef State = iota // the zero value; denotes a free slot
	FG                 // running in the foreground
	BG                 // running in the background
	ST                 // stopped
)

// String returns the human label used by Format, not a Go identifier.
func (s State) String() string {
	switch s {
	case FG:
		return "Foreground"
	case BG:
		return "Running"
	case ST:
		return "Stopped"
	default:
		return "Undef"
	}
}

// Job is a record describing one child pipeline's leader.
type Job struct {
	PID     int    // process and process-group id of the pipeline leader
	JID     int    // shell-assigned id, unique over the live set
	State   State  // FG, BG, or ST; Undef denotes a free slot
	CmdLine string // the command line the user typed, for jobs/List
}

// Table is a fixed-capacity container of job slots. The zero value is not
// usable; use New. The signal router mutates slots from its own goroutine
// while the REPL reads and mutates them from the main one, and both sides
// serialize through the same mutex rather than through blocked signals (see
// Lock/Unlock). FGPID, List and the Locked* methods take the lock
// themselves; Add, Delete, FindByPID, FindByJID and SetState do not, and
// their callers must hold it.
type Table struct {
	mu      sync.Mutex
	slots   [MaxJobs]Job
	nextJID int
}

// New returns an empty job table.
func New() *Table {
	return &Table{nextJID: 1}
}

// Lock and Unlock expose the table's mutex directly so that a caller can
// extend one critical section across more than one Table method call. The
// launcher uses this to hold the table locked across "fork the pipeline
// leader, then register the job" so that the signal router's SIGCHLD-driven
// reap can never observe the leader's pid before the job exists in the
// table — the Go analogue of blocking SIGCHLD around that window.
func (t *Table) Lock()   { t.mu.Lock() }
func (t *Table) Unlock() { t.mu.Unlock() }

// ErrTableFull is returned by Add when there is no free slot.
var ErrTableFull = fmt.Errorf("Tried to create too many jobs")

// Add inserts pid into the first free slot under the given state and
// assigns it the next JID, wrapping back to 1 once the counter exceeds
// MaxJobs. The caller must hold the table lock (see Lock) so that
// registration is atomic with the fork that produced pid.
func (t *Table) Add(pid int, state State, cmdline string) (*Job, error) {
	for i := range t.slots {
		if t.slots[i].PID != 0 {
			continue
		}

		jid := t.nextJID
		if jid > MaxJobs {
			jid = 1
		}
		t.nextJID = jid + 1
		if t.nextJID > MaxJobs {
			t.nextJID = 1
		}

		t.slots[i] = Job{PID: pid, JID: jid, State: state, CmdLine: cmdline}
		return &t.slots[i], nil
	}

	return nil, ErrTableFull
}

// Delete clears the slot belonging to pid, if any, and resets the next-JID
// counter to one past the highest JID still live so that JIDs don't grow
// unboundedly under churn. The caller must hold the table lock.
func (t *Table) Delete(pid int) bool {
	for i := range t.slots {
		if t.slots[i].PID != pid {
			continue
		}

		t.slots[i] = Job{}
		t.nextJID = t.maxJIDLocked() + 1
		return true
	}

	return false
}

func (t *Table) maxJIDLocked() int {
	max := 0
	for i := range t.slots {
		if t.slots[i].JID > max {
			max = t.slots[i].JID
		}
	}
	return max
}

// FGPID returns the pid of the unique foreground job, or 0 if there is none.
func (t *Table) FGPID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fgPIDLocked()
}

func (t *Table) fgPIDLocked() int {
	for i := range t.slots {
		if t.slots[i].State == FG {
			return t.slots[i].PID
		}
	}
	return 0
}

// FindByPID returns a copy of the job with the given pid, or false if no
// live job has that pid. The caller must hold the table lock.
func (t *Table) FindByPID(pid int) (Job, bool) {
	if pid < 1 {
		return Job{}, false
	}
	for i := range t.slots {
		if t.slots[i].PID == pid {
			return t.slots[i], true
		}
	}
	return Job{}, false
}

// FindByJID returns a copy of the job with the given jid, or false if no
// live job has that jid. The caller must hold the table lock.
func (t *Table) FindByJID(jid int) (Job, bool) {
	if jid < 1 {
		return Job{}, false
	}
	for i := range t.slots {
		if t.slots[i].JID == jid {
			return t.slots[i], true
		}
	}
	return Job{}, false
}

// SetState transitions the state of the job with the given pid, if it is
// still live. The caller must hold the table lock.
func (t *Table) SetState(pid int, state State) bool {
	for i := range t.slots {
		if t.slots[i].PID == pid {
			t.slots[i].State = state
			return true
		}
	}
	return false
}

// LockedFindByPID acquires the table lock, looks up pid, and returns a copy
// of the job plus whether it was found. It exists alongside the unlocked
// FindByPID for callers, like the shell's fg/bg dispatch, that don't
// already hold the lock.
func (t *Table) LockedFindByPID(pid int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.FindByPID(pid)
}

// LockedFindByJID is the JID analogue of LockedFindByPID.
func (t *Table) LockedFindByJID(jid int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.FindByJID(jid)
}

// LockedSetState acquires the table lock and transitions pid's state.
func (t *Table) LockedSetState(pid int, state State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.SetState(pid, state)
}

// List returns a snapshot of every live job in slot order, the order
// Format expects callers to print them in.
func (t *Table) List() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	jobs := make([]Job, 0, MaxJobs)
	for i := range t.slots {
		if t.slots[i].PID != 0 {
			jobs = append(jobs, t.slots[i])
		}
	}
	return jobs
}

// Format renders a job the way the jobs builtin prints it:
// "[jid] (pid) <state-label> <cmdline>".
func Format(j Job) string {
	return fmt.Sprintf("[%d] (%d) %s %s", j.JID, j.PID, j.State, j.CmdLine)
}
