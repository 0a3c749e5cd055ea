// Package resources applies best-effort cgroup v2 resource limits to job
// pipeline leaders, adapted from a job-worker's cgroup-v2-based limiting of
// spawned processes. This mechanism does not conflict with job control —
// unlike PID/mount/net namespace unsharing, which is dropped (see
// DESIGN.md) — because it never hides a child's real pid from the parent.
// On any platform or permission failure this package degrades to a no-op:
// the shell's core job control is unaffected.
package resources

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

const (
	cgroupRoot = "/sys/fs/cgroup"
	filePerm   = 0o600
)

// Manager lazily creates one root cgroup under /sys/fs/cgroup and one leaf
// cgroup per job beneath it.
type Manager struct {
	rootOnce sync.Once
	rootErr  error
	rootName string
}

// New returns a Manager. Creation of the root cgroup is deferred to the
// first NewJob call, so a Manager that never registers a job never touches
// cgroupfs.
func New() *Manager {
	return &Manager{}
}

func (m *Manager) createRoot() {
	cg, err := os.MkdirTemp(cgroupRoot, "tsh-")
	if err != nil {
		m.rootErr = fmt.Errorf("create root cgroup: %w", err)
		return
	}
	m.rootName = cg

	err = os.WriteFile(filepath.Join(cg, "cgroup.subtree_control"), []byte("+cpu +memory"), filePerm)
	if err != nil {
		m.rootErr = fmt.Errorf("enable root cgroup controllers: %w", err)
	}
}

// Job represents one pipeline leader's leaf cgroup.
type Job struct {
	path string
}

// NewJob creates a leaf cgroup for pid and adds it to cgroup.procs. The
// returned Job is unusable (nil-safe no-op on Limit) if cgroup v2 setup
// failed; callers should log the error but keep running the pipeline
// without resource limits.
func (m *Manager) NewJob(pid int) (*Job, error) {
	m.rootOnce.Do(m.createRoot)
	if m.rootErr != nil {
		return nil, m.rootErr
	}

	leaf, err := os.MkdirTemp(m.rootName, "job-")
	if err != nil {
		return nil, fmt.Errorf("create leaf cgroup: %w", err)
	}

	if err := os.WriteFile(filepath.Join(leaf, "cgroup.procs"), []byte(strconv.Itoa(pid)), filePerm); err != nil {
		return nil, fmt.Errorf("add pid %d to cgroup.procs: %w", pid, err)
	}

	return &Job{path: leaf}, nil
}

// Limit writes cpu.max and memory.max for the job's cgroup. cpuFrac is a
// fraction in (0, 1]; 0 means "leave cpu.max alone". memBytes of 0 means
// "leave memory.max alone".
func (j *Job) Limit(cpuFrac float64, memBytes int64) error {
	if j == nil {
		return nil
	}

	const period = 100000

	if cpuFrac > 0 {
		quota := int64(cpuFrac * period)
		val := fmt.Sprintf("%d %d", quota, period)
		if err := os.WriteFile(filepath.Join(j.path, "cpu.max"), []byte(val), filePerm); err != nil {
			return fmt.Errorf("write cpu.max: %w", err)
		}
	}

	if memBytes > 0 {
		val := strconv.FormatInt(memBytes, 10)
		if err := os.WriteFile(filepath.Join(j.path, "memory.max"), []byte(val), filePerm); err != nil {
			return fmt.Errorf("write memory.max: %w", err)
		}
	}

	return nil
}

// Cleanup removes the job's leaf cgroup directory once the job has exited.
// Cgroup v2 refuses to rmdir a non-empty cgroup.procs, so this is safe to
// call only after the leader is known to have exited.
func (j *Job) Cleanup() {
	if j == nil {
		return
	}
	if err := os.Remove(j.path); err != nil {
		slog.Warn("failed to remove leaf cgroup", "path", j.path, "err", err)
	}
}

// Available reports whether cgroup v2 appears usable on this host. It's
// used by the shell to print a single best-effort warning up front instead
// of one per job.
func Available() bool {
	_, err := os.Stat(filepath.Join(cgroupRoot, "cgroup.controllers"))
	return err == nil
}
