package ptable

import (
	"fmt"

	"sandmon/internal/procfs"
)

// Resolver maps sandbox names given with --name= to root pids.
type Resolver struct {
	proc    *procfs.Reader
	manager string
}

// NewResolver returns a resolver matching processes named manager.
func NewResolver(proc *procfs.Reader, manager string) *Resolver {
	return &Resolver{proc: proc, manager: manager}
}

// Resolve scans the proc root in directory order and returns the first
// manager process whose --name= value equals name. Two sandboxes sharing a
// name resolve to whichever is listed first.
func (r *Resolver) Resolve(name string) (int, error) {
	pids, err := r.proc.ListPIDs()
	if err != nil {
		return 0, err
	}
	self := r.proc.Self()
	for _, pid := range pids {
		if pid == self {
			continue
		}
		if comm, ok := r.proc.Comm(pid); !ok || comm != r.manager {
			continue
		}
		cmd, ok := r.proc.Cmdline(pid)
		if !ok {
			continue
		}
		if val, ok := procfs.NameArg(cmd); ok && val == name {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("sandbox %q: %w", name, ErrNotFound)
}
