package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"sandmon/internal/procfs"
	"sandmon/internal/ptable"
)

// userHZ is the kernel's clock tick rate for stat counters.
const userHZ = 100

// Options configure a Registry.
type Options struct {
	Reader    *procfs.Reader
	Manager   string
	ProxyPath string
	// MonitorPID restricts tracking to one sandbox root. Zero tracks all.
	MonitorPID int
	Logger     *slog.Logger
}

// Registry is a threadsafe catalog of running sandboxes. Refreshes are
// serialized; readers see the last completed refresh without locking.
type Registry struct {
	mu       sync.Mutex
	proc     *procfs.Reader
	builder  *ptable.Builder
	resolver *ptable.Resolver
	users    userCache

	proxyPath string
	monPID    int
	pageSize  uint64
	log       *slog.Logger

	cur atomic.Pointer[state]
}

// state is one published refresh. It is never modified after Store.
type state struct {
	snap      *ptable.Snapshot
	sandboxes map[int]Sandbox
	taken     time.Time
}

// New returns a registry with nothing tracked until the first Refresh.
func New(opts Options) (*Registry, error) {
	if opts.Reader == nil {
		return nil, errors.New("registry: nil proc reader")
	}
	if strings.TrimSpace(opts.Manager) == "" {
		return nil, errors.New("registry: manager name is required")
	}
	if opts.MonitorPID < 0 {
		return nil, fmt.Errorf("registry: invalid monitor pid %d", opts.MonitorPID)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		proc:      opts.Reader,
		builder:   ptable.NewBuilder(opts.Reader, opts.Manager),
		resolver:  ptable.NewResolver(opts.Reader, opts.Manager),
		users:     make(userCache),
		proxyPath: opts.ProxyPath,
		monPID:    opts.MonitorPID,
		pageSize:  uint64(unix.Getpagesize()),
		log:       logger,
	}, nil
}

// Refresh rescans the process table and republishes every sandbox with
// fresh totals. Rates are computed against the previous refresh when the
// same process still holds the root pid.
func (r *Registry) Refresh() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.builder.Refresh(r.monPID)
	if err != nil {
		return err
	}
	taken := now()
	prev := r.cur.Load()

	boot, err := bootTime()
	if err != nil {
		r.log.Debug("boot time unavailable", "err", err)
		boot = 0
	}

	agg := ptable.NewAggregator(snap, r.proc, r.proxyPath)
	roots := snap.Roots()
	next := &state{snap: snap, sandboxes: make(map[int]Sandbox, len(roots)), taken: taken}
	for _, pid := range roots {
		sb := r.collect(snap, agg, pid)
		sb.SeenAt = taken
		sb.Started = startedAt(boot, sb.StartTicks)
		if prev != nil {
			if old, ok := prev.sandboxes[pid]; ok && old.StartTicks == sb.StartTicks {
				applyRates(&sb, old, taken.Sub(prev.taken))
			}
		}
		next.sandboxes[pid] = sb
	}
	r.cur.Store(next)

	r.log.Debug("process table refreshed",
		"processes", snap.Len(), "sandboxes", len(roots), "first", snap.First(), "last", snap.Last())
	return nil
}

func (r *Registry) collect(snap *ptable.Snapshot, agg *ptable.Aggregator, pid int) Sandbox {
	sb := Sandbox{PID: pid}
	if e, ok := snap.Entry(pid); ok {
		sb.UID = e.UID
	}
	sb.User = r.users.name(sb.UID)
	if cmd, ok := r.proc.Cmdline(pid); ok {
		sb.Cmd = trimCmd(cmd)
		sb.Name, _ = procfs.NameArg(cmd)
	}
	sb.StartTicks, _ = r.proc.StartTime(pid)

	sb.CPU = agg.CPU(pid)
	mem := agg.Memory(pid)
	sb.Resident = mem.Resident * r.pageSize
	sb.Shared = mem.Shared * r.pageSize
	sb.Net, sb.HasNet = agg.Network(pid)
	if d, ok := agg.DeepestDescendant(pid); ok {
		sb.Deepest = d
	}
	for _, e := range snap.Subtree(pid) {
		if e.Level > 0 {
			sb.Members++
		}
	}
	return sb
}

func applyRates(sb *Sandbox, old Sandbox, elapsed time.Duration) {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return
	}
	ticks := sb.CPU.User + sb.CPU.System
	oldTicks := old.CPU.User + old.CPU.System
	sb.CPUPercent = perSecond(oldTicks, ticks, secs) / userHZ * 100
	if sb.HasNet && old.HasNet {
		sb.RxRate = perSecond(old.Net.RxBytes, sb.Net.RxBytes, secs)
		sb.TxRate = perSecond(old.Net.TxBytes, sb.Net.TxBytes, secs)
	}
}

// perSecond treats a counter that went backwards as idle.
func perSecond(from, to uint64, secs float64) float64 {
	if to < from {
		return 0
	}
	return float64(to-from) / secs
}

// Get returns a copy of the sandbox rooted at pid.
func (r *Registry) Get(pid int) (Sandbox, bool) {
	st := r.cur.Load()
	if st == nil {
		return Sandbox{}, false
	}
	sb, ok := st.sandboxes[pid]
	return sb, ok
}

// Stats is Get with a not-found error for the transport layer.
func (r *Registry) Stats(pid int) (Sandbox, error) {
	sb, ok := r.Get(pid)
	if !ok {
		return Sandbox{}, notFound(pid)
	}
	return sb, nil
}

// List returns matching sandboxes, sorted by pid asc.
func (r *Registry) List(f ListFilter) []Sandbox {
	st := r.cur.Load()
	if st == nil {
		return nil
	}

	names := make(strset, len(f.Names))
	for _, n := range f.Names {
		if n = strings.TrimSpace(n); n != "" {
			names.add(n)
		}
	}
	uids := make(map[uint32]struct{}, len(f.UIDs))
	for _, u := range f.UIDs {
		uids[u] = struct{}{}
	}
	pids := make(map[int]struct{}, len(f.PIDs))
	for _, p := range f.PIDs {
		pids[p] = struct{}{}
	}
	search := strings.TrimSpace(f.TextSearch)

	out := make([]Sandbox, 0, len(st.sandboxes))
	for _, sb := range st.sandboxes {
		if len(names) > 0 && !names.has(sb.Name) {
			continue
		}
		if len(uids) > 0 {
			if _, ok := uids[sb.UID]; !ok {
				continue
			}
		}
		if len(pids) > 0 {
			if _, ok := pids[sb.PID]; !ok {
				continue
			}
		}
		if search != "" && !strings.Contains(sb.Cmd, search) {
			continue
		}
		out = append(out, sb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Resolve returns the root pid of the sandbox started with --name=name.
// The listing is scanned live, so a sandbox started since the last refresh
// is found too.
func (r *Registry) Resolve(name string) (int, error) {
	name, err := normalizeName(name)
	if err != nil {
		return 0, err
	}
	return r.resolver.Resolve(name)
}

// Tree returns the processes of the sandbox rooted at pid in depth-first
// order.
func (r *Registry) Tree(pid int) ([]Member, error) {
	st := r.cur.Load()
	if st == nil || st.snap.Level(pid) != 1 {
		return nil, notFound(pid)
	}
	entries := st.snap.Subtree(pid)
	out := make([]Member, 0, len(entries))
	for _, e := range entries {
		m := Member{PID: e.PID, Parent: e.Parent, Level: e.Level}
		if cmd, ok := r.proc.Cmdline(e.PID); ok {
			m.Cmd = trimCmd(cmd)
		}
		out = append(out, m)
	}
	return out, nil
}

// Snapshot returns the process table of the last refresh, or nil before
// the first one.
func (r *Registry) Snapshot() *ptable.Snapshot {
	st := r.cur.Load()
	if st == nil {
		return nil
	}
	return st.snap
}

// RefreshedAt reports when the published state was taken.
func (r *Registry) RefreshedAt() time.Time {
	st := r.cur.Load()
	if st == nil {
		return time.Time{}
	}
	return st.taken
}

func notFound(pid int) error {
	return fmt.Errorf("sandbox %d: %w", pid, ptable.ErrNotFound)
}
