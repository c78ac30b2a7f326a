// Package ptable classifies visible processes into sandbox trees and
// aggregates their resource usage.
//
// A refresh walks the proc root once, in directory order. A process inherits
// its parent's level only if the parent already carries one at that moment,
// which is either because the parent was visited earlier in the same pass or
// because its level survived from the previous refresh. A child listed
// before its parent therefore stays unmanaged for one refresh and is picked
// up on the next one.
package ptable

import (
	"errors"
	"fmt"
	"math"
	"time"

	"sandmon/internal/procfs"
)

// MaxLevel is the deepest level a process can carry. Deeper descendants
// saturate here.
const MaxLevel = math.MaxUint8

// ErrNotFound reports a pid or name that matches no sandbox process.
var ErrNotFound = errors.New("not found")

// Detail is the per-process linkage recorded while scanning.
type Detail struct {
	Parent int
	UID    uint32
}

// Table holds one classification and one detail slot per possible pid. It
// is mutated in place by refreshes and is not safe for concurrent use.
//
// levels is written by the current refresh and prev holds the levels of the
// one before it. The two buffers are swapped at the start of every refresh.
type Table struct {
	levels  []uint8
	prev    []uint8
	seen    []bool
	details []Detail
	first   int
	last    int
	// prevLast is the highest pid written into prev.
	prevLast int
}

func newTable(capacity int) *Table {
	return &Table{
		levels:  make([]uint8, capacity),
		prev:    make([]uint8, capacity),
		seen:    make([]bool, capacity),
		details: make([]Detail, capacity),
	}
}

// Capacity returns the number of pid slots.
func (t *Table) Capacity() int {
	return len(t.levels)
}

// rotate keeps the finished pass in prev and zeroes the buffer the next pass
// writes into. Children can sit below first, so clearing starts at pid 0.
func (t *Table) rotate() {
	stale := t.prevLast
	t.levels, t.prev = t.prev, t.levels
	t.prevLast = t.last
	clear(t.levels[:stale+1])
	clear(t.seen[:t.prevLast+1])
}

// parentLevel returns the level of parent in this pass, or the level it
// carried in the previous pass when it has not been visited yet.
func (t *Table) parentLevel(parent int) uint8 {
	if t.seen[parent] {
		return t.levels[parent]
	}
	return t.prev[parent]
}

// Builder owns the table and rebuilds it on every refresh.
type Builder struct {
	proc    *procfs.Reader
	manager string
	table   *Table
}

// NewBuilder returns a builder that treats processes named manager as
// sandbox roots. The table is allocated on the first refresh.
func NewBuilder(proc *procfs.Reader, manager string) *Builder {
	return &Builder{proc: proc, manager: manager}
}

// Table returns the builder's table, or nil before the first refresh.
func (b *Builder) Table() *Table {
	return b.table
}

// Refresh rescans the proc root and returns the resulting snapshot. When
// monPID is non-zero only that pid may become a sandbox root. The only
// error is procfs.ErrProcUnavailable.
func (b *Builder) Refresh(monPID int) (*Snapshot, error) {
	if b.table == nil {
		capacity := b.proc.MaxPIDs()
		if capacity <= 0 {
			return nil, fmt.Errorf("invalid pid table capacity %d", capacity)
		}
		b.table = newTable(capacity)
	}
	t := b.table
	t.rotate()
	t.first, t.last = 0, 0

	pids, err := b.proc.ListPIDs()
	if err != nil {
		return nil, err
	}

	capacity := t.Capacity()
	self := b.proc.Self()
	visited := make([]int, 0, len(pids))
	for _, raw := range pids {
		pid := raw % capacity
		if pid > t.last {
			t.last = pid
		}
		if raw == self {
			continue
		}

		st, ok := b.proc.Status(pid)
		if !ok {
			continue
		}
		t.details[pid] = Detail{}

		eligible := st.Name == b.manager && (monPID == 0 || monPID == pid)
		in := classifyInput{
			Eligible: eligible,
			Zombie:   st.Zombie,
		}
		if eligible {
			in.Nested = b.proc.NestedGraphics(pid, b.manager)
		}
		if st.HasPPid {
			parent := st.PPid % capacity
			t.details[pid].Parent = parent
			in.ParentLevel = t.parentLevel(parent)
		}

		level := classify(in)
		t.levels[pid] = level
		t.seen[pid] = true
		if level > 0 && st.HasUID {
			t.details[pid].UID = st.UID
		}
		if level == 1 && (t.first == 0 || pid < t.first) {
			t.first = pid
		}
		visited = append(visited, pid)
	}

	return t.snapshot(visited, time.Now()), nil
}

type classifyInput struct {
	Eligible    bool
	Nested      bool
	Zombie      bool
	ParentLevel uint8
}

// classify derives a level from a fully parsed status record. A managed
// parent makes the child one level deeper; an eligible manager process is a
// root unless it only wraps a nested graphics server. Nested wrappers and
// zombies are never members.
func classify(in classifyInput) uint8 {
	if in.Zombie || (in.Eligible && in.Nested) {
		return 0
	}
	if in.ParentLevel > 0 {
		return childLevel(in.ParentLevel)
	}
	if in.Eligible {
		return 1
	}
	return 0
}

func childLevel(parent uint8) uint8 {
	if parent == MaxLevel {
		return MaxLevel
	}
	return parent + 1
}
