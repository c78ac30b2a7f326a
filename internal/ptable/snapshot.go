package ptable

import (
	"sort"
	"time"
)

// Entry is the published view of one visited process.
type Entry struct {
	PID    int
	Parent int
	Level  uint8
	UID    uint32
}

// Snapshot is the read-only result of one refresh. Children lists are kept
// in ascending pid order.
type Snapshot struct {
	entries  map[int]Entry
	children map[int][]int
	order    []int
	first    int
	last     int
	capacity int
	taken    time.Time
}

func (t *Table) snapshot(visited []int, taken time.Time) *Snapshot {
	s := &Snapshot{
		entries:  make(map[int]Entry, len(visited)),
		children: make(map[int][]int),
		order:    visited,
		first:    t.first,
		last:     t.last,
		capacity: t.Capacity(),
		taken:    taken,
	}
	for _, pid := range visited {
		d := t.details[pid]
		s.entries[pid] = Entry{
			PID:    pid,
			Parent: d.Parent,
			Level:  t.levels[pid],
			UID:    d.UID,
		}
		s.children[d.Parent] = append(s.children[d.Parent], pid)
	}
	for _, kids := range s.children {
		sort.Ints(kids)
	}
	return s
}

// Taken returns when the refresh finished scanning.
func (s *Snapshot) Taken() time.Time { return s.taken }

// First returns the lowest sandbox root pid seen, or 0.
func (s *Snapshot) First() int { return s.first }

// Last returns the highest pid visited.
func (s *Snapshot) Last() int { return s.last }

// Capacity returns the pid table size the snapshot was built with.
func (s *Snapshot) Capacity() int { return s.capacity }

// Len returns the number of visited processes.
func (s *Snapshot) Len() int { return len(s.entries) }

// PIDs returns the visited pids in scan order.
func (s *Snapshot) PIDs() []int {
	return append([]int(nil), s.order...)
}

// Entry returns the entry for pid.
func (s *Snapshot) Entry(pid int) (Entry, bool) {
	e, ok := s.entries[pid]
	return e, ok
}

// Level returns the level of pid, 0 when unmanaged or not visited.
func (s *Snapshot) Level(pid int) uint8 {
	return s.entries[pid].Level
}

// Children returns the visited children of pid in ascending order.
func (s *Snapshot) Children(pid int) []int {
	return s.children[pid]
}

// Roots returns every sandbox root in ascending order.
func (s *Snapshot) Roots() []int {
	var roots []int
	for pid, e := range s.entries {
		if e.Level == 1 {
			roots = append(roots, pid)
		}
	}
	sort.Ints(roots)
	return roots
}

// laterChildren returns the children of pid with a higher pid, the only ones
// subtree walks descend into.
func (s *Snapshot) laterChildren(pid int) []int {
	kids := s.children[pid]
	i := sort.SearchInts(kids, pid+1)
	return kids[i:]
}

// Subtree returns root followed by its descendants, depth first with
// siblings in ascending order.
func (s *Snapshot) Subtree(root int) []Entry {
	var out []Entry
	var walk func(pid int)
	walk = func(pid int) {
		e, ok := s.entries[pid]
		if !ok {
			e = Entry{PID: pid}
		}
		out = append(out, e)
		for _, child := range s.laterChildren(pid) {
			walk(child)
		}
	}
	walk(root)
	return out
}
