package ptable

import (
	"strings"

	"sandmon/internal/procfs"
)

// topLevelPID is init; its network counters stand for the host.
const topLevelPID = 1

// Aggregator sums live counters over the subtrees of one snapshot.
type Aggregator struct {
	snap      *Snapshot
	proc      *procfs.Reader
	proxyPath string
}

// NewAggregator returns an aggregator over snap. Processes whose command
// line starts with proxyPath are helpers and never picked as a
// representative child.
func NewAggregator(snap *Snapshot, proc *procfs.Reader, proxyPath string) *Aggregator {
	return &Aggregator{snap: snap, proc: proc, proxyPath: proxyPath}
}

// CPU returns the user and system ticks of root and every descendant.
func (a *Aggregator) CPU(root int) procfs.CPUTime {
	var total procfs.CPUTime
	a.AddCPU(root, &total)
	return total
}

// AddCPU adds the ticks of the subtree at pid to total. A sandbox root
// resets total first.
func (a *Aggregator) AddCPU(pid int, total *procfs.CPUTime) {
	if a.snap.Level(pid) == 1 {
		*total = procfs.CPUTime{}
	}
	if t, ok := a.proc.CPUTime(pid); ok {
		total.User += t.User
		total.System += t.System
	}
	for _, child := range a.snap.laterChildren(pid) {
		a.AddCPU(child, total)
	}
}

// Memory returns the resident and shared pages of root and every descendant.
func (a *Aggregator) Memory(root int) procfs.Memory {
	var total procfs.Memory
	a.AddMemory(root, &total)
	return total
}

// AddMemory adds the pages of the subtree at pid to total. A sandbox root
// resets total first.
func (a *Aggregator) AddMemory(pid int, total *procfs.Memory) {
	if a.snap.Level(pid) == 1 {
		*total = procfs.Memory{}
	}
	a.proc.AddMemory(pid, total)
	for _, child := range a.snap.laterChildren(pid) {
		a.AddMemory(child, total)
	}
}

// Network returns the counters of a single representative child of root.
// Every process in a sandbox shares one network namespace, so summing the
// subtree would count the same interfaces repeatedly.
func (a *Aggregator) Network(root int) (procfs.NetCounters, bool) {
	child := -1
	if root == topLevelPID {
		child = root
	} else {
		for _, pid := range a.snap.laterChildren(root) {
			if a.isProxy(pid) {
				continue
			}
			child = pid
			break
		}
	}
	if child < 0 {
		return procfs.NetCounters{}, false
	}
	return a.proc.NetDev(child)
}

// DeepestDescendant returns the process to attach tooling to: the first
// level 2 child of root, or its first level 3 child when one exists.
// Sandboxes joined into another one have no third level.
func (a *Aggregator) DeepestDescendant(root int) (int, bool) {
	first := -1
	for _, pid := range a.snap.Children(root) {
		if a.snap.Level(pid) != 2 || a.isProxy(pid) {
			continue
		}
		first = pid
		break
	}
	if first < 0 {
		return 0, false
	}
	for _, pid := range a.snap.Children(first) {
		if a.snap.Level(pid) == 3 {
			return pid, true
		}
	}
	return first, true
}

// isProxy reports whether pid is the bus proxy helper. A process that has
// already exited is skipped the same way.
func (a *Aggregator) isProxy(pid int) bool {
	cmd, ok := a.proc.Cmdline(pid)
	if !ok {
		return true
	}
	return a.proxyPath != "" && strings.HasPrefix(cmd, a.proxyPath)
}
