// Package procfstest writes synthetic proc trees for tests.
package procfstest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Iface is one net/dev row.
type Iface struct {
	Name string
	Rx   uint64
	Tx   uint64
}

// Proc describes one synthetic process. Name is used for both the status
// Name key and comm. Zero State means sleeping.
type Proc struct {
	PID       int
	PPid      int
	Name      string
	State     string
	UID       uint32
	Args      []string
	UTime     uint64
	STime     uint64
	StartTime uint64
	Resident  uint64
	Shared    uint64
	Net       []Iface
}

// Tree is a proc root under a test temp dir.
type Tree struct {
	t    testing.TB
	Root string
}

// New creates an empty proc root.
func New(t testing.TB) *Tree {
	t.Helper()
	return &Tree{t: t, Root: t.TempDir()}
}

// SetPIDMax writes sys/kernel/pid_max.
func (tr *Tree) SetPIDMax(n int) {
	tr.t.Helper()
	tr.write(filepath.Join("sys", "kernel", "pid_max"), fmt.Sprintf("%d\n", n))
}

// Add writes every record of p.
func (tr *Tree) Add(p Proc) {
	tr.t.Helper()
	state := p.State
	if state == "" {
		state = "S (sleeping)"
	}
	comm := p.Name
	if comm == "" {
		comm = "proc"
	}

	tr.WriteFile(p.PID, "status", fmt.Sprintf(
		"Name:\t%s\nUmask:\t0022\nState:\t%s\nTgid:\t%d\nNgid:\t0\nPid:\t%d\nPPid:\t%d\nTracerPid:\t0\nUid:\t%d\t%d\t%d\t%d\nGid:\t%d\t%d\t%d\t%d\n",
		comm, state, p.PID, p.PID, p.PPid, p.UID, p.UID, p.UID, p.UID, p.UID, p.UID, p.UID, p.UID))
	tr.WriteFile(p.PID, "comm", comm+"\n")
	tr.WriteFile(p.PID, "stat", StatLine(p.PID, comm, p.PPid, p.UTime, p.STime, p.StartTime))
	tr.WriteFile(p.PID, "statm", fmt.Sprintf("%d %d %d 1 0 10 0\n", p.Resident+p.Shared, p.Resident, p.Shared))

	var cmdline string
	if len(p.Args) > 0 {
		cmdline = strings.Join(p.Args, "\x00") + "\x00"
	}
	tr.WriteFile(p.PID, "cmdline", cmdline)

	if p.Net != nil {
		var b strings.Builder
		b.WriteString("Inter-|   Receive                                                |  Transmit\n")
		b.WriteString(" face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed\n")
		for _, iface := range p.Net {
			fmt.Fprintf(&b, "%6s: %d 10 0 0 0 0 0 0 %d 10 0 0 0 0 0 0\n", iface.Name, iface.Rx, iface.Tx)
		}
		tr.WriteFile(p.PID, filepath.Join("net", "dev"), b.String())
	}
}

// Remove deletes every record of pid.
func (tr *Tree) Remove(pid int) {
	tr.t.Helper()
	require.NoError(tr.t, os.RemoveAll(filepath.Join(tr.Root, strconv.Itoa(pid))))
}

// WriteFile writes one record of pid, creating parent directories.
func (tr *Tree) WriteFile(pid int, name, content string) {
	tr.t.Helper()
	tr.write(filepath.Join(strconv.Itoa(pid), name), content)
}

func (tr *Tree) write(rel, content string) {
	path := filepath.Join(tr.Root, rel)
	require.NoError(tr.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tr.t, os.WriteFile(path, []byte(content), 0o644))
}

// StatLine renders a stat record with utime, stime and starttime at their
// kernel positions.
func StatLine(pid int, comm string, ppid int, utime, stime, start uint64) string {
	return fmt.Sprintf("%d (%s) S %d %d %d 0 -1 4194560 100 0 0 0 %d %d 0 0 20 0 1 0 %d 1000000 200 18446744073709551615 0 0 0 0 0 0 0 0 0 0 0 0 17 0 0 0 0 0 0\n",
		pid, comm, ppid, pid, pid, utime, stime, start)
}
