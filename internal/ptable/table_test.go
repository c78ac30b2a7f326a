package ptable

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandmon/internal/procfs"
	"sandmon/internal/procfs/procfstest"
)

const (
	manager   = "firejail"
	proxyPath = "/usr/bin/xdg-dbus-proxy"
)

func newReader(tree *procfstest.Tree, opts ...procfs.Option) *procfs.Reader {
	opts = append([]procfs.Option{procfs.WithSelf(-1), procfs.WithSortedListing()}, opts...)
	return procfs.NewReader(tree.Root, time.Millisecond, opts...)
}

func refresh(t *testing.T, b *Builder, monPID int) *Snapshot {
	t.Helper()
	snap, err := b.Refresh(monPID)
	require.NoError(t, err)
	return snap
}

// addSandbox writes the usual shape: an outer manager process, the manager
// child doing the isolation, and the program itself.
func addSandbox(tree *procfstest.Tree, root int, name, program string) {
	args := []string{manager, "--name=" + name, program}
	tree.Add(procfstest.Proc{PID: root, PPid: 1, Name: manager, UID: 1000, Args: args, UTime: 5, STime: 1})
	tree.Add(procfstest.Proc{PID: root + 1, PPid: root, Name: manager, UID: 1000, Args: args, UTime: 3})
	tree.Add(procfstest.Proc{PID: root + 2, PPid: root + 1, Name: program, UID: 1000, Args: []string{program}, UTime: 2, STime: 2})
}

func assertParentInvariant(t *testing.T, snap *Snapshot) {
	t.Helper()
	for _, pid := range snap.PIDs() {
		e, _ := snap.Entry(pid)
		if e.Level > 1 {
			assert.NotZero(t, snap.Level(e.Parent), "pid %d level %d under unmanaged parent %d", pid, e.Level, e.Parent)
		}
	}
}

func TestRefreshClassifiesSandbox(t *testing.T) {
	tree := procfstest.New(t)
	tree.Add(procfstest.Proc{PID: 1, Name: "systemd", Args: []string{"/sbin/init"}})
	tree.Add(procfstest.Proc{PID: 5, PPid: 1, Name: "bash", Args: []string{"bash"}})
	addSandbox(tree, 10, "web", "firefox")

	b := NewBuilder(newReader(tree), manager)
	snap := refresh(t, b, 0)

	assert.EqualValues(t, 0, snap.Level(1))
	assert.EqualValues(t, 0, snap.Level(5))
	assert.EqualValues(t, 1, snap.Level(10))
	assert.EqualValues(t, 2, snap.Level(11))
	assert.EqualValues(t, 3, snap.Level(12))
	assert.Equal(t, []int{10}, snap.Roots())
	assert.Equal(t, 10, snap.First())
	assert.Equal(t, 12, snap.Last())
	assert.Equal(t, 5, snap.Len())

	e, ok := snap.Entry(12)
	require.True(t, ok)
	assert.Equal(t, Entry{PID: 12, Parent: 11, Level: 3, UID: 1000}, e)
	assertParentInvariant(t, snap)
}

func TestRefreshRecordsUIDOnlyForManaged(t *testing.T) {
	tree := procfstest.New(t)
	tree.Add(procfstest.Proc{PID: 5, PPid: 1, Name: "bash", UID: 1000, Args: []string{"bash"}})
	addSandbox(tree, 10, "web", "firefox")

	snap := refresh(t, NewBuilder(newReader(tree), manager), 0)

	e, _ := snap.Entry(5)
	assert.Zero(t, e.UID)
	e, _ = snap.Entry(10)
	assert.EqualValues(t, 1000, e.UID)
}

func TestRefreshSkipsSelf(t *testing.T) {
	tree := procfstest.New(t)
	addSandbox(tree, 10, "web", "firefox")

	snap := refresh(t, NewBuilder(newReader(tree, procfs.WithSelf(10)), manager), 0)

	_, ok := snap.Entry(10)
	assert.False(t, ok)
	// 11 is a manager process itself, so with its parent skipped it roots
	// its own tree.
	assert.EqualValues(t, 1, snap.Level(11))
	assert.EqualValues(t, 2, snap.Level(12))
	assert.Equal(t, []int{11}, snap.Roots())
}

func TestRefreshSkippedParentGivesNoLevel(t *testing.T) {
	tree := procfstest.New(t)
	tree.Add(procfstest.Proc{PID: 10, PPid: 1, Name: manager, Args: []string{manager, "app"}})
	tree.Add(procfstest.Proc{PID: 11, PPid: 10, Name: "app", Args: []string{"app"}})

	snap := refresh(t, NewBuilder(newReader(tree, procfs.WithSelf(10)), manager), 0)

	assert.EqualValues(t, 0, snap.Level(11))
	assert.Empty(t, snap.Roots())
}

func TestRefreshDepthSaturates(t *testing.T) {
	tree := procfstest.New(t)
	const base, depth = 1000, 300
	tree.Add(procfstest.Proc{PID: base, PPid: 1, Name: manager, Args: []string{manager, "sh"}})
	for i := 1; i < depth; i++ {
		tree.Add(procfstest.Proc{PID: base + i, PPid: base + i - 1, Name: "sh", Args: []string{"sh"}})
	}

	snap := refresh(t, NewBuilder(newReader(tree), manager), 0)

	assert.EqualValues(t, 254, snap.Level(base+253))
	assert.EqualValues(t, MaxLevel, snap.Level(base+254))
	assert.EqualValues(t, MaxLevel, snap.Level(base+depth-1))
	assertParentInvariant(t, snap)
}

func TestRefreshZombieIsNeverMember(t *testing.T) {
	tree := procfstest.New(t)
	tree.Add(procfstest.Proc{PID: 20, PPid: 1, Name: manager, State: "Z (zombie)", Args: []string{manager, "x"}})
	addSandbox(tree, 30, "web", "firefox")
	tree.Add(procfstest.Proc{PID: 40, PPid: 32, Name: "defunct", State: "Z (zombie)"})

	snap := refresh(t, NewBuilder(newReader(tree), manager), 0)

	assert.EqualValues(t, 0, snap.Level(20))
	assert.EqualValues(t, 0, snap.Level(40))
	assert.Equal(t, []int{30}, snap.Roots())
}

func TestRefreshNestedGraphicsWrapperIsHidden(t *testing.T) {
	tree := procfstest.New(t)
	outer := []string{manager, "--x11=xpra", "--name=gfx", "gimp"}
	tree.Add(procfstest.Proc{PID: 50, PPid: 1, Name: manager, Args: outer})
	tree.Add(procfstest.Proc{PID: 51, PPid: 50, Name: "xpra", Args: []string{"xpra", "start"}})
	tree.Add(procfstest.Proc{PID: 52, PPid: 50, Name: manager, Args: []string{manager, "--name=gfx", "gimp"}})
	tree.Add(procfstest.Proc{PID: 53, PPid: 52, Name: "gimp", Args: []string{"gimp"}})

	snap := refresh(t, NewBuilder(newReader(tree), manager), 0)

	assert.EqualValues(t, 0, snap.Level(50))
	assert.EqualValues(t, 0, snap.Level(51))
	assert.EqualValues(t, 1, snap.Level(52))
	assert.EqualValues(t, 2, snap.Level(53))
}

func TestRefreshMonitorFilter(t *testing.T) {
	tree := procfstest.New(t)
	addSandbox(tree, 10, "a", "firefox")
	addSandbox(tree, 20, "b", "vlc")

	snap := refresh(t, NewBuilder(newReader(tree), manager), 20)

	assert.Equal(t, []int{20}, snap.Roots())
	assert.EqualValues(t, 0, snap.Level(11), "the filtered-out root has no members")
	assert.EqualValues(t, 2, snap.Level(21))
}

func TestRefreshChildBeforeParentCatchesUpNextRefresh(t *testing.T) {
	tree := procfstest.New(t)
	// A recycled low pid whose parent is listed after it.
	tree.Add(procfstest.Proc{PID: 60, PPid: 1, Name: manager, Args: []string{manager, "app"}})
	tree.Add(procfstest.Proc{PID: 7, PPid: 60, Name: "app", Args: []string{"app"}})
	b := NewBuilder(newReader(tree), manager)

	snap := refresh(t, b, 0)
	assert.EqualValues(t, 1, snap.Level(60))
	assert.EqualValues(t, 0, snap.Level(7), "parent not classified yet in the first pass")
	assert.Equal(t, []int{7, 60}, snap.PIDs())
	assertParentInvariant(t, snap)

	for i := 0; i < 3; i++ {
		snap = refresh(t, b, 0)
		assert.EqualValues(t, 1, snap.Level(60))
		assert.EqualValues(t, 2, snap.Level(7), "refresh %d", i+2)
		assertParentInvariant(t, snap)
	}
}

func TestRefreshDropsLevelsOfExitedSandbox(t *testing.T) {
	tree := procfstest.New(t)
	tree.Add(procfstest.Proc{PID: 60, PPid: 1, Name: manager, Args: []string{manager, "app"}})
	tree.Add(procfstest.Proc{PID: 7, PPid: 60, Name: "app", Args: []string{"app"}})
	b := NewBuilder(newReader(tree), manager)
	refresh(t, b, 0)
	require.EqualValues(t, 2, refresh(t, b, 0).Level(7))

	// The manager is replaced by an unrelated process with the same pid.
	tree.Add(procfstest.Proc{PID: 60, PPid: 1, Name: "cron", Args: []string{"cron"}})
	refresh(t, b, 0)
	snap := refresh(t, b, 0)
	assert.EqualValues(t, 0, snap.Level(60))
	assert.EqualValues(t, 0, snap.Level(7))
	assert.Empty(t, snap.Roots())
}

func TestRefreshClearsRecycledSlots(t *testing.T) {
	tree := procfstest.New(t)
	addSandbox(tree, 10, "web", "firefox")
	b := NewBuilder(newReader(tree), manager)
	snap := refresh(t, b, 0)
	require.EqualValues(t, 3, snap.Level(12))

	// The sandbox exits and pid 12 is reused by an unrelated process.
	tree.Remove(10)
	tree.Remove(11)
	tree.Remove(12)
	tree.Add(procfstest.Proc{PID: 12, PPid: 1, Name: "cron", Args: []string{"cron"}})

	snap = refresh(t, b, 0)
	e, ok := snap.Entry(12)
	require.True(t, ok)
	assert.Equal(t, Entry{PID: 12, Parent: 1}, e)
	assert.Empty(t, snap.Roots())
	assert.Zero(t, b.Table().levels[10])
	assert.Zero(t, b.Table().levels[11])
}

func TestRefreshSizesTableFromKernel(t *testing.T) {
	tree := procfstest.New(t)
	tree.SetPIDMax(40000)
	tree.Add(procfstest.Proc{PID: 39999, PPid: 1, Name: manager, Args: []string{manager, "x"}})

	b := NewBuilder(newReader(tree), manager)
	assert.Nil(t, b.Table())
	snap := refresh(t, b, 0)

	assert.Equal(t, 40001, b.Table().Capacity())
	assert.Equal(t, 40001, snap.Capacity())
	assert.EqualValues(t, 1, snap.Level(39999))
}

func TestRefreshListingUnavailable(t *testing.T) {
	r := procfs.NewReader(filepath.Join(t.TempDir(), "gone"), time.Millisecond)
	_, err := NewBuilder(r, manager).Refresh(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, procfs.ErrProcUnavailable))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   classifyInput
		want uint8
	}{
		{"unmanaged", classifyInput{}, 0},
		{"root", classifyInput{Eligible: true}, 1},
		{"nested wrapper", classifyInput{Eligible: true, Nested: true}, 0},
		{"zombie root", classifyInput{Eligible: true, Zombie: true}, 0},
		{"child", classifyInput{ParentLevel: 3}, 4},
		{"manager child", classifyInput{Eligible: true, ParentLevel: 1}, 2},
		{"zombie child", classifyInput{Zombie: true, ParentLevel: 2}, 0},
		{"saturated", classifyInput{ParentLevel: MaxLevel}, MaxLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.in))
		})
	}
}
