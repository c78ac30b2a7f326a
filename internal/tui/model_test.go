package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandmon/internal/app"
)

type fakeController struct {
	status    app.DaemonStatus
	sandboxes []app.Sandbox
	trees     map[int][]app.Member
	listErr   error
}

func (f *fakeController) Status() (app.DaemonStatus, error) { return f.status, nil }

func (f *fakeController) StartDaemon() (*app.DaemonHandle, error) {
	return nil, errors.New("not supported")
}

func (f *fakeController) List(context.Context, app.ListParams) ([]app.Sandbox, error) {
	return f.sandboxes, f.listErr
}

func (f *fakeController) Tree(_ context.Context, pid int, _ time.Duration) ([]app.Member, error) {
	return f.trees[pid], nil
}

func sampleSandboxes() []app.Sandbox {
	return []app.Sandbox{
		{PID: 10, Name: "web", User: "alice", CPUPercent: 5, Resident: 300 << 20, Members: 3},
		{PID: 20, Name: "mail", User: "alice", CPUPercent: 40, Resident: 100 << 20, Members: 2},
		{PID: 30, Name: "", User: "root", CPUPercent: 1, Resident: 900 << 20, Members: 1},
	}
}

func pids(m *Model) []int {
	out := make([]int, 0, len(m.sandboxes))
	for _, sb := range m.sandboxes {
		out = append(out, sb.PID)
	}
	return out
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelLoadsAndSorts(t *testing.T) {
	m := New(&fakeController{}, time.Second)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m.Update(daemonStatusMsg{status: app.DaemonStatus{Running: true, PID: 99}})
	m.Update(sandboxesLoadedMsg{sandboxes: sampleSandboxes()})

	assert.False(t, m.loading)
	assert.Equal(t, []int{10, 20, 30}, pids(m))

	m.Update(key("o"))
	assert.Equal(t, sortByCPU, m.sortBy)
	assert.Equal(t, []int{20, 10, 30}, pids(m))

	m.Update(key("o"))
	assert.Equal(t, []int{30, 10, 20}, pids(m))

	m.Update(key("o"))
	assert.Equal(t, sortByPID, m.sortBy)
	assert.Equal(t, []int{10, 20, 30}, pids(m))
}

func TestModelKeepsCursorAcrossReload(t *testing.T) {
	m := New(&fakeController{}, time.Second)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m.Update(sandboxesLoadedMsg{sandboxes: sampleSandboxes()})
	m.list.Select(1)
	require.Equal(t, 20, m.currentSandbox().PID)

	reloaded := sampleSandboxes()[1:]
	m.Update(sandboxesLoadedMsg{sandboxes: reloaded})
	assert.Equal(t, 20, m.currentSandbox().PID)
}

func TestModelTreeToggle(t *testing.T) {
	ctrl := &fakeController{trees: map[int][]app.Member{
		10: {{PID: 10, Parent: 1, Level: 1, Cmd: "firejail firefox"}, {PID: 11, Parent: 10, Level: 2, Cmd: "firefox"}},
	}}
	m := New(ctrl, time.Second)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m.Update(daemonStatusMsg{status: app.DaemonStatus{Running: true}})
	m.Update(sandboxesLoadedMsg{sandboxes: sampleSandboxes()})

	_, cmd := m.Update(key("t"))
	require.True(t, m.showTree)
	require.NotNil(t, cmd)
	assert.Equal(t, 10, m.treePID)

	loaded := loadTreeCmd(ctrl, 10)()
	m.Update(loaded)
	require.Len(t, m.tree, 2)
	assert.Contains(t, m.View(), "  11 firefox")

	// A tree for a sandbox no longer selected is dropped.
	m.Update(treeLoadedMsg{pid: 20, members: []app.Member{{PID: 20}}})
	assert.Len(t, m.tree, 2)

	m.Update(key("t"))
	assert.False(t, m.showTree)
	assert.Nil(t, m.tree)
}

func TestModelViewStates(t *testing.T) {
	m := New(&fakeController{}, 0)
	assert.Equal(t, defaultInterval, m.interval)

	m.Update(daemonStatusMsg{status: app.DaemonStatus{Running: false}})
	assert.Contains(t, m.View(), "Daemon is not running")

	m.Update(daemonStatusMsg{status: app.DaemonStatus{Running: true}})
	m.Update(sandboxesLoadedMsg{})
	assert.Contains(t, m.View(), "No sandboxes running.")

	m.Update(errMsg{errors.New("boom")})
	assert.Contains(t, m.View(), "Error: boom")
}

func TestSandboxItemText(t *testing.T) {
	item := sandboxItem{Sandbox: app.Sandbox{PID: 10, User: "alice", CPUPercent: 12.5, Resident: 2 << 20, RxRate: 2048, Members: 4}}
	assert.Equal(t, "[pid=10] - (alice)", item.Title())
	desc := item.Description()
	assert.True(t, strings.HasPrefix(desc, "cpu 12.5% | rss 2.0 MiB"), desc)
	assert.Contains(t, desc, "rx 2.0 kB/s")
	assert.Contains(t, desc, "4 procs")
}

func TestTickReloadsOnlyWhenRunning(t *testing.T) {
	m := New(&fakeController{}, time.Second)
	_, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)

	m.Update(daemonStatusMsg{status: app.DaemonStatus{Running: true}})
	_, cmd = m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
}
