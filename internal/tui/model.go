package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"sandmon/internal/app"
)

const (
	defaultInterval = 2 * time.Second
	requestTimeout  = 4 * time.Second
)

// Controller defines the subset of app.App behaviour the TUI needs.
type Controller interface {
	Status() (app.DaemonStatus, error)
	StartDaemon() (*app.DaemonHandle, error)
	List(context.Context, app.ListParams) ([]app.Sandbox, error)
	Tree(context.Context, int, time.Duration) ([]app.Member, error)
}

type sortKey int

const (
	sortByPID sortKey = iota
	sortByCPU
	sortByMemory
)

func (k sortKey) String() string {
	switch k {
	case sortByCPU:
		return "cpu"
	case sortByMemory:
		return "memory"
	default:
		return "pid"
	}
}

// Model represents the Bubble Tea state.
type Model struct {
	controller Controller
	interval   time.Duration

	list      list.Model
	sandboxes []app.Sandbox
	sortBy    sortKey

	showTree bool
	treePID  int
	tree     []app.Member

	daemonStatus app.DaemonStatus
	statusMsg    string

	err     error
	loading bool

	width  int
	height int

	filters app.ListFilters

	lastUpdated time.Time
}

// New constructs a TUI model that reloads every interval.
func New(ctrl Controller, interval time.Duration) *Model {
	if interval <= 0 {
		interval = defaultInterval
	}
	delegate := list.NewDefaultDelegate()
	lst := list.New([]list.Item{}, delegate, 0, 0)
	lst.Title = "Sandboxes"
	lst.SetShowHelp(false)
	lst.SetFilteringEnabled(false)
	lst.DisableQuitKeybindings()

	return &Model{
		controller: ctrl,
		interval:   interval,
		list:       lst,
		filters:    app.ListFilters{},
		statusMsg:  "Checking daemon status…",
		loading:    true,
	}
}

// Run spins up the Bubble Tea program with sensible defaults.
func Run(ctrl Controller, interval time.Duration) error {
	m := New(ctrl, interval)
	prog := tea.NewProgram(m, tea.WithAltScreen())
	_, err := prog.Run()
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(checkDaemonStatusCmd(m.controller), loadSandboxesCmd(m.controller, m.filters), tickCmd(m.interval))
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.height > 8 {
			m.list.SetSize(msg.Width, msg.Height-8)
		}

	case tickMsg:
		cmds := []tea.Cmd{tickCmd(m.interval)}
		if m.daemonStatus.Running {
			cmds = append(cmds, loadSandboxesCmd(m.controller, m.filters))
			if m.showTree && m.treePID > 0 {
				cmds = append(cmds, loadTreeCmd(m.controller, m.treePID))
			}
		}
		return m, tea.Batch(cmds...)

	case daemonStatusMsg:
		m.daemonStatus = msg.status
		if msg.status.Running {
			if msg.status.PID > 0 {
				m.statusMsg = fmt.Sprintf("Daemon running (pid %d).", msg.status.PID)
			} else {
				m.statusMsg = "Daemon running."
			}
		} else {
			m.statusMsg = "Daemon is not running. Press s to start it."
			m.sandboxes = nil
			m.list.SetItems(nil)
		}

	case sandboxesLoadedMsg:
		m.loading = false
		m.err = nil
		m.setSandboxes(msg.sandboxes)
		m.lastUpdated = time.Now()

	case treeLoadedMsg:
		if msg.pid == m.treePID {
			m.tree = msg.members
		}

	case daemonStartedMsg:
		m.statusMsg = "Daemon started."
		return m, tea.Batch(checkDaemonStatusCmd(m.controller), loadSandboxesCmd(m.controller, m.filters))

	case errMsg:
		m.loading = false
		m.err = msg.err

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, loadSandboxesCmd(m.controller, m.filters)
		case "s":
			if !m.daemonStatus.Running {
				m.statusMsg = "Starting daemon…"
				return m, startDaemonCmd(m.controller)
			}
		case "o":
			m.sortBy = (m.sortBy + 1) % 3
			m.setSandboxes(m.sandboxes)
		case "t", "enter":
			return m, m.toggleTree()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	if m.showTree {
		if cur := m.currentSandbox(); cur != nil && cur.PID != m.treePID {
			m.treePID = cur.PID
			m.tree = nil
			return m, tea.Batch(cmd, loadTreeCmd(m.controller, cur.PID))
		}
	}
	return m, cmd
}

func (m *Model) toggleTree() tea.Cmd {
	m.showTree = !m.showTree
	if !m.showTree {
		m.treePID, m.tree = 0, nil
		return nil
	}
	cur := m.currentSandbox()
	if cur == nil {
		return nil
	}
	m.treePID = cur.PID
	return loadTreeCmd(m.controller, cur.PID)
}

// setSandboxes replaces the list contents, keeping the cursor on the same
// sandbox when it survived the reload.
func (m *Model) setSandboxes(sbs []app.Sandbox) {
	keep := 0
	if cur := m.currentSandbox(); cur != nil {
		keep = cur.PID
	}
	sorted := append([]app.Sandbox(nil), sbs...)
	sortSandboxes(sorted, m.sortBy)
	m.sandboxes = sorted

	items := make([]list.Item, 0, len(sorted))
	cursor := 0
	for i, sb := range sorted {
		if sb.PID == keep {
			cursor = i
		}
		items = append(items, sandboxItem{Sandbox: sb})
	}
	m.list.SetItems(items)
	if len(items) > 0 {
		m.list.Select(cursor)
	}
}

func sortSandboxes(sbs []app.Sandbox, key sortKey) {
	sort.SliceStable(sbs, func(i, j int) bool {
		switch key {
		case sortByCPU:
			if sbs[i].CPUPercent != sbs[j].CPUPercent {
				return sbs[i].CPUPercent > sbs[j].CPUPercent
			}
		case sortByMemory:
			if sbs[i].Resident != sbs[j].Resident {
				return sbs[i].Resident > sbs[j].Resident
			}
		}
		return sbs[i].PID < sbs[j].PID
	})
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	statusStyle := lipgloss.NewStyle().Bold(true)
	if !m.daemonStatus.Running {
		statusStyle = statusStyle.Foreground(lipgloss.Color("203"))
	} else {
		statusStyle = statusStyle.Foreground(lipgloss.Color("42"))
	}
	b.WriteString(statusStyle.Render(m.statusMsg))
	b.WriteByte('\n')

	if m.loading {
		b.WriteString("Loading sandboxes…\n")
	} else if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
		b.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteByte('\n')
	}

	if len(m.list.Items()) == 0 && !m.loading && m.err == nil && m.daemonStatus.Running {
		b.WriteString("No sandboxes running.\n")
	} else {
		b.WriteString(m.list.View())
		b.WriteByte('\n')
	}

	if current := m.currentSandbox(); current != nil {
		detailStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).MarginBottom(1)
		b.WriteString(detailStyle.Render(m.detail(current)))
		b.WriteByte('\n')
	}

	help := fmt.Sprintf("Commands: q quit • r reload • s start daemon • o sort (%s) • t tree", m.sortBy)
	if !m.lastUpdated.IsZero() {
		help += fmt.Sprintf(" • last update %s", m.lastUpdated.Format(time.Kitchen))
	}
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func (m *Model) detail(sb *app.Sandbox) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pid=%d name=%s user=%s members=%d deepest=%s\n",
		sb.PID, valueOrDash(sb.Name), valueOrDash(sb.User), sb.Members, pidOrDash(sb.Deepest))
	fmt.Fprintf(&b, "cmd=%s\n", sb.Cmd)
	fmt.Fprintf(&b, "cpu=%.1f%% (user %d, system %d ticks)\n", sb.CPUPercent, sb.CPUUser, sb.CPUSystem)
	fmt.Fprintf(&b, "memory rss=%s shared=%s\n", humanize.IBytes(sb.Resident), humanize.IBytes(sb.Shared))
	fmt.Fprintf(&b, "network rx=%s (%s/s) tx=%s (%s/s)",
		humanize.Bytes(sb.RxBytes), humanize.Bytes(uint64(sb.RxRate)),
		humanize.Bytes(sb.TxBytes), humanize.Bytes(uint64(sb.TxRate)))
	if m.showTree && m.treePID == sb.PID {
		b.WriteString("\n")
		b.WriteString(renderTree(m.tree))
	}
	return b.String()
}

func renderTree(members []app.Member) string {
	if len(members) == 0 {
		return "loading tree…"
	}
	lines := make([]string, 0, len(members))
	for _, mem := range members {
		depth := mem.Level - 1
		if depth < 0 {
			depth = 0
		}
		lines = append(lines, fmt.Sprintf("%s%d %s", strings.Repeat("  ", depth), mem.PID, valueOrDash(mem.Cmd)))
	}
	return strings.Join(lines, "\n")
}

// sandboxItem adapts app.Sandbox to the bubbles list item interface.
type sandboxItem struct {
	Sandbox app.Sandbox
}

func (s sandboxItem) Title() string {
	return fmt.Sprintf("[pid=%d] %s (%s)", s.Sandbox.PID, valueOrDash(s.Sandbox.Name), valueOrDash(s.Sandbox.User))
}

func (s sandboxItem) Description() string {
	return fmt.Sprintf("cpu %.1f%% | rss %s | rx %s/s tx %s/s | %d procs",
		s.Sandbox.CPUPercent,
		humanize.IBytes(s.Sandbox.Resident),
		humanize.Bytes(uint64(s.Sandbox.RxRate)),
		humanize.Bytes(uint64(s.Sandbox.TxRate)),
		s.Sandbox.Members)
}

func (s sandboxItem) FilterValue() string {
	return fmt.Sprintf("%d %s %s %s", s.Sandbox.PID, s.Sandbox.Name, s.Sandbox.User, s.Sandbox.Cmd)
}

func (m *Model) currentSandbox() *app.Sandbox {
	if len(m.sandboxes) == 0 {
		return nil
	}
	idx := m.list.Index()
	if idx < 0 || idx >= len(m.sandboxes) {
		return nil
	}
	return &m.sandboxes[idx]
}

func valueOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func pidOrDash(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return fmt.Sprint(pid)
}

type tickMsg time.Time

type daemonStatusMsg struct {
	status app.DaemonStatus
}

type sandboxesLoadedMsg struct {
	sandboxes []app.Sandbox
}

type treeLoadedMsg struct {
	pid     int
	members []app.Member
}

type daemonStartedMsg struct{}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func checkDaemonStatusCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		status, err := ctrl.Status()
		if err != nil {
			return errMsg{err}
		}
		return daemonStatusMsg{status: status}
	}
}

func loadSandboxesCmd(ctrl Controller, filters app.ListFilters) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		sbs, err := ctrl.List(ctx, app.ListParams{
			Filters: filters,
			Timeout: requestTimeout,
		})
		if err != nil {
			return errMsg{err}
		}
		return sandboxesLoadedMsg{sandboxes: sbs}
	}
}

func loadTreeCmd(ctrl Controller, pid int) tea.Cmd {
	return func() tea.Msg {
		members, err := ctrl.Tree(context.Background(), pid, requestTimeout)
		if err != nil {
			return errMsg{err}
		}
		return treeLoadedMsg{pid: pid, members: members}
	}
}

func startDaemonCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		if _, err := ctrl.StartDaemon(); err != nil {
			return errMsg{err}
		}
		// Give the daemon a moment to bind the socket.
		time.Sleep(300 * time.Millisecond)
		return daemonStartedMsg{}
	}
}
