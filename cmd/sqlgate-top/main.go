package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-sqlgate/pkg/cabinet"
	"github.com/dd0wney/cluso-sqlgate/pkg/collector"
	"github.com/dd0wney/cluso-sqlgate/pkg/coordinator"
	"github.com/dd0wney/cluso-sqlgate/pkg/seer"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#FF00FF")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666")).
				Padding(0, 2)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginRight(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	degradedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type view int

const (
	clusterView view = iota
	replicasView
	writesView
	electionView
)

const viewCount = 4

type keyMap struct {
	Tab      key.Binding
	ShiftTab key.Binding
	Refresh  key.Binding
	Inspect  key.Binding
	Quit     key.Binding
	Up       key.Binding
	Down     key.Binding
}

var keys = keyMap{
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next view"),
	),
	ShiftTab: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev view"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Inspect: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "inspect replica"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("up/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("down/j", "down"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Refresh, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ShiftTab, k.Refresh, k.Inspect},
		{k.Up, k.Down, k.Quit},
	}
}

// statusResponse mirrors the coordinator's /status payload.
type statusResponse struct {
	Cluster       coordinator.ClusterView `json:"cluster"`
	FailoverPhase string                  `json:"failover_phase"`
}

// clusterData is one complete poll of both services.
type clusterData struct {
	snapshot    *collector.Snapshot
	status      *statusResponse
	consistency map[string]coordinator.LevelReport
	selection   *cabinet.Selection
	election    *seer.ElectionResult
	err         error
	fetchedAt   time.Time
}

type fetchMsg clusterData

// replicaMsg carries one replica's record fetched on demand from the
// collector, bypassing the snapshot cycle.
type replicaMsg struct {
	rec *collector.ReplicaRecord
	err error
}

type tickMsg time.Time

type model struct {
	coordinatorURL string
	metrics        *collector.Client
	httpClient     *http.Client

	currentView  view
	replicaTable table.Model
	help         help.Model
	keys         keyMap
	width        int
	height       int

	data      clusterData
	detail    *collector.ReplicaRecord
	detailErr error
	startTime time.Time
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func initialModel(coordinatorURL, metricsURL string) model {
	columns := []table.Column{
		{Title: "Replica", Width: 12},
		{Title: "Health", Width: 10},
		{Title: "Latency", Width: 10},
		{Title: "Lag", Width: 6},
		{Title: "Uptime", Width: 10},
		{Title: "Crashes", Width: 8},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#FF00FF")).
		Bold(false)
	t.SetStyles(s)

	return model{
		coordinatorURL: coordinatorURL,
		metrics:        collector.NewClient(metricsURL, 3*time.Second),
		httpClient:     &http.Client{Timeout: 3 * time.Second},
		currentView:    clusterView,
		replicaTable:   t,
		help:           help.New(),
		keys:           keys,
		startTime:      time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tickCmd(2*time.Second))
}

func (m model) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		data := clusterData{fetchedAt: time.Now()}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		snap, err := m.metrics.FetchSnapshot(ctx)
		if err != nil {
			data.err = fmt.Errorf("collector: %w", err)
		} else {
			data.snapshot = snap
			sel := cabinet.SelectQuorum(snap)
			data.selection = &sel
			if result, eerr := seer.ElectLeader(snap, nil); eerr == nil {
				data.election = result
			}
		}

		var status statusResponse
		if err := m.getJSON(m.coordinatorURL+"/status", &status); err != nil {
			if data.err == nil {
				data.err = fmt.Errorf("coordinator: %w", err)
			}
		} else {
			data.status = &status
		}

		var levels map[string]coordinator.LevelReport
		if err := m.getJSON(m.coordinatorURL+"/consistency-metrics", &levels); err == nil {
			data.consistency = levels
		}

		return fetchMsg(data)
	}
}

// inspectCmd fetches the record for the replica selected in the table.
func (m model) inspectCmd() tea.Cmd {
	row := m.replicaTable.SelectedRow()
	if len(row) == 0 {
		return nil
	}
	replicaID := row[0]
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		rec, err := m.metrics.FetchReplica(ctx, replicaID)
		return replicaMsg{rec: rec, err: err}
	}
}

func (m model) getJSON(url string, out any) error {
	resp, err := m.httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tickCmd(2*time.Second))

	case fetchMsg:
		m.data = clusterData(msg)
		m.updateReplicaTable()

	case replicaMsg:
		m.detail = msg.rec
		m.detailErr = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Tab):
			m.currentView = (m.currentView + 1) % viewCount

		case key.Matches(msg, m.keys.ShiftTab):
			if m.currentView == 0 {
				m.currentView = viewCount - 1
			} else {
				m.currentView--
			}

		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetchCmd()

		case key.Matches(msg, m.keys.Inspect):
			if m.currentView == replicasView {
				return m, m.inspectCmd()
			}
		}
	}

	if m.currentView == replicasView {
		m.replicaTable, cmd = m.replicaTable.Update(msg)
	}
	return m, cmd
}

func (m *model) updateReplicaTable() {
	if m.data.snapshot == nil {
		return
	}

	rows := make([]table.Row, 0, len(m.data.snapshot.Replicas))
	for _, r := range m.data.snapshot.Replicas {
		health := "healthy"
		if !r.IsHealthy {
			health = "UNHEALTHY"
		}
		rows = append(rows, table.Row{
			r.ReplicaID,
			health,
			fmt.Sprintf("%.1fms", r.LatencyMs),
			fmt.Sprintf("%d", r.ReplicationLag),
			fmt.Sprintf("%.0fs", r.UptimeSeconds),
			fmt.Sprintf("%d", r.CrashCount),
		})
	}
	m.replicaTable.SetRows(rows)
}

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("🚪 sqlgate cluster monitor"))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	switch m.currentView {
	case clusterView:
		s.WriteString(m.renderCluster())
	case replicasView:
		s.WriteString(m.renderReplicas())
	case writesView:
		s.WriteString(m.renderWrites())
	case electionView:
		s.WriteString(m.renderElection())
	}

	if m.data.err != nil {
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render("✗ " + m.data.err.Error()))
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))

	return s.String()
}

func (m model) renderTabs() string {
	tabs := []string{"Cluster", "Replicas", "Writes", "Election"}
	var rendered []string

	for i, tab := range tabs {
		if view(i) == m.currentView {
			rendered = append(rendered, activeTabStyle.Render(tab))
		} else {
			rendered = append(rendered, inactiveTabStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m model) renderCluster() string {
	if m.data.status == nil {
		return contentStyle.Render(helpStyle.Render("Waiting for coordinator..."))
	}

	status := m.data.status
	phase := status.FailoverPhase
	phaseRendered := healthyStyle.Render(phase)
	if phase != "stable" {
		phaseRendered = degradedStyle.Render(phase)
	}

	origin := "original"
	if !status.Cluster.MasterIsOriginal {
		origin = "promoted"
	}

	topo := fmt.Sprintf(`🗄  Topology
━━━━━━━━━━━━━━━
Master:    %s (%s)
Host:      %s
Replicas:  %d
Failover:  %s
Mode:      %s`,
		status.Cluster.MasterID,
		origin,
		status.Cluster.MasterHost,
		len(status.Cluster.Replicas),
		phaseRendered,
		status.Cluster.ReplicationMode,
	)

	quorum := "📊 Quorum\n━━━━━━━━━━━━━━━\nNo snapshot yet"
	if m.data.selection != nil {
		sel := m.data.selection
		state := healthyStyle.Render("satisfied")
		if !sel.Satisfied {
			state = errorStyle.Render("NOT satisfied")
		}
		quorum = fmt.Sprintf(`📊 Quorum
━━━━━━━━━━━━━━━
Required:  %d of %d
Members:   %s
State:     %s`,
			sel.QuorumSize,
			sel.TotalReplicas,
			strings.Join(sel.Quorum, ", "),
			state,
		)
	}

	return contentStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Top, boxStyle.Render(topo), boxStyle.Render(quorum)),
	)
}

func (m model) renderReplicas() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("Replica Metrics"))
	s.WriteString("\n\n")

	if m.data.snapshot == nil {
		s.WriteString(helpStyle.Render("Waiting for collector snapshot..."))
	} else {
		s.WriteString(m.replicaTable.View())
		s.WriteString("\n\n")
		age := time.Since(m.data.fetchedAt).Round(time.Second)
		s.WriteString(helpStyle.Render(fmt.Sprintf("Snapshot age: %s • master timestamp: %d",
			age, m.data.snapshot.MasterTimestamp)))
	}

	if m.detailErr != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("inspect: %v", m.detailErr)))
	} else if m.detail != nil {
		health := healthyStyle.Render("healthy")
		if !m.detail.IsHealthy {
			health = errorStyle.Render("UNHEALTHY")
		}
		detail := fmt.Sprintf("%s  %s\nlatency %.2fms • lag %d • uptime %.0fs • crashes %d\nlast probed %s",
			titleStyle.Render(m.detail.ReplicaID), health,
			m.detail.LatencyMs, m.detail.ReplicationLag,
			m.detail.UptimeSeconds, m.detail.CrashCount,
			m.detail.LastUpdated.Format(time.RFC3339))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(detail))
	}

	return contentStyle.Render(s.String())
}

func (m model) renderWrites() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("Write Consistency"))
	s.WriteString("\n\n")

	if len(m.data.consistency) == 0 {
		s.WriteString(helpStyle.Render("No writes recorded yet"))
		return contentStyle.Render(s.String())
	}

	levels := make([]string, 0, len(m.data.consistency))
	for level := range m.data.consistency {
		levels = append(levels, level)
	}
	sort.Strings(levels)

	for _, level := range levels {
		report := m.data.consistency[level]
		bar := strings.Repeat("█", int(report.SuccessRate*30))
		s.WriteString(fmt.Sprintf("%-10s %6d writes  %5.1f%% ok  avg %.2fms\n  %s\n\n",
			level, report.Count, report.SuccessRate*100, report.AverageLatencyMs,
			healthyStyle.Render(bar)))
	}

	return contentStyle.Render(s.String())
}

func (m model) renderElection() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("Leader Election Preview"))
	s.WriteString("\n\n")

	if m.data.election == nil {
		s.WriteString(helpStyle.Render("No healthy candidates in the current snapshot"))
		return contentStyle.Render(s.String())
	}

	e := m.data.election
	content := fmt.Sprintf(`🔮 Would-be leader
━━━━━━━━━━━━━━━━━━━
Candidate:   %s
Total score: %.4f

Latency:     %.4f  (%.1fms)
Stability:   %.4f  (%.0fs up, %d crashes)
Lag:         %.4f  (%d behind)`,
		e.LeaderID,
		e.Score,
		e.LatencyScore, e.LatencyMs,
		e.StabilityScore, e.UptimeSeconds, e.CrashCount,
		e.LagScore, e.ReplicationLag,
	)

	s.WriteString(boxStyle.Render(content))
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("Preview only: scores what SEER would elect if the master failed now"))

	return contentStyle.Render(s.String())
}

func main() {
	coordinatorURL := flag.String("coordinator", "http://localhost:9000", "Coordinator base URL")
	metricsURL := flag.String("metrics", "http://localhost:9003", "Collector base URL")
	flag.Parse()

	p := tea.NewProgram(initialModel(*coordinatorURL, *metricsURL), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
}
