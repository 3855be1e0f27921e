// Command kvtop is a terminal dashboard that polls a Store's catalog
// shape and Prometheus counters and renders them, the way cmd/tui
// watches a live graph instance without a network hop in between.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	dto "github.com/prometheus/client_model/go"

	"github.com/retrokv/rkv"
	"github.com/retrokv/rkv/internal/logging"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginRight(2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type snapshot struct {
	sstables int
	memBytes int64
	counters map[string]float64
	gauges   map[string]float64
}

func takeSnapshot(store *rkv.Store) snapshot {
	snap := snapshot{
		sstables: store.SSTablesCount(),
		memBytes: store.Size(),
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
	}

	families, err := store.Metrics().Registry.Gather()
	if err != nil {
		return snap
	}
	for _, family := range families {
		name := family.GetName()
		for _, m := range family.GetMetric() {
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				snap.counters[name] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				snap.gauges[name] = m.GetGauge().GetValue()
			}
		}
	}
	return snap
}

type model struct {
	store     *rkv.Store
	startTime time.Time
	snap      snapshot
	width     int
}

func initialModel(store *rkv.Store) model {
	return model{
		store:     store,
		startTime: time.Now(),
		snap:      takeSnapshot(store),
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		m.snap = takeSnapshot(m.store)
		return m, tickCmd()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("kvtop"))
	s.WriteString("\n\n")

	uptime := time.Since(m.startTime).Round(time.Second)
	catalog := fmt.Sprintf(
		"Catalog\n"+
			"───────\n"+
			"SSTables:    %d\n"+
			"Memtable:    %d bytes\n"+
			"Uptime:      %s",
		m.snap.sstables, m.snap.memBytes, uptime,
	)

	throughput := fmt.Sprintf(
		"Throughput\n"+
			"──────────\n"+
			"Writes:      %.0f\n"+
			"Reads:       %.0f (%.0f hits)\n"+
			"Deletes:     %.0f\n"+
			"Flushes:     %.0f\n"+
			"Compactions: %.0f",
		counterValue(m.snap, "writes_total"),
		counterValue(m.snap, "reads_total"),
		counterValue(m.snap, "read_hits_total"),
		counterValue(m.snap, "deletes_total"),
		counterValue(m.snap, "flushes_total"),
		counterValue(m.snap, "compactions_total"),
	)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statsBoxStyle.Render(catalog),
		statsBoxStyle.Render(throughput),
	))

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("q: quit"))

	return s.String()
}

func counterValue(snap snapshot, suffix string) float64 {
	for name, value := range snap.counters {
		if strings.HasSuffix(name, suffix) {
			return value
		}
	}
	return 0
}

func main() {
	dir := "./data/kvtop"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	cfg := rkv.DefaultConfig()
	cfg.Name = "kvtop"
	cfg.Dir = dir

	store, err := rkv.Open(cfg, logging.NewNopLogger())
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	p := tea.NewProgram(initialModel(store), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("run tui: %v", err)
	}
}
