// Package tui is the interactive explorer: one view combining
// navigation and incremental search over the catalog, plus a downloads
// view. Search follows the keystrokes with a debounce; every search
// pass supersedes the previous one, and late results from superseded
// passes are discarded by generation counter.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/JohnDeved/myrient-explorer/internal/catalog"
	"github.com/JohnDeved/myrient-explorer/internal/config"
	"github.com/JohnDeved/myrient-explorer/internal/download"
	"github.com/JohnDeved/myrient-explorer/internal/nav"
	"github.com/JohnDeved/myrient-explorer/internal/search"
)

// Tab identifies the active view.
type Tab int

const (
	TabExplorer Tab = iota
	TabDownloads
)

// Messages
type initDoneMsg struct{ err error }

type debounceMsg struct{ gen int }

type scanStartedMsg struct {
	gen   int
	query string
	scan  *search.Scan
	err   error
}

// batchMsg carries one deep-scan batch plus the channel to wait on for
// the next one. Stale generations drop the channel with the results.
type batchMsg struct {
	gen     int
	results []search.Result
	ok      bool
	ch      <-chan []search.Result
}

type downloadUpdateMsg struct{}

type statusClearMsg struct{ id int }

// Model is the main Bubble Tea model.
type Model struct {
	store     *catalog.Store
	engine    *search.Engine
	presenter *search.Presenter
	dlManager *download.Manager
	cfg       *config.Config

	activeTab Tab
	nav       nav.State
	scope     search.Scope
	target    search.Target

	input     textinput.Model
	results   resultsModel
	downloads downloadsModel
	spinner   spinner.Model

	searchGen int
	lastQuery string
	loading   bool
	scanning  bool

	width       int
	height      int
	statusMsg   string
	statusID    int
	quitConfirm bool
	fatalErr    error
}

// NewModel creates the TUI model.
func NewModel(store *catalog.Store, dlm *download.Manager, cfg *config.Config) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	ti := textinput.New()
	ti.Placeholder = "Search games, platforms, collections..."
	ti.CharLimit = 256
	ti.Width = 60
	ti.Prompt = "Search: "
	ti.PromptStyle = searchPromptStyle
	ti.Focus()

	return Model{
		store:     store,
		engine:    search.NewEngine(store, nil),
		presenter: search.NewPresenter(cfg.PageSize),
		dlManager: dlm,
		cfg:       cfg,
		activeTab: TabExplorer,
		nav:       nav.New(),
		target:    search.TargetFiles,
		input:     ti,
		results:   newResultsModel(),
		downloads: newDownloadsModel(),
		spinner:   s,
	}
}

func (m Model) Init() tea.Cmd {
	store := m.store
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			return initDoneMsg{err: store.Init(ctx)}
		},
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		viewHeight := m.height - 9 // header, tabs, input, mode line, status bar
		m.results.height = viewHeight
		m.downloads.height = viewHeight
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case initDoneMsg:
		if msg.err != nil {
			m.fatalErr = msg.err
			return m, nil
		}
		return m, m.startScan("")

	case debounceMsg:
		if msg.gen != m.searchGen {
			return m, nil
		}
		return m, m.startScan(m.input.Value())

	case scanStartedMsg:
		if msg.gen != m.searchGen {
			if msg.scan != nil {
				msg.scan.Cancel()
			}
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.scanning = false
			return m, m.setStatus(fmt.Sprintf("Search failed: %v", msg.err))
		}
		m.lastQuery = msg.query
		m.presenter.Reset(msg.query)
		m.presenter.Merge(msg.scan.Immediate)
		m.results.setItems(m.presenter.Window())
		m.results.goHome()
		m.scanning = true
		return m, waitForBatch(msg.gen, msg.scan.Batches)

	case batchMsg:
		if msg.gen != m.searchGen {
			return m, nil
		}
		if !msg.ok {
			m.scanning = false
			return m, nil
		}
		m.presenter.Merge(msg.results)
		m.results.setItems(m.presenter.Window())
		return m, waitForBatch(msg.gen, msg.ch)

	case downloadUpdateMsg:
		m.downloads.setItems(m.dlManager.Items())
		return m, nil

	case statusClearMsg:
		if msg.id == m.statusID {
			m.statusMsg = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	// Remaining messages (cursor blink and the like) belong to the
	// search input.
	if m.activeTab == TabExplorer {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func waitForBatch(gen int, ch <-chan []search.Result) tea.Cmd {
	return func() tea.Msg {
		results, ok := <-ch
		return batchMsg{gen: gen, results: results, ok: ok, ch: ch}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.fatalErr != nil {
		return m, tea.Quit
	}

	// Global keys.
	switch key {
	case "ctrl+c":
		if m.quitConfirm {
			m.dlManager.CancelAll()
			return m, tea.Quit
		}
		if m.dlManager.HasActive() {
			m.quitConfirm = true
			return m, m.setStatus("Active downloads running. Press Ctrl+C again to cancel and quit, or Esc to stay")
		}
		return m, tea.Quit

	case "tab", "shift+tab":
		if m.activeTab == TabExplorer {
			m.activeTab = TabDownloads
			m.downloads.setItems(m.dlManager.Items())
		} else {
			m.activeTab = TabExplorer
		}
		return m, nil
	}

	switch m.activeTab {
	case TabExplorer:
		return m.handleExplorerKey(key, msg)
	case TabDownloads:
		return m.handleDownloadsKey(key)
	}
	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		if m.activeTab == TabExplorer {
			m.results.moveUp()
		} else {
			m.downloads.moveUp()
		}
	case tea.MouseButtonWheelDown:
		if m.activeTab == TabExplorer {
			m.results.moveDown()
			return m.maybeGrow()
		}
		m.downloads.moveDown()
	}
	return m, nil
}

func (m Model) handleExplorerKey(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case "up":
		m.results.moveUp()
		return m, nil
	case "down":
		m.results.moveDown()
		return m.maybeGrow()
	case "pgup":
		m.results.pageUp()
		return m, nil
	case "pgdown":
		m.results.pageDown()
		return m.maybeGrow()
	case "ctrl+home":
		m.results.goHome()
		return m, nil
	case "ctrl+end":
		m.results.goEnd()
		return m.maybeGrow()

	case "enter":
		return m.activateSelection()

	case "esc":
		if m.quitConfirm {
			m.quitConfirm = false
			return m, m.setStatus("Quit canceled")
		}
		if m.input.Value() != "" {
			m.input.SetValue("")
			return m, m.clearSearch()
		}
		return m.navigateUp()

	case "backspace":
		if m.input.Value() == "" {
			return m.navigateUp()
		}
	}

	// Scope and target toggles.
	switch key {
	case "ctrl+s":
		if m.scope == search.ScopeShallow {
			m.scope = search.ScopeDeep
		} else {
			m.scope = search.ScopeShallow
		}
		return m, m.restartSearch()
	case "ctrl+t":
		switch m.target {
		case search.TargetFiles:
			m.target = search.TargetFolders
		case search.TargetFolders:
			m.target = search.TargetBoth
		default:
			m.target = search.TargetFiles
		}
		return m, m.restartSearch()
	}

	// Everything else goes to the search input.
	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	after := m.input.Value()
	if after == before {
		return m, cmd
	}
	if strings.TrimSpace(after) == "" {
		return m, tea.Batch(cmd, m.clearSearch())
	}
	m.searchGen++
	gen := m.searchGen
	debounce := time.Duration(m.cfg.DebounceMs) * time.Millisecond
	return m, tea.Batch(cmd, tea.Tick(debounce, func(time.Time) tea.Msg {
		return debounceMsg{gen: gen}
	}))
}

func (m Model) handleDownloadsKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q":
		return m, tea.Quit
	case "up", "k":
		m.downloads.moveUp()
	case "down", "j":
		m.downloads.moveDown()
	case "c":
		if sel := m.downloads.selected(); sel != nil {
			m.dlManager.Cancel(sel.ID)
			return m, m.setStatus(fmt.Sprintf("Cancelled: %s", sel.Name))
		}
	case "R":
		if sel := m.downloads.selected(); sel != nil {
			if m.dlManager.Retry(sel.ID) {
				return m, m.setStatus(fmt.Sprintf("Retrying: %s", sel.Name))
			}
			return m, m.setStatus("Selected download is not retryable")
		}
	case "x":
		removed := m.dlManager.ClearFinished()
		if removed > 0 {
			m.downloads.setItems(m.dlManager.Items())
			return m, m.setStatus(fmt.Sprintf("Cleared %d finished downloads", removed))
		}
		return m, m.setStatus("No finished downloads to clear")
	case "r":
		m.downloads.setItems(m.dlManager.Items())
	}
	return m, nil
}

// maybeGrow widens the reveal window when the cursor nears the bottom.
func (m Model) maybeGrow() (Model, tea.Cmd) {
	if m.results.nearBottom() && m.presenter.HasMore() {
		m.presenter.Grow()
		m.results.setItems(m.presenter.Window())
	}
	return m, nil
}

func (m Model) activateSelection() (Model, tea.Cmd) {
	sel := m.results.selected()
	if sel == nil {
		return m, nil
	}

	if sel.Kind == search.KindFolder {
		m.nav.SelectProvider(sel.Provider)
		m.nav.SelectPlatform(sel.Name)
		m.input.SetValue("")
		m.target = search.TargetFiles
		return m, m.restartSearch()
	}

	if sel.Entry == nil {
		return m, nil
	}
	subdir := sel.Provider
	if sel.Platform != "" {
		subdir += "/" + sel.Platform
	}
	name := sel.Entry.Name
	_, created := m.dlManager.Enqueue(name, sel.Entry.URL, subdir)
	if !created {
		return m, m.setStatus(fmt.Sprintf("Already queued: %s", name))
	}
	return m, m.setStatus(fmt.Sprintf("Queued: %s", name))
}

func (m Model) navigateUp() (Model, tea.Cmd) {
	switch {
	case m.nav.InPlatform():
		m.nav.SelectProvider(m.nav.Provider)
	case m.nav.InProvider():
		m.nav.Reset()
	default:
		return m, nil
	}
	return m, m.restartSearch()
}

// clearSearch resets the view synchronously and re-issues the browse
// listing for the current location. No debounce: clearing must feel
// instant.
func (m *Model) clearSearch() tea.Cmd {
	m.engine.CancelActive()
	m.scanning = false
	m.presenter.Reset("")
	m.results.reset()
	return m.startScan("")
}

// restartSearch re-runs the current query immediately, bypassing the
// debounce. Used after navigation, scope, or target changes.
func (m *Model) restartSearch() tea.Cmd {
	return m.startScan(m.input.Value())
}

func (m *Model) startScan(query string) tea.Cmd {
	m.searchGen++
	gen := m.searchGen
	m.loading = true

	engine := m.engine
	state := m.nav
	cfg := search.Config{Scope: m.scope, Target: m.target}
	return func() tea.Msg {
		scan, err := engine.Search(context.Background(), gen, query, state, cfg)
		return scanStartedMsg{gen: gen, query: query, scan: scan, err: err}
	}
}

func (m Model) View() string {
	if m.fatalErr != nil {
		return errorStyle.Render(fmt.Sprintf("\n  Failed to load catalog: %v\n\n", m.fatalErr)) +
			helpStyle.Render("  Press any key to exit.\n")
	}
	if m.width == 0 {
		return "Loading..."
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("  Myrient Explorer  "))
	sb.WriteString("\n")

	tabs := []struct {
		name string
		tab  Tab
	}{
		{"Explorer", TabExplorer},
		{"Downloads", TabDownloads},
	}
	for _, t := range tabs {
		label := " " + t.name + " "
		if m.activeTab == t.tab {
			sb.WriteString(tabActiveStyle.Render(label))
		} else {
			sb.WriteString(tabInactiveStyle.Render(label))
		}
		sb.WriteString(" ")
	}
	if n := m.dlManager.ActiveCount(); n > 0 {
		sb.WriteString(successStyle.Render(fmt.Sprintf(" [%d active]", n)))
	}
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")

	if m.activeTab == TabDownloads {
		sb.WriteString(m.downloads.view(m.width))
	} else {
		sb.WriteString(m.explorerView())
	}

	statusLine := m.statusMsg
	if statusLine == "" {
		statusLine = m.defaultStatus()
	}
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")
	sb.WriteString(statusBarStyle.Width(m.width).Render(statusLine))

	return sb.String()
}

func (m Model) explorerView() string {
	var sb strings.Builder

	breadWidth := m.width - 2
	if breadWidth < 8 {
		breadWidth = 8
	}
	sb.WriteString(breadcrumbStyle.Render(truncateText(m.breadcrumb(), breadWidth)))
	sb.WriteString("\n")

	sb.WriteString(padToWidth(m.input.View(), m.width))
	sb.WriteString("\n")

	mode := fmt.Sprintf("  scope: %s   target: %s", m.scopeLabel(), m.target)
	if m.loading || m.scanning {
		mode += fmt.Sprintf("   %s scanning...", m.spinner.View())
	} else {
		mode += fmt.Sprintf("   %d results", m.presenter.Len())
	}
	sb.WriteString(helpStyle.Render(mode))
	sb.WriteString("\n")

	if m.presenter.Len() == 0 && !m.loading && !m.scanning {
		if m.lastQuery != "" {
			sb.WriteString(helpStyle.Render("\n  No results found.\n"))
		} else {
			sb.WriteString(helpStyle.Render("\n  (empty)\n"))
		}
		return sb.String()
	}

	sb.WriteString(m.results.view(m.width, m.presenter.Len(), m.presenter.HasMore()))
	return sb.String()
}

func (m Model) breadcrumb() string {
	switch {
	case m.nav.AtRoot():
		return "All collections"
	case m.nav.InProvider():
		return strings.ReplaceAll(m.nav.Provider, "_", " ")
	default:
		return strings.ReplaceAll(m.nav.Provider, "_", " ") + " › " + m.nav.Platform
	}
}

func (m Model) scopeLabel() string {
	if m.scope == search.ScopeDeep {
		return "deep"
	}
	return "shallow"
}

func (m Model) defaultStatus() string {
	if m.activeTab == TabDownloads {
		return "j/k:navigate  c:cancel  R:retry failed  x:clear done  Tab:explorer  q:quit"
	}
	return "type:search  Up/Down:navigate  Enter:open/download  Esc:clear/up  Ctrl+S:scope  Ctrl+T:target  Tab:downloads"
}

func (m *Model) setStatus(msg string) tea.Cmd {
	m.statusMsg = msg
	m.statusID++
	id := m.statusID
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return statusClearMsg{id: id}
	})
}

// Run starts the TUI.
func Run(store *catalog.Store, dlm *download.Manager, cfg *config.Config) error {
	m := NewModel(store, dlm, cfg)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	dlm.SetOnChange(func() {
		p.Send(downloadUpdateMsg{})
	})

	_, err := p.Run()
	return err
}
