// Package tui renders the live execution dashboard.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dukex/botportal/pkg/artifacts"
	"github.com/dukex/botportal/pkg/client"
	"github.com/dukex/botportal/pkg/elapsed"
	"github.com/dukex/botportal/pkg/format"
	"github.com/dukex/botportal/pkg/models"
	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
)

// API is the part of the portal client the dashboard calls directly.
type API interface {
	artifacts.Lister
	CancelExecution(ctx context.Context, executionID string) (*client.CancelResult, error)
	DownloadFileURL(executionID, path string) string
}

// Source supplies the execution list, typically an execsync.Tracker.
type Source interface {
	Executions() []models.Execution
	Refresh(ctx context.Context) error
}

type tickMsg time.Time

type filesMsg struct {
	id    string
	files *models.ExecutionFiles
	err   error
}

type cancelledMsg struct {
	id     string
	result *client.CancelResult
	err    error
}

type refreshedMsg struct {
	err error
}

type Option func(*Model)

func WithTitle(title string) Option {
	return func(m *Model) {
		m.title = title
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(m *Model) {
		m.clock = clock
	}
}

func WithContext(ctx context.Context) Option {
	return func(m *Model) {
		m.ctx = ctx
	}
}

// Model is the bubbletea model of the execution dashboard.
type Model struct {
	ctx     context.Context
	api     API
	source  Source
	feed    *Feed
	browser *artifacts.Browser
	viewer  *artifacts.ImageNavigator
	viewing string
	clock   clockwork.Clock
	keys    KeyMap
	help    help.Model

	title      string
	executions []models.Execution
	cursor     int
	now        time.Time
	elapsed    map[timerKey]int64
	notice     string
	err        error
	width      int
	quitting   bool
}

func NewModel(api API, source Source, feed *Feed, opts ...Option) Model {
	m := Model{
		ctx:     context.Background(),
		api:     api,
		source:  source,
		feed:    feed,
		browser: artifacts.NewBrowser(api),
		clock:   clockwork.NewRealClock(),
		keys:    DefaultKeyMap,
		help:    help.New(),
		title:   "Executions",
	}

	for _, opt := range opts {
		opt(&m)
	}

	m.now = m.clock.Now()
	m.executions = source.Executions()
	m.advanceElapsed()

	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.feed.Wait(), tick(), m.refresh())
}

func tick() tea.Cmd {
	return tea.Tick(elapsed.TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refresh() tea.Cmd {
	source, ctx := m.source, m.ctx

	return func() tea.Msg {
		return refreshedMsg{err: source.Refresh(ctx)}
	}
}

func (m Model) loadFiles(id string, force bool) tea.Cmd {
	browser, ctx := m.browser, m.ctx

	return func() tea.Msg {
		var (
			files *models.ExecutionFiles
			err   error
		)

		if force {
			files, err = browser.Files(ctx, id, true)
		} else {
			files, err = browser.Expand(ctx, id)
		}

		return filesMsg{id: id, files: files, err: err}
	}
}

func (m Model) cancel(id string) tea.Cmd {
	api, source, ctx := m.api, m.source, m.ctx

	return func() tea.Msg {
		result, err := api.CancelExecution(ctx, id)
		if err == nil {
			_ = source.Refresh(ctx)
		}

		return cancelledMsg{id: id, result: result, err: err}
	}
}

// Selected returns the execution under the cursor.
func (m Model) Selected() (models.Execution, bool) {
	if m.cursor < 0 || m.cursor >= len(m.executions) {
		return models.Execution{}, false
	}

	return m.executions[m.cursor], true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

		return m, nil

	case tickMsg:
		m.now = m.clock.Now()
		m.advanceElapsed()

		return m, tick()

	case executionsMsg:
		m.setExecutions(msg.executions)

		return m, m.feed.Wait()

	case finishedMsg:
		m.notice = fmt.Sprintf("%s finished: %s", msg.execution.BotName, msg.execution.Status)

		var cmd tea.Cmd
		if m.browser.Expanded(msg.execution.ID) {
			cmd = m.loadFiles(msg.execution.ID, true)
		}

		return m, tea.Batch(m.feed.Wait(), cmd)

	case refreshedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.setExecutions(m.source.Executions())
		}

		return m, nil

	case filesMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("load files: %w", msg.err)
		}

		return m, nil

	case cancelledMsg:
		switch {
		case msg.err != nil:
			m.err = fmt.Errorf("cancel: %s", client.Message(msg.err))
		case msg.result != nil && msg.result.Killed:
			m.notice = "Execution stopped"
		default:
			m.notice = "Execution removed from the queue"
		}

		m.setExecutions(m.source.Executions())

		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}

	if m.viewer != nil && m.viewer.IsOpen() {
		switch {
		case key.Matches(msg, m.keys.Prev):
			m.viewer.Prev()
		case key.Matches(msg, m.keys.Next):
			m.viewer.Next()
		case key.Matches(msg, m.keys.Close):
			m.viewer.Close()
			m.viewer = nil
		}

		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.executions)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Toggle):
		selected, ok := m.Selected()
		if !ok {
			return m, nil
		}

		if m.browser.Expanded(selected.ID) {
			m.browser.Collapse(selected.ID)
			return m, nil
		}

		return m, m.loadFiles(selected.ID, false)

	case key.Matches(msg, m.keys.Cancel):
		selected, ok := m.Selected()
		if !ok || !selected.IsActive() {
			return m, nil
		}

		m.notice = "Cancelling " + selected.BotName

		return m, m.cancel(selected.ID)

	case key.Matches(msg, m.keys.Refresh):
		m.err = nil
		cmds := []tea.Cmd{m.refresh()}

		if selected, ok := m.Selected(); ok && m.browser.Expanded(selected.ID) {
			cmds = append(cmds, m.loadFiles(selected.ID, true))
		}

		return m, tea.Batch(cmds...)

	case key.Matches(msg, m.keys.Images):
		selected, ok := m.Selected()
		if !ok || !m.browser.Expanded(selected.ID) {
			return m, nil
		}

		files, ok := m.browser.Cached(selected.ID)
		if !ok {
			return m, nil
		}

		viewer := artifacts.NewImageNavigator(artifacts.Images(files))
		if !viewer.Open(0) {
			m.notice = "No images for this execution"
			return m, nil
		}

		m.viewer = viewer
		m.viewing = selected.ID
	}

	return m, nil
}

// setExecutions replaces the list and keeps the cursor on the same execution.
func (m *Model) setExecutions(executions []models.Execution) {
	var selectedID string
	if selected, ok := m.Selected(); ok {
		selectedID = selected.ID
	}

	m.executions = executions
	m.advanceElapsed()

	for i, e := range executions {
		if e.ID == selectedID {
			m.cursor = i
			return
		}
	}

	m.cursor = min(m.cursor, max(len(executions)-1, 0))
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if m.viewer != nil && m.viewer.IsOpen() {
		b.WriteString(m.renderViewer())
		b.WriteString("\n\n")
		b.WriteString(m.help.View(viewerHelp(m.keys)))

		return b.String()
	}

	b.WriteString(m.renderTable())

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.err.Error()))
	} else if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(m.notice))
	}

	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

func (m Model) renderHeader() string {
	active := 0
	for i := range m.executions {
		if m.executions[i].IsActive() {
			active++
		}
	}

	summary := dimStyle.Render(fmt.Sprintf("%d executions, %d active  %s",
		len(m.executions), active, m.now.Local().Format(time.TimeOnly)))

	return lipgloss.JoinHorizontal(lipgloss.Center, titleStyle.Render(m.title), summary)
}

func (m Model) renderTable() string {
	if len(m.executions) == 0 {
		return dimStyle.Render("  No executions yet")
	}

	rows := []string{headerStyle.Render(fmt.Sprintf("  %-15s %-26s %-19s %-9s %s",
		"STATUS", "BOT", "QUEUED", "TIME", "BY"))}

	for i := range m.executions {
		execution := m.executions[i]

		row := fmt.Sprintf("%s %-26s %-19s %-9s %s",
			statusStyle(execution.Status).Render(format.Status(execution.Status)),
			truncate(execution.BotName, 26),
			format.Date(execution.QueuedAt),
			m.timing(execution),
			triggeredBy(execution),
		)

		if i == m.cursor {
			rows = append(rows, selectedStyle.Render("> "+row))
		} else {
			rows = append(rows, "  "+row)
		}

		if m.browser.Expanded(execution.ID) {
			rows = append(rows, m.renderDetail(execution))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

type timerKey struct {
	id    string
	start string
}

// advanceElapsed recomputes the counter of every active execution. A row
// never shows less than it did on the previous pass while its start holds.
func (m *Model) advanceElapsed() {
	next := make(map[timerKey]int64, len(m.executions))

	for _, execution := range m.executions {
		key := timerKey{id: execution.ID, start: execution.TimerBase()}

		seconds := elapsed.Seconds(key.start, execution.IsActive(), m.now)
		if seconds == nil {
			continue
		}

		value := *seconds
		if shown, ok := m.elapsed[key]; ok && shown > value {
			value = shown
		}

		next[key] = value
	}

	m.elapsed = next
}

func (m Model) timing(execution models.Execution) string {
	if execution.IsActive() {
		if value, ok := m.elapsed[timerKey{id: execution.ID, start: execution.TimerBase()}]; ok {
			return format.Elapsed(&value)
		}

		return format.Elapsed(elapsed.Seconds(execution.TimerBase(), true, m.now))
	}

	return format.Duration(execution.DurationSeconds)
}

func triggeredBy(execution models.Execution) string {
	if execution.TriggeredByName != "" {
		return execution.TriggeredByName
	}

	if execution.TriggeredBy != "" {
		return execution.TriggeredBy
	}

	return format.Missing
}

func (m Model) renderDetail(execution models.Execution) string {
	lines := []string{
		labelStyle.Render("ID") + execution.ID,
		labelStyle.Render("Bot") + execution.BotID,
		labelStyle.Render("Queued") + format.Date(execution.QueuedAt),
		labelStyle.Render("Started") + format.OptionalDate(execution.StartedAt),
		labelStyle.Render("Completed") + format.OptionalDate(execution.CompletedAt),
	}

	if execution.RunFolder != "" {
		lines = append(lines, labelStyle.Render("Folder")+execution.RunFolder)
	}

	if execution.ExitCode != nil {
		lines = append(lines, labelStyle.Render("Exit code")+fmt.Sprint(*execution.ExitCode))
	}

	if execution.ErrorMessage != "" {
		lines = append(lines, labelStyle.Render("Error")+errorStyle.Render(execution.ErrorMessage))
	}

	files, ok := m.browser.Cached(execution.ID)

	switch {
	case !ok:
		lines = append(lines, "", dimStyle.Render("Loading files..."))
	case files.Count() == 0:
		lines = append(lines, "", dimStyle.Render("No files"))
	default:
		for _, group := range files.Categories() {
			lines = append(lines, "", headerStyle.Render(fmt.Sprintf("%s (%d)", group.Category, len(group.Files))))

			for _, file := range group.Files {
				lines = append(lines, fmt.Sprintf("  %-36s %9s  %s",
					truncate(file.Name, 36),
					humanize.IBytes(uint64(max(file.Size, 0))),
					dimStyle.Render(artifacts.Classify(file.Name).String())))
			}
		}

		if images := artifacts.Images(files); len(images) > 0 {
			lines = append(lines, "", dimStyle.Render(fmt.Sprintf("%d images, press i to browse", len(images))))
		}
	}

	return detailStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderViewer() string {
	file, ok := m.viewer.Current()
	if !ok {
		return ""
	}

	position, total := m.viewer.Position()

	lines := []string{
		headerStyle.Render(fmt.Sprintf("Image %d/%d", position, total)),
		file.Name,
		dimStyle.Render(humanize.IBytes(uint64(max(file.Size, 0)))),
		"",
		m.api.DownloadFileURL(m.viewing, file.Path),
	}

	return viewerStyle.Render(strings.Join(lines, "\n"))
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}

	return string(runes[:width-1]) + "…"
}
