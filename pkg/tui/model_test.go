package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dukex/botportal/pkg/client"
	"github.com/dukex/botportal/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu        sync.Mutex
	files     map[string]*models.ExecutionFiles
	listCalls int
	cancelled []string
	killed    bool
}

func (f *fakeAPI) ExecutionFiles(_ context.Context, id string) (*models.ExecutionFiles, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++

	files, ok := f.files[id]
	if !ok {
		return &models.ExecutionFiles{}, nil
	}

	return files, nil
}

func (f *fakeAPI) CancelExecution(_ context.Context, id string) (*client.CancelResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled = append(f.cancelled, id)

	return &client.CancelResult{OK: true, Killed: f.killed}, nil
}

func (f *fakeAPI) DownloadFileURL(id, path string) string {
	return "http://portal.test/api/executions/" + id + "/download/" + path
}

type fakeSource struct {
	executions []models.Execution
	refreshes  int
}

func (s *fakeSource) Executions() []models.Execution { return s.executions }

func (s *fakeSource) Refresh(context.Context) error {
	s.refreshes++
	return nil
}

func strptr(s string) *string { return &s }

func sampleExecutions() []models.Execution {
	return []models.Execution{
		{
			ID:              "e-3",
			BotID:           "robot-extraccion-mongo",
			BotName:         "Extraccion Mongo",
			Status:          models.ExecutionStatusRunning,
			QueuedAt:        "2025-03-10T08:59:00.000000",
			StartedAt:       strptr("2025-03-10T09:00:00.000000"),
			TriggeredByName: "Operator",
		},
		{
			ID:              "e-2",
			BotID:           "rpa-moni-objetos",
			BotName:         "Moni Objetos",
			Status:          models.ExecutionStatusCompleted,
			QueuedAt:        "2025-03-09T10:00:00.000000",
			StartedAt:       strptr("2025-03-09T10:00:01.000000"),
			CompletedAt:     strptr("2025-03-09T10:00:13.000000"),
			DurationSeconds: 12.3,
			RunFolder:       "ejecuciones/rpa-moni-objetos/20250309_100001",
			TriggeredBy:     "scheduler",
		},
	}
}

func newTestModel(t *testing.T) (Model, *fakeAPI, *fakeSource) {
	t.Helper()

	api := &fakeAPI{files: map[string]*models.ExecutionFiles{
		"e-2": {
			Logs: []models.ExecutionFile{{Name: "rpa-moni-objetos.log", Size: 2048, Path: "logs/rpa-moni-objetos.log"}},
			Resultados: []models.ExecutionFile{
				{Name: "reporte.csv", Size: 100, Path: "resultados/reporte.csv"},
				{Name: "captura_01.png", Size: 5000, Path: "resultados/captura_01.png"},
				{Name: "captura_02.png", Size: 5000, Path: "resultados/captura_02.png"},
			},
		},
	}}
	source := &fakeSource{executions: sampleExecutions()}

	now, err := time.ParseInLocation("2006-01-02T15:04:05", "2025-03-10T09:01:05", time.Local)
	require.NoError(t, err)

	m := NewModel(api, source, nil, WithClock(clockwork.NewFakeClockAt(now)))

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})

	return updated.(Model), api, source
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()

	var cmd tea.Cmd

	for _, k := range keys {
		var msg tea.KeyMsg

		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		case "left":
			msg = tea.KeyMsg{Type: tea.KeyLeft}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}

		var updated tea.Model
		updated, cmd = m.Update(msg)
		m = updated.(Model)
	}

	return m, cmd
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)

	updated, _ := m.Update(cmd())

	return updated.(Model)
}

func TestView_RendersRows(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestModel(t)
	view := m.View()

	assert.Contains(t, view, "2 executions, 1 active")
	assert.Contains(t, view, "Extraccion Mongo")
	assert.Contains(t, view, "Moni Objetos")
	assert.Contains(t, view, "01:05", "live elapsed for the running execution")
	assert.Contains(t, view, "12.3s", "final duration for the finished execution")
	assert.Contains(t, view, "Operator")
	assert.Contains(t, view, "scheduler")
}

func TestView_Empty(t *testing.T) {
	t.Parallel()

	m := NewModel(&fakeAPI{}, &fakeSource{}, nil)

	assert.Contains(t, m.View(), "No executions yet")
}

func TestCursorNavigation(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestModel(t)

	m, _ = press(t, m, "k")
	assert.Equal(t, 0, m.cursor)

	m, _ = press(t, m, "j", "j", "j")
	assert.Equal(t, 1, m.cursor)

	selected, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, "e-2", selected.ID)
}

func TestTick_AdvancesElapsed(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestModel(t)
	clock := m.clock.(*clockwork.FakeClock)

	clock.Advance(10 * time.Second)

	updated, cmd := m.Update(tickMsg(clock.Now()))
	m = updated.(Model)

	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "01:15")
}

func TestTick_ElapsedNeverDecreases(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestModel(t)
	clock := m.clock.(*clockwork.FakeClock)

	steps := []struct {
		name    string
		advance time.Duration
		want    string
	}{
		{name: "forward", advance: 10 * time.Second, want: "01:15"},
		{name: "clock steps back", advance: -40 * time.Second, want: "01:15"},
		{name: "still behind", advance: 20 * time.Second, want: "01:15"},
		{name: "caught up", advance: 25 * time.Second, want: "01:20"},
	}

	for _, step := range steps {
		clock.Advance(step.advance)

		updated, _ := m.Update(tickMsg(clock.Now()))
		m = updated.(Model)

		assert.Contains(t, m.View(), step.want, step.name)
	}
}

func TestToggle_LoadsFilesOnce(t *testing.T) {
	t.Parallel()

	m, api, _ := newTestModel(t)

	m, cmd := press(t, m, "j", "enter")
	m = run(t, m, cmd)

	view := m.View()
	assert.Contains(t, view, "e-2")
	assert.Contains(t, view, "ejecuciones/rpa-moni-objetos/20250309_100001")
	assert.Contains(t, view, "logs (1)")
	assert.Contains(t, view, "resultados (3)")
	assert.Contains(t, view, "2 images, press i to browse")

	m, cmd = press(t, m, "enter")
	assert.Nil(t, cmd)
	assert.NotContains(t, m.View(), "resultados (3)")

	m, cmd = press(t, m, "enter")
	_ = run(t, m, cmd)

	assert.Equal(t, 1, api.listCalls, "a second expand uses the cache")
}

func TestImageViewer(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestModel(t)

	m, cmd := press(t, m, "j", "enter")
	m = run(t, m, cmd)

	m, _ = press(t, m, "i")
	view := m.View()
	assert.Contains(t, view, "Image 1/2")
	assert.Contains(t, view, "captura_01.png")
	assert.Contains(t, view, "http://portal.test/api/executions/e-2/download/resultados/captura_01.png")

	m, _ = press(t, m, "right")
	assert.Contains(t, m.View(), "Image 2/2")

	m, _ = press(t, m, "right")
	assert.Contains(t, m.View(), "Image 2/2", "next stops at the last image")

	m, _ = press(t, m, "left")
	assert.Contains(t, m.View(), "Image 1/2")

	m, _ = press(t, m, "j")
	assert.Equal(t, 1, m.cursor, "list keys are inactive while viewing")

	m, _ = press(t, m, "esc")
	assert.NotContains(t, m.View(), "Image 1/2")
	assert.Contains(t, m.View(), "resultados (3)")
}

func TestImageViewer_NoImages(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestModel(t)

	m, cmd := press(t, m, "enter")
	m = run(t, m, cmd)

	m, _ = press(t, m, "i")
	assert.Nil(t, m.viewer)
	assert.Contains(t, m.View(), "No images for this execution")
}

func TestCancel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		moves     []string
		killed    bool
		wantCall  bool
		wantLabel string
	}{
		{name: "running execution is killed", killed: true, wantCall: true, wantLabel: "Execution stopped"},
		{name: "finished execution is ignored", moves: []string{"j"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, api, source := newTestModel(t)
			api.killed = tt.killed

			m, _ = press(t, m, tt.moves...)
			m, cmd := press(t, m, "x")

			if !tt.wantCall {
				assert.Nil(t, cmd)
				assert.Empty(t, api.cancelled)

				return
			}

			m = run(t, m, cmd)

			assert.Equal(t, []string{"e-3"}, api.cancelled)
			assert.Equal(t, 1, source.refreshes)
			assert.Contains(t, m.View(), tt.wantLabel)
		})
	}
}

func TestExecutionsMsg_KeepsSelection(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestModel(t)
	m, _ = press(t, m, "j")

	newer := models.Execution{
		ID:       "e-4",
		BotID:    "rpa-moni-objetos",
		BotName:  "Moni Objetos",
		Status:   models.ExecutionStatusQueued,
		QueuedAt: "2025-03-10T09:01:00.000000",
	}

	updated, _ := m.Update(executionsMsg{executions: append([]models.Execution{newer}, sampleExecutions()...)})
	m = updated.(Model)

	selected, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, "e-2", selected.ID)
	assert.Equal(t, 2, m.cursor)

	updated, _ = m.Update(executionsMsg{executions: sampleExecutions()[:1]})
	m = updated.(Model)
	assert.Equal(t, 0, m.cursor)
}

func TestFinishedMsg_RefetchesExpandedFiles(t *testing.T) {
	t.Parallel()

	m, api, _ := newTestModel(t)

	m, cmd := press(t, m, "j", "enter")
	m = run(t, m, cmd)
	require.Equal(t, 1, api.listCalls)

	finished := sampleExecutions()[1]
	updated, cmd := m.Update(finishedMsg{execution: finished})
	m = updated.(Model)

	assert.Contains(t, m.View(), "Moni Objetos finished: completed")

	// nil feed: the batch holds only the refetch
	m = run(t, m, cmd)
	assert.Equal(t, 2, api.listCalls)
}

func TestRefreshAndQuit(t *testing.T) {
	t.Parallel()

	m, _, source := newTestModel(t)

	m, cmd := press(t, m, "r")
	m = run(t, m, cmd)
	assert.Equal(t, 1, source.refreshes)

	m, cmd = press(t, m, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}
