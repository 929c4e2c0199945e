package sandbox

import (
	"archive/zip"
	"fmt"
	"io"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dukex/botportal/pkg/artifacts"
	"github.com/dukex/botportal/pkg/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// TimestampLayout matches the naive local ISO timestamps of the portal backend.
const TimestampLayout = "2006-01-02T15:04:05.000000"

const runFolderLayout = "2006-01-02_15-04-05"

// Store holds the sandbox state in memory. Every accessor returns copies.
type Store struct {
	mu    sync.RWMutex
	clock clockwork.Clock

	users      []*models.User
	tokens     map[string]string // token -> user id
	bots       []*models.Bot
	executions []*models.Execution // newest first
	files      map[string]map[string][]byte
	schedules  []*models.BotSchedule
	lastFired  map[string]string // schedule id -> date it last fired
}

// NewStore creates an empty store.
func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Store{
		clock:     clock,
		tokens:    map[string]string{},
		files:     map[string]map[string][]byte{},
		lastFired: map[string]string{},
	}
}

func (s *Store) now() string {
	return s.clock.Now().Format(TimestampLayout)
}

// AddUser registers a user reachable through token.
func (s *Store) AddUser(token string, user models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	if user.CreatedAt == "" {
		user.CreatedAt = s.now()
	}

	if user.AllowedBotIDs == nil {
		user.AllowedBotIDs = []string{}
	}

	s.users = append(s.users, &user)
	s.tokens[token] = user.ID

	return copyUser(&user)
}

// Authenticate resolves a bearer token to its user.
func (s *Store) Authenticate(token string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokens[token]
	if !ok || token == "" {
		return models.User{}, false
	}

	user := s.userLocked(id)
	if user == nil {
		return models.User{}, false
	}

	return copyUser(user), true
}

func (s *Store) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, copyUser(u))
	}

	return out
}

func (s *Store) SetRole(userID string, role models.Role) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.userLocked(userID)
	if user == nil {
		return models.User{}, notFoundErr("user", userID)
	}

	user.Role = role

	return copyUser(user), nil
}

func (s *Store) SetAllowedBots(userID string, botIDs []string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.userLocked(userID)
	if user == nil {
		return models.User{}, notFoundErr("user", userID)
	}

	user.AllowedBotIDs = append([]string{}, botIDs...)

	return copyUser(user), nil
}

// AddBot registers a bot as is, keeping a preset id.
func (s *Store) AddBot(bot models.Bot) models.Bot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bot.ID == "" {
		bot.ID = uuid.NewString()
	}

	if bot.CreatedAt == "" {
		bot.CreatedAt = s.now()
	}

	if bot.ScriptArgs == nil {
		bot.ScriptArgs = []string{}
	}

	s.bots = append(s.bots, &bot)

	return bot
}

// Bots lists the bots visible to user: all of them for admins, the enabled
// allow-listed ones otherwise.
func (s *Store) Bots(user models.User) []models.Bot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Bot{}
	for _, b := range s.bots {
		if user.Role.IsAdmin() || (b.Enabled && slices.Contains(user.AllowedBotIDs, b.ID)) {
			out = append(out, *b)
		}
	}

	return out
}

func (s *Store) Bot(id string) (models.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bot := s.botLocked(id)
	if bot == nil {
		return models.Bot{}, notFoundErr("bot", id)
	}

	return *bot, nil
}

func (s *Store) CreateBot(req models.BotCreate) (models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bots {
		if b.PageSlug == req.PageSlug {
			return models.Bot{}, ErrSlugTaken
		}
	}

	scheduling := req.SupportsScheduling
	bot := &models.Bot{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Description:        req.Description,
		RequiresUI:         req.RequiresUI,
		ScriptPath:         req.ScriptPath,
		ScriptArgs:         append([]string{}, req.ScriptArgs...),
		PageSlug:           req.PageSlug,
		Enabled:            req.Enabled,
		Icon:               req.Icon,
		SupportsDataInput:  req.SupportsDataInput,
		SupportsScheduling: &scheduling,
		CreatedAt:          s.now(),
	}
	s.bots = append(s.bots, bot)

	return *bot, nil
}

func (s *Store) UpdateBot(id string, req models.BotUpdate) (models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot := s.botLocked(id)
	if bot == nil {
		return models.Bot{}, notFoundErr("bot", id)
	}

	if req.PageSlug != nil && *req.PageSlug != bot.PageSlug {
		for _, b := range s.bots {
			if b.PageSlug == *req.PageSlug {
				return models.Bot{}, ErrSlugTaken
			}
		}
	}

	setIf(&bot.Name, req.Name)
	setIf(&bot.Description, req.Description)
	setIf(&bot.RequiresUI, req.RequiresUI)
	setIf(&bot.ScriptPath, req.ScriptPath)
	setIf(&bot.PageSlug, req.PageSlug)
	setIf(&bot.Enabled, req.Enabled)
	setIf(&bot.Icon, req.Icon)
	setIf(&bot.SupportsDataInput, req.SupportsDataInput)

	if req.ScriptArgs != nil {
		bot.ScriptArgs = append([]string{}, req.ScriptArgs...)
	}

	if req.SupportsScheduling != nil {
		v := *req.SupportsScheduling
		bot.SupportsScheduling = &v
	}

	return *bot, nil
}

// DeleteBot removes a bot. Deleting an unknown bot is not an error.
func (s *Store) DeleteBot(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bots = slices.DeleteFunc(s.bots, func(b *models.Bot) bool { return b.ID == id })
}

// Enqueue creates a queued execution of botID on behalf of triggeredBy.
func (s *Store) Enqueue(botID, triggeredBy, triggeredByName string, input map[string]string) (models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot := s.botLocked(botID)
	if bot == nil {
		return models.Execution{}, notFoundErr("bot", botID)
	}

	if !bot.Enabled {
		return models.Execution{}, ErrBotDisabled
	}

	return s.enqueueLocked(bot, triggeredBy, triggeredByName, input), nil
}

func (s *Store) enqueueLocked(bot *models.Bot, triggeredBy, triggeredByName string, input map[string]string) models.Execution {
	exec := &models.Execution{
		ID:              uuid.NewString(),
		BotID:           bot.ID,
		BotName:         bot.Name,
		Status:          models.ExecutionStatusQueued,
		QueuedAt:        s.now(),
		TriggeredBy:     triggeredBy,
		TriggeredByName: triggeredByName,
		InputData:       maps.Clone(input),
	}

	if exec.InputData == nil {
		exec.InputData = map[string]string{}
	}

	s.executions = slices.Insert(s.executions, 0, exec)

	return copyExecution(exec)
}

// PutExecution stores an execution verbatim, replacing one with the same id.
func (s *Store) PutExecution(exec models.Execution, files map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := copyExecution(&exec)

	if i := slices.IndexFunc(s.executions, func(x *models.Execution) bool { return x.ID == exec.ID }); i >= 0 {
		s.executions[i] = &e
	} else {
		s.executions = slices.Insert(s.executions, 0, &e)
	}

	if files != nil {
		s.files[exec.ID] = maps.Clone(files)
	}
}

// Executions lists executions newest first, optionally for one bot.
func (s *Store) Executions(botID string) []models.Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Execution{}
	for _, e := range s.executions {
		if botID == "" || e.BotID == botID {
			out = append(out, copyExecution(e))
		}
	}

	return out
}

func (s *Store) Execution(id string) (models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec := s.executionLocked(id)
	if exec == nil {
		return models.Execution{}, notFoundErr("execution", id)
	}

	return copyExecution(exec), nil
}

// Cancel stops an active execution. killed is true when it was running.
func (s *Store) Cancel(id string) (killed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec := s.executionLocked(id)
	if exec == nil {
		return false, notFoundErr("execution", id)
	}

	if !exec.Status.IsActive() {
		return false, ErrAlreadyFinished
	}

	killed = exec.Status == models.ExecutionStatusRunning
	now := s.now()
	exec.Status = models.ExecutionStatusCancelled
	exec.CompletedAt = &now

	if killed {
		code := -9
		exec.ExitCode = &code
		exec.ErrorMessage = "process terminated by cancellation"
	}

	return killed, nil
}

// Files lists the artifacts of an execution, grouped by top-level folder.
func (s *Store) Files(id string) models.ExecutionFiles {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := models.ExecutionFiles{Logs: []models.ExecutionFile{}, Resultados: []models.ExecutionFile{}}

	names := slices.Sorted(maps.Keys(s.files[id]))
	for _, name := range names {
		file := models.ExecutionFile{Name: path.Base(name), Size: int64(len(s.files[id][name])), Path: name}

		switch {
		case strings.HasPrefix(name, models.CategoryLogs+"/"):
			result.Logs = append(result.Logs, file)
		case strings.HasPrefix(name, models.CategoryResultados+"/"):
			result.Resultados = append(result.Resultados, file)
		}
	}

	return result
}

// File returns one artifact. Paths are cleaned and may not leave the run folder.
func (s *Store) File(id, filePath string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec := s.executionLocked(id)
	if exec == nil || exec.RunFolder == "" {
		return nil, ErrNoFiles
	}

	clean := path.Clean("/" + filePath)[1:]

	content, ok := s.files[id][clean]
	if !ok {
		return nil, notFoundErr("file", filePath)
	}

	return content, nil
}

// WriteZip archives every artifact of an execution into w and returns the
// evidence filename.
func (s *Store) WriteZip(id string, w io.Writer) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec := s.executionLocked(id)
	if exec == nil || exec.RunFolder == "" {
		return "", ErrNoFiles
	}

	archive := zip.NewWriter(w)

	for _, name := range slices.Sorted(maps.Keys(s.files[id])) {
		entry, err := archive.Create(name)
		if err != nil {
			return "", fmt.Errorf("zip %s: %w", name, err)
		}

		if _, err := entry.Write(s.files[id][name]); err != nil {
			return "", fmt.Errorf("zip %s: %w", name, err)
		}
	}

	if err := archive.Close(); err != nil {
		return "", fmt.Errorf("zip: %w", err)
	}

	return artifacts.ZipFilename(*exec), nil
}

// Stats computes the portal counters at the current time.
func (s *Store) Stats() models.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := s.clock.Now().Format(models.DateLayout)
	stats := models.Stats{TotalExecutions: len(s.executions), TotalBots: len(s.bots)}

	for _, e := range s.executions {
		if models.DatePart(e.QueuedAt) == today {
			stats.ExecutionsToday++
		}

		switch e.Status {
		case models.ExecutionStatusRunning:
			stats.ExecutionsRunning++
		case models.ExecutionStatusQueued:
			stats.ExecutionsQueued++
		case models.ExecutionStatusCompleted:
			stats.ExecutionsCompleted++
		case models.ExecutionStatusFailed:
			stats.ExecutionsFailed++
		}
	}

	for _, b := range s.bots {
		if b.Enabled {
			stats.BotsEnabled++
		}
	}

	return stats
}

// QueueStatus counts queued executions per run queue.
func (s *Store) QueueStatus() models.QueueStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var status models.QueueStatus
	for _, e := range s.executions {
		if e.Status != models.ExecutionStatusQueued {
			continue
		}

		if s.requiresUILocked(e.BotID) {
			status.UIQueueSize++
		} else {
			status.HeadlessQueueSize++
		}
	}

	return status
}

func (s *Store) Schedules(botID string) []models.BotSchedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.BotSchedule{}
	for _, sc := range s.schedules {
		if sc.BotID == botID {
			out = append(out, copySchedule(sc))
		}
	}

	return out
}

func (s *Store) CreateSchedule(botID, createdBy string, req models.ScheduleCreate) (models.BotSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot := s.botLocked(botID)
	if bot == nil {
		return models.BotSchedule{}, notFoundErr("bot", botID)
	}

	if !bot.CanSchedule() {
		return models.BotSchedule{}, ErrSchedulingBlocked
	}

	sc := &models.BotSchedule{
		ID:               uuid.NewString(),
		BotID:            botID,
		Enabled:          req.Enabled,
		Type:             req.Type,
		ScheduledDates:   append([]string{}, req.ScheduledDates...),
		Frequency:        req.Frequency,
		FrequencyDays:    append([]int{}, req.FrequencyDays...),
		FrequencyWeekday: req.FrequencyWeekday,
		Time:             req.Time,
		InputData:        maps.Clone(req.InputData),
		CreatedBy:        createdBy,
		CreatedAt:        s.now(),
	}

	if sc.InputData == nil {
		sc.InputData = map[string]string{}
	}

	s.schedules = append(s.schedules, sc)

	return copySchedule(sc), nil
}

func (s *Store) UpdateSchedule(id string, req models.ScheduleUpdate) (models.BotSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.schedules, func(sc *models.BotSchedule) bool { return sc.ID == id })
	if i < 0 {
		return models.BotSchedule{}, notFoundErr("schedule", id)
	}

	sc := s.schedules[i]
	setIf(&sc.Enabled, req.Enabled)
	setIf(&sc.Type, req.Type)
	setIf(&sc.Time, req.Time)

	if req.ScheduledDates != nil {
		sc.ScheduledDates = append([]string{}, req.ScheduledDates...)
	}

	if req.Frequency != nil {
		kind := *req.Frequency
		sc.Frequency = &kind
	}

	if req.FrequencyDays != nil {
		sc.FrequencyDays = append([]int{}, req.FrequencyDays...)
	}

	if req.FrequencyWeekday != nil {
		weekday := *req.FrequencyWeekday
		sc.FrequencyWeekday = &weekday
	}

	if req.InputData != nil {
		sc.InputData = maps.Clone(*req.InputData)
	}

	return copySchedule(sc), nil
}

// DeleteSchedule removes a schedule. Unknown ids are ignored.
func (s *Store) DeleteSchedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.schedules = slices.DeleteFunc(s.schedules, func(sc *models.BotSchedule) bool { return sc.ID == id })
	delete(s.lastFired, id)
}

// FireDueSchedules enqueues one execution per enabled schedule due at now.
// A schedule fires at most once per calendar day.
func (s *Store) FireDueSchedules(now time.Time) []models.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := now.Format(models.DateLayout)

	var fired []models.Execution
	for _, sc := range s.schedules {
		if !sc.IsDue(now) || s.lastFired[sc.ID] == today {
			continue
		}

		bot := s.botLocked(sc.BotID)
		if bot == nil || !bot.Enabled {
			continue
		}

		s.lastFired[sc.ID] = today
		fired = append(fired, s.enqueueLocked(bot, "scheduler", "Scheduled run", sc.InputData))
	}

	return fired
}

// Transition is one status change applied by Advance.
type Transition struct {
	ExecutionID string
	From, To    models.ExecutionStatus
}

// Advance moves the simulated runner forward to now: running executions
// older than runFor finish, then queued ones start while their queue has
// capacity (one UI slot, maxHeadless headless slots), oldest first.
func (s *Store) Advance(runFor time.Duration, maxHeadless int) []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	var transitions []Transition

	uiRunning, headlessRunning := 0, 0

	for _, e := range s.executions {
		if e.Status != models.ExecutionStatusRunning {
			continue
		}

		started, err := time.ParseInLocation(TimestampLayout, deref(e.StartedAt), now.Location())
		if err == nil && now.Sub(started) >= runFor {
			s.finishLocked(e, now, started)
			transitions = append(transitions, Transition{e.ID, models.ExecutionStatusRunning, e.Status})

			continue
		}

		if s.requiresUILocked(e.BotID) {
			uiRunning++
		} else {
			headlessRunning++
		}
	}

	queued := slices.Clone(s.executions)
	slices.Reverse(queued)

	for _, e := range queued {
		if e.Status != models.ExecutionStatusQueued {
			continue
		}

		if s.requiresUILocked(e.BotID) {
			if uiRunning >= 1 {
				continue
			}

			uiRunning++
		} else {
			if headlessRunning >= maxHeadless {
				continue
			}

			headlessRunning++
		}

		startedAt := now.Format(TimestampLayout)
		e.Status = models.ExecutionStatusRunning
		e.StartedAt = &startedAt
		e.RunFolder = path.Join("ejecuciones", e.BotID, now.Format(runFolderLayout))
		s.files[e.ID] = map[string][]byte{
			"logs/" + e.BotID + ".log": fmt.Appendf(nil, "%s INFO starting %s\n", startedAt, e.BotName),
		}
		transitions = append(transitions, Transition{e.ID, models.ExecutionStatusQueued, models.ExecutionStatusRunning})
	}

	return transitions
}

// finishLocked completes a running execution. An input value "fail" under
// the simulate key makes it fail instead.
func (s *Store) finishLocked(e *models.Execution, now, started time.Time) {
	completedAt := now.Format(TimestampLayout)
	e.CompletedAt = &completedAt
	e.DurationSeconds = now.Sub(started).Seconds()

	logName := "logs/" + e.BotID + ".log"
	files := s.files[e.ID]

	if files == nil {
		files = map[string][]byte{}
		s.files[e.ID] = files
	}

	if e.InputData[SimulateKey] == "fail" {
		code := 1
		e.Status = models.ExecutionStatusFailed
		e.ExitCode = &code
		e.ErrorMessage = "simulated failure"
		files[logName] = fmt.Appendf(files[logName], "%s ERROR simulated failure\n", completedAt)

		return
	}

	code := 0
	e.Status = models.ExecutionStatusCompleted
	e.ExitCode = &code
	files[logName] = fmt.Appendf(files[logName], "%s INFO finished\n", completedAt)
	files["resultados/reporte.csv"] = reportCSV(e)

	if s.requiresUILocked(e.BotID) {
		files["resultados/captura_01.png"] = screenshot
	}
}

func (s *Store) userLocked(id string) *models.User {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}

	return nil
}

func (s *Store) botLocked(id string) *models.Bot {
	for _, b := range s.bots {
		if b.ID == id {
			return b
		}
	}

	return nil
}

func (s *Store) executionLocked(id string) *models.Execution {
	for _, e := range s.executions {
		if e.ID == id {
			return e
		}
	}

	return nil
}

func (s *Store) requiresUILocked(botID string) bool {
	bot := s.botLocked(botID)
	return bot != nil && bot.RequiresUI
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func copyUser(u *models.User) models.User {
	c := *u
	c.AllowedBotIDs = append([]string{}, u.AllowedBotIDs...)

	return c
}

func copyExecution(e *models.Execution) models.Execution {
	c := *e
	c.InputData = maps.Clone(e.InputData)

	return c
}

func copySchedule(sc *models.BotSchedule) models.BotSchedule {
	c := *sc
	c.ScheduledDates = append([]string{}, sc.ScheduledDates...)
	c.FrequencyDays = append([]int{}, sc.FrequencyDays...)
	c.InputData = maps.Clone(sc.InputData)

	return c
}
