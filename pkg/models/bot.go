package models

// Bot is a registered automation job definition.
type Bot struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	RequiresUI         bool     `json:"requires_ui"`
	ScriptPath         string   `json:"script_path"`
	ScriptArgs         []string `json:"script_args"`
	PageSlug           string   `json:"page_slug"`
	Enabled            bool     `json:"enabled"`
	Icon               Icon     `json:"icon"`
	SupportsDataInput  bool     `json:"supports_data_input"`
	SupportsScheduling *bool    `json:"supports_scheduling,omitempty"`
	CreatedAt          string   `json:"created_at"`
}

// CanSchedule reports whether schedules may be attached to the bot. Bots that
// do not declare the capability are assumed to support it.
func (b *Bot) CanSchedule() bool {
	return b.SupportsScheduling == nil || *b.SupportsScheduling
}

// BotCreate is the payload of a bot registration. PageSlug is the routing key
// and must be unique across bots; the backend enforces uniqueness.
type BotCreate struct {
	Name               string   `json:"name"                validate:"required,min=1"`
	Description        string   `json:"description"`
	RequiresUI         bool     `json:"requires_ui"`
	ScriptPath         string   `json:"script_path"         validate:"required"`
	ScriptArgs         []string `json:"script_args"`
	PageSlug           string   `json:"page_slug"           validate:"required,slug"`
	Enabled            bool     `json:"enabled"`
	Icon               Icon     `json:"icon"`
	SupportsDataInput  bool     `json:"supports_data_input"`
	SupportsScheduling bool     `json:"supports_scheduling"`
}

// BotUpdate is a partial bot update; nil fields are left untouched.
type BotUpdate struct {
	Name               *string   `json:"name,omitempty"                validate:"omitempty,min=1"`
	Description        *string   `json:"description,omitempty"`
	RequiresUI         *bool     `json:"requires_ui,omitempty"`
	ScriptPath         *string   `json:"script_path,omitempty"         validate:"omitempty,min=1"`
	ScriptArgs         []string  `json:"script_args,omitempty"`
	PageSlug           *string   `json:"page_slug,omitempty"           validate:"omitempty,slug"`
	Enabled            *bool     `json:"enabled,omitempty"`
	Icon               *Icon     `json:"icon,omitempty"`
	SupportsDataInput  *bool     `json:"supports_data_input,omitempty"`
	SupportsScheduling *bool     `json:"supports_scheduling,omitempty"`
}

// Stats is a read-only snapshot of portal counters.
type Stats struct {
	TotalExecutions     int `json:"total_executions"`
	ExecutionsToday     int `json:"executions_today"`
	ExecutionsRunning   int `json:"executions_running"`
	ExecutionsQueued    int `json:"executions_queued"`
	ExecutionsCompleted int `json:"executions_completed"`
	ExecutionsFailed    int `json:"executions_failed"`
	TotalBots           int `json:"total_bots"`
	BotsEnabled         int `json:"bots_enabled"`
}

// QueueStatus reports how many executions wait in each backend run queue.
type QueueStatus struct {
	UIQueueSize       int `json:"ui_queue_size"`
	HeadlessQueueSize int `json:"headless_queue_size"`
}
