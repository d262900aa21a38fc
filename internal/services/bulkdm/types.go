package bulkdm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tmister923-blip/bot-login/internal/discord"
	"github.com/tmister923-blip/bot-login/internal/eventbus"
	"github.com/tmister923-blip/bot-login/pkg/logx"
)

// Config carries the tunables shared by every job. Per-request knobs
// (message, delay, rest, batch size) arrive with the Request instead.
type Config struct {
	// BatchSize is the default recipients-per-batch when the request
	// does not set one. Clamped to [1, maxBatchSize].
	BatchSize int
	// PageLimit is the member page size used while resolving "all".
	PageLimit int
	// MaxPages caps member pagination so a job can never loop forever
	// on a misbehaving cursor.
	MaxPages int
	// PageDelay is the pause between member pages.
	PageDelay time.Duration
}

// errCanceled is the terminal error surfaced when a running job is
// aborted, either by Abort or by service shutdown.
var errCanceled = errors.New("job canceled")

const (
	maxBatchSize     = 100
	defaultBatchSize = 100
	defaultPageLimit = 1000
	defaultMaxPages  = 50
	defaultPageDelay = 100 * time.Millisecond
)

func (c *Config) normalize() {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BatchSize > maxBatchSize {
		c.BatchSize = maxBatchSize
	}
	if c.PageLimit <= 0 {
		c.PageLimit = defaultPageLimit
	}
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.PageDelay <= 0 {
		c.PageDelay = defaultPageDelay
	}
}

// Scope selects how recipients are resolved.
type Scope string

const (
	// ScopeAll resolves every non-bot member of the guild.
	ScopeAll Scope = "all"
	// ScopeCustom uses the user IDs supplied with the request as-is.
	ScopeCustom Scope = "custom"
)

// Request describes one bulk send.
type Request struct {
	Message    string
	Scope      Scope
	GuildID    string
	Recipients []string // only for ScopeCustom

	// Delay is the pause after every message, including the last one
	// in a batch.
	Delay time.Duration
	// Rest is the pause between batches. Never applied after the
	// final batch.
	Rest time.Duration
	// BatchSize overrides Config.BatchSize when > 0.
	BatchSize int
}

// Status is the lifecycle phase carried on every progress event.
type Status string

const (
	StatusStarting       Status = "starting"
	StatusSending        Status = "sending"
	StatusBatchCompleted Status = "batch_completed"
	StatusResting        Status = "resting"
	StatusCompleted      Status = "completed"
	StatusError          Status = "error"
)

// Progress is the wire snapshot published after every state change.
// Counters are cumulative across the whole job; the batch* fields
// describe the batch named by CurrentBatch.
type Progress struct {
	Sent         int    `json:"sent"`
	Failed       int    `json:"failed"`
	Total        int    `json:"total"`
	Status       Status `json:"status"`
	CurrentBatch int    `json:"currentBatch,omitempty"`
	TotalBatches int    `json:"totalBatches,omitempty"`

	// BatchProgress is the integer percentage of the current batch,
	// present only while sending.
	BatchProgress *int `json:"batchProgress,omitempty"`
	BatchSent     *int `json:"batchSent,omitempty"`
	BatchFailed   *int `json:"batchFailed,omitempty"`

	Error string `json:"error,omitempty"`
}

// JobStatus is the in-memory record kept per job for history queries.
type JobStatus struct {
	ID      string `json:"id"`
	GuildID string `json:"guildId,omitempty"`
	Scope   Scope  `json:"scope"`

	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Batches int `json:"batches"`

	Status Status `json:"status"`
	Err    string `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	StartedAt time.Time `json:"startedAt,omitzero"`
	DoneAt    time.Time `json:"doneAt,omitzero"`
	Running   bool      `json:"running"`
}

// MemberLister is the slice of the Discord session the resolver needs.
type MemberLister interface {
	MembersPage(ctx context.Context, guildID string, limit int, after string) ([]discord.Member, error)
}

// Messenger is the slice of the Discord session the dispatch loop needs.
type Messenger interface {
	CreateDM(ctx context.Context, userID string) (string, error)
	SendMessage(ctx context.Context, channelID, content string) (discord.Message, error)
}

// Service owns the single-job-at-a-time pipeline.
type Service struct {
	mu  sync.Mutex
	cfg Config

	bus eventbus.Bus
	log logx.Logger

	inFlight  bool
	curID     string
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	statusMu  sync.RWMutex
	status    map[string]*JobStatus
	statusMax int
	statusTTL time.Duration
}
