package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobType discriminates queued job payloads.
type JobType string

const (
	JobTypeRun          JobType = "run"
	JobTypeWake         JobType = "wake"
	JobTypeDiscordEvent JobType = "discord_event"
	JobTypeMessage      JobType = "message"
	JobTypeDelivery     JobType = "delivery"
	JobTypeDeliveryAck  JobType = "delivery_ack"
	JobTypeMemoryWrite  JobType = "memory_write"
)

// KnownJobTypes lists every job type the dispatcher can route.
var KnownJobTypes = []JobType{
	JobTypeRun,
	JobTypeWake,
	JobTypeDiscordEvent,
	JobTypeMessage,
	JobTypeDelivery,
	JobTypeDeliveryAck,
	JobTypeMemoryWrite,
}

// Job is one unit of queued work. The transport that carries jobs is out of
// scope here; the dispatcher consumes them as opaque typed inputs.
type Job struct {
	ID   string  `json:"id"`
	Type JobType `json:"type"`

	// Identifiers the payload types share. Unused fields stay empty.
	TenantID  string `json:"tenant_id,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	TriggerID string `json:"trigger_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`

	// Payload carries type-specific fields beyond the shared identifiers.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Attempt counts delivery attempts, starting at 1 on first dispatch.
	Attempt int `json:"attempt,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at,omitempty"`
}

// Validate checks the job carries a known type and an id.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	for _, t := range KnownJobTypes {
		if j.Type == t {
			return nil
		}
	}
	return fmt.Errorf("unknown job type %q", j.Type)
}
