package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hirehound/jobhound/internal/database"
	"github.com/hirehound/jobhound/internal/models"
)

// EventTypeJobDiscovered is published when a never-before-seen posting is
// persisted.
const EventTypeJobDiscovered = "JOB_DISCOVERED"

// JobDiscoveredPayload is the stream payload for a newly discovered job.
type JobDiscoveredPayload struct {
	EventID    string     `json:"event_id"`
	EventType  string     `json:"event_type"`
	Timestamp  time.Time  `json:"timestamp"`
	ExternalID string     `json:"external_id"`
	Title      string     `json:"title"`
	Company    string     `json:"company"`
	Location   string     `json:"location"`
	URL        string     `json:"url"`
	PostedAt   *time.Time `json:"posted_at,omitempty"`
	SearchID   string     `json:"search_id"`
	Source     string     `json:"source"`
}

// Publisher builds outbox events for discovered jobs. The event row is
// inserted by the job repository inside the job's own transaction.
type Publisher struct {
	stream string
}

func NewPublisher(stream string) *Publisher {
	return &Publisher{stream: stream}
}

// JobDiscovered assembles the outbox event announcing a first-time insert.
func (p *Publisher) JobDiscovered(job *models.Job) (*database.OutboxEvent, error) {
	payload := &JobDiscoveredPayload{
		EventID:    uuid.New().String(),
		EventType:  EventTypeJobDiscovered,
		Timestamp:  time.Now(),
		ExternalID: job.ExternalID,
		Title:      job.Title,
		Company:    job.Company,
		Location:   job.Location,
		URL:        job.URL,
		PostedAt:   job.PostedAt,
		SearchID:   job.SearchID.String(),
		Source:     "jobhound",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: "job",
		AggregateID:   job.ExternalID,
		EventType:     EventTypeJobDiscovered,
		Payload:       data,
		TargetStream:  p.stream,
	}, nil
}
