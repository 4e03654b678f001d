package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/mesworks/be-hr-approvals/internal/repository"
)

// NotificationPublisher publishes approval workflow events to NATS for
// consumption by the notifications service.
//
// Subject convention: notifications.hr.<event_type>
// Event types: request_submitted, approval_required, request_approved,
//              request_rejected, request_cancelled, request_escalated
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so notification failures never interrupt approval operations.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	ActorID      string         `json:"actor_id"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	RequestType  string         `json:"request_type"`
	Status       string         `json:"status"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection yields a no-op publisher.
func NewNotificationPublisher(conn *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// PublishRequestEvent publishes an HR approval event.
// Subject: notifications.hr.<eventType>
func (p *NotificationPublisher) PublishRequestEvent(ctx context.Context, eventType string, req *repository.ApprovalRequest, actorID string, recipients []string, payload map[string]any) {
	if p.conn == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: "approval_request",
		ResourceID:   req.ID,
		RequestType:  req.RequestType,
		Status:       req.Status,
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.hr.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("request_id", req.ID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("request_id", req.ID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
