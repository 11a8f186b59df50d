// Package notify delivers workflow events to a configured webhook endpoint.
// Delivery is best-effort: failures are logged, never propagated into the
// clinical write path.
package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is one workflow occurrence worth telling the outside world about.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	PatientID     string    `json:"patient_id,omitempty"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Event types emitted by the workflow engine.
const (
	EventDoctorAssigned     = "workflow.doctor_assigned"
	EventDoctorUnassigned   = "workflow.doctor_unassigned"
	EventAssessmentRecorded = "workflow.assessment_recorded"
	EventPrescriptionIssued = "workflow.prescription_issued"
	EventEpisodeCompleted   = "workflow.episode_completed"
)

// Notifier publishes workflow events.
type Notifier interface {
	Publish(ctx context.Context, event Event)
}

// Nop discards all events. Used when no webhook is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Webhook posts events to a single endpoint with an HMAC-SHA256 signature
// over the payload in the X-Clinicflow-Signature header.
type Webhook struct {
	client *resty.Client
	url    string
	secret string
	logger zerolog.Logger
}

// NewWebhook creates a webhook notifier for the given endpoint.
func NewWebhook(url, secret string, logger zerolog.Logger) *Webhook {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Webhook{client: client, url: url, secret: secret, logger: logger}
}

func (w *Webhook) Publish(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		w.logger.Error().Err(err).Str("event_type", event.Type).Msg("marshal webhook event")
		return
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Clinicflow-Signature", sign(w.secret, payload)).
		SetBody(payload).
		Post(w.url)
	if err != nil {
		w.logger.Error().Err(err).Str("event_type", event.Type).Msg("webhook delivery failed")
		return
	}
	if resp.IsError() {
		w.logger.Warn().
			Int("status", resp.StatusCode()).
			Str("event_type", event.Type).
			Msg("webhook endpoint rejected event")
	}
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
