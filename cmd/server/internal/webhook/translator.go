// Package webhook turns Bitbucket pull request notifications into approval
// finalizations. The host only needs a prompt acknowledgment, so Handle never
// returns an error; failures are logged and reported in the Ack.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/approval"
	"github.com/Jianwei07/prompt-temp-v1/pkg/metrics"
)

// Event keys sent in the X-Event-Key header.
const (
	EventPullRequestFulfilled = "pullrequest:fulfilled"
	EventPullRequestRejected  = "pullrequest:rejected"
)

// OutcomeError marks an event that could not be processed.
const OutcomeError = "error"

// otherEventLabel is the metric label for event keys Handle does not act on.
const otherEventLabel = "other"

// pullRequestSchema covers only the fields Handle reads.
const pullRequestSchema = `{
  "type": "object",
  "required": ["pullrequest"],
  "properties": {
    "pullrequest": {
      "type": "object",
      "required": ["source"],
      "properties": {
        "id": {"type": "integer"},
        "source": {
          "type": "object",
          "required": ["branch"],
          "properties": {
            "branch": {
              "type": "object",
              "required": ["name"],
              "properties": {"name": {"type": "string", "minLength": 1}}
            }
          }
        },
        "destination": {
          "type": "object",
          "properties": {
            "branch": {"type": "object", "properties": {"name": {"type": "string"}}}
          }
        }
      }
    },
    "actor": {
      "type": "object",
      "properties": {"display_name": {"type": "string"}}
    }
  }
}`

// Finalizer completes approval requests.
type Finalizer interface {
	Finalize(ctx context.Context, ev approval.PullRequestEvent) approval.Outcome
}

// Ack is the result of one delivery.
type Ack struct {
	Event    string `json:"event"`
	Outcome  string `json:"outcome"`
	RecordID string `json:"recordId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Translator maps pull request events to Finalizer calls.
type Translator struct {
	finalizer Finalizer
	schema    *gojsonschema.Schema
	logger    *slog.Logger
}

// NewTranslator creates a Translator. A nil logger uses slog.Default.
func NewTranslator(f Finalizer, logger *slog.Logger) (*Translator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(pullRequestSchema))
	if err != nil {
		return nil, fmt.Errorf("compile webhook schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		finalizer: f,
		schema:    schema,
		logger:    logger.With("component", "webhook"),
	}, nil
}

type payload struct {
	PullRequest struct {
		ID     int `json:"id"`
		Source struct {
			Branch struct {
				Name string `json:"name"`
			} `json:"branch"`
		} `json:"source"`
		Destination struct {
			Branch struct {
				Name string `json:"name"`
			} `json:"branch"`
		} `json:"destination"`
	} `json:"pullrequest"`
	Actor struct {
		DisplayName string `json:"display_name"`
	} `json:"actor"`
}

// Handle processes one delivery. Events other than merged or declined pull
// requests are acknowledged and ignored.
func (t *Translator) Handle(ctx context.Context, eventKey string, body []byte) (ack Ack) {
	ack = Ack{Event: eventKey}
	defer func() {
		if r := recover(); r != nil {
			ack = t.fail(ack, fmt.Errorf("panic: %v", r))
		}
		metrics.RecordWebhookEvent(eventLabel(eventKey), ack.Outcome)
	}()

	var action approval.EventAction
	switch eventKey {
	case EventPullRequestFulfilled:
		action = approval.ActionMerged
	case EventPullRequestRejected:
		action = approval.ActionDeclined
	default:
		t.logger.Debug("webhook event ignored", "event", eventKey)
		ack.Outcome = approval.OutcomeIgnored
		return ack
	}

	result, err := t.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return t.fail(ack, fmt.Errorf("parse payload: %w", err))
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return t.fail(ack, fmt.Errorf("invalid payload: %s", strings.Join(msgs, "; ")))
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return t.fail(ack, fmt.Errorf("decode payload: %w", err))
	}

	out := t.finalizer.Finalize(ctx, approval.PullRequestEvent{
		Action:            action,
		PullRequestID:     p.PullRequest.ID,
		SourceBranch:      p.PullRequest.Source.Branch.Name,
		DestinationBranch: p.PullRequest.Destination.Branch.Name,
		Actor:             p.Actor.DisplayName,
	})
	ack.Outcome = out.Result
	ack.RecordID = out.RecordID
	t.logger.Info("webhook processed", "event", eventKey, "branch", p.PullRequest.Source.Branch.Name,
		"outcome", out.Result, "id", out.RecordID)
	return ack
}

// eventLabel bounds the metric label set; the header is caller-controlled.
func eventLabel(eventKey string) string {
	switch eventKey {
	case EventPullRequestFulfilled, EventPullRequestRejected:
		return eventKey
	default:
		return otherEventLabel
	}
}

func (t *Translator) fail(ack Ack, err error) Ack {
	t.logger.Warn("webhook processing failed", "event", ack.Event, "error", err)
	ack.Outcome = OutcomeError
	ack.Error = err.Error()
	return ack
}
