package approval

import (
	"context"
	"fmt"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/audit"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/bitbucket"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/index"
	"github.com/Jianwei07/prompt-temp-v1/pkg/metrics"
)

// EventAction is what happened to a pull request.
type EventAction string

const (
	ActionMerged   EventAction = "merged"
	ActionDeclined EventAction = "declined"
)

// PullRequestEvent is a pull request state change reported by the host.
type PullRequestEvent struct {
	Action            EventAction
	PullRequestID     int
	SourceBranch      string
	DestinationBranch string
	Actor             string
}

// Outcome results
const (
	OutcomeMerged    = "merged"
	OutcomeAbandoned = "abandoned"
	OutcomeIgnored   = "ignored"
)

// Outcome describes how Finalize treated an event.
type Outcome struct {
	Result   string `json:"result"`
	RecordID string `json:"recordId,omitempty"`
	Branch   string `json:"branch,omitempty"`
	// StillListed is set after a merge when the default branch index still
	// contains the record. The check is advisory only.
	StillListed bool   `json:"stillListed,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Finalize moves a deletion request out of pending. Events for branches that
// are not deletion branches, or that target another branch, are ignored.
// A merge needs no further writes; a decline needs no compensation because
// the default branch was never changed.
func (w *Workflow) Finalize(ctx context.Context, ev PullRequestEvent) Outcome {
	id, _, ok := ParseBranch(ev.SourceBranch)
	if !ok {
		return Outcome{Result: OutcomeIgnored, Branch: ev.SourceBranch, Reason: "not a deletion branch"}
	}
	if ev.DestinationBranch != "" && ev.DestinationBranch != w.cfg.DefaultBranch {
		return Outcome{Result: OutcomeIgnored, RecordID: id, Branch: ev.SourceBranch,
			Reason: "targets " + ev.DestinationBranch}
	}

	actor := ev.Actor
	if actor == "" {
		actor = "bitbucket"
	}
	details := fmt.Sprintf("pull request %d from %s", ev.PullRequestID, ev.SourceBranch)

	switch ev.Action {
	case ActionMerged:
		out := Outcome{Result: OutcomeMerged, RecordID: id, Branch: ev.SourceBranch}
		out.StillListed = w.stillListed(ctx, id)
		metrics.RecordApproval(string(StatusMerged))
		w.logger.Info("deletion approved and merged", "id", id, "branch", ev.SourceBranch, "pull_request", ev.PullRequestID)
		w.record(actor, audit.ActionDeletionMerged, id, details)
		return out
	case ActionDeclined:
		metrics.RecordApproval(string(StatusAbandoned))
		w.logger.Info("deletion request declined", "id", id, "branch", ev.SourceBranch, "pull_request", ev.PullRequestID)
		w.record(actor, audit.ActionDeletionAbandoned, id, details)
		return Outcome{Result: OutcomeAbandoned, RecordID: id, Branch: ev.SourceBranch}
	default:
		return Outcome{Result: OutcomeIgnored, RecordID: id, Branch: ev.SourceBranch,
			Reason: "unsupported action " + string(ev.Action)}
	}
}

func (w *Workflow) stillListed(ctx context.Context, id string) bool {
	data, err := w.repo.ReadFile(ctx, w.cfg.IndexPath, w.cfg.DefaultBranch)
	if err != nil {
		if !bitbucket.IsNotFound(err) {
			w.logger.Warn("post-merge index check skipped", "id", id, "error", err)
		}
		return false
	}
	headers, err := index.Decode(data)
	if err != nil {
		w.logger.Warn("post-merge index check skipped", "id", id, "error", err)
		return false
	}
	if index.Find(headers, id) >= 0 {
		w.logger.Warn("record still listed after deletion merge", "id", id)
		return true
	}
	return false
}

func (w *Workflow) record(actor string, action audit.AuditAction, id, details string) {
	if err := w.audit.LogActionSimple(actor, action, id, details); err != nil {
		w.logger.Warn("audit write failed", "id", id, "error", err)
	}
}
