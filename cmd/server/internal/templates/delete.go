package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/approval"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/audit"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/index"
)

// ErrApprovalUnavailable is returned when approval is required but no workflow is configured.
var ErrApprovalUnavailable = errors.New("approval workflow not configured")

// Delete removes the record. With approval required the change is staged
// through the approval workflow and the record stays live until the pull
// request merges; otherwise the reduced index and the emptied content path
// are committed to the default branch at once.
func (s *Store) Delete(ctx context.Context, id, comment, actor string) (res *DeleteResult, err error) {
	defer func() { recordOp("delete", err) }()

	headers, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	i := index.Find(headers, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	h := headers[i]
	remaining := index.Without(headers, i)
	actor = s.actor(actor)

	if s.cfg.RequireApproval {
		if s.approver == nil {
			return nil, ErrApprovalUnavailable
		}
		req, err := s.approver.Submit(ctx, approval.DeletionRequest{
			Header:    h,
			Remaining: remaining,
			Actor:     actor,
			Comment:   comment,
		})
		if err != nil {
			return nil, fmt.Errorf("submit deletion of %s: %w", id, err)
		}
		return &DeleteResult{
			Status:  StatusPendingApproval,
			Request: req,
			Message: "Deletion request submitted for approval",
		}, nil
	}

	contents := map[string]*index.Content{}
	if h.ContentPath != "" {
		contents[h.ContentPath] = nil
	}
	note := strings.TrimSpace(comment)
	if note == "" {
		note = "No comment provided"
	}
	if err := s.commit(ctx, remaining, contents, fmt.Sprintf("Delete template %s - %s", id, note)); err != nil {
		return nil, err
	}

	s.logger.Info("template deleted", "id", id, "path", h.ContentPath, "actor", actor)
	s.auditLog(actor, audit.ActionDeleteTemplate, id, h, nil, note)
	return &DeleteResult{
		Status:    StatusDeleted,
		DeletedID: id,
		Message:   "Template deleted successfully",
	}, nil
}
