package templates

import (
	"context"
	"fmt"
	"time"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/index"
	"github.com/Jianwei07/prompt-temp-v1/pkg/metrics"
)

// History lists the commits that touched the record's content file, newest
// first. It is empty unless history is enabled, and never fails: any error
// is replaced by a single placeholder entry.
func (s *Store) History(ctx context.Context, id string) []HistoryEntry {
	if !s.cfg.HistoryEnabled {
		metrics.RecordTemplateOperation("history", "ok")
		return []HistoryEntry{}
	}

	entries, err := s.history(ctx, id)
	if err != nil {
		metrics.RecordTemplateOperation("history", "error")
		s.logger.Warn("history unavailable", "id", id, "error", err)
		return []HistoryEntry{s.historyPlaceholder()}
	}
	metrics.RecordTemplateOperation("history", "ok")
	return entries
}

func (s *Store) history(ctx context.Context, id string) ([]HistoryEntry, error) {
	headers, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	i := index.Find(headers, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	path := headers[i].ContentPath
	if path == "" {
		return nil, fmt.Errorf("%w: %s has no content path", ErrNotFound, id)
	}

	commits, err := s.repo.ListCommits(ctx, path, s.cfg.DefaultBranch, s.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(commits))
	for n, c := range commits {
		entries = append(entries, HistoryEntry{
			CommitID:        c.Hash,
			TemplateID:      id,
			Version:         fmt.Sprintf("v1.%d", len(commits)-1-n),
			Message:         c.Message,
			UserDisplayName: c.Author,
			Timestamp:       c.Date.UTC().Format(time.RFC3339),
		})
	}
	return entries, nil
}

func (s *Store) historyPlaceholder() HistoryEntry {
	return HistoryEntry{
		CommitID:        "error",
		Version:         index.DefaultVersion,
		Message:         "Could not retrieve version history",
		UserDisplayName: DefaultActor,
		Timestamp:       s.now().UTC().Format(time.RFC3339),
	}
}
