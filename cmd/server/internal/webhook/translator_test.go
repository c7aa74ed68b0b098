package webhook

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/approval"
)

type recordingFinalizer struct {
	events []approval.PullRequestEvent
	out    approval.Outcome
	panic  bool
}

func (r *recordingFinalizer) Finalize(_ context.Context, ev approval.PullRequestEvent) approval.Outcome {
	if r.panic {
		panic("boom")
	}
	r.events = append(r.events, ev)
	return r.out
}

const mergedPayload = `{
  "actor": {"display_name": "Reviewer"},
  "pullrequest": {
    "id": 7,
    "source": {"branch": {"name": "delete-template-id-1-1714557600000"}},
    "destination": {"branch": {"name": "main"}}
  }
}`

func newTranslator(t *testing.T, f Finalizer) *Translator {
	t.Helper()
	tr, err := NewTranslator(f, nil)
	require.NoError(t, err)
	return tr
}

func TestHandle_Merged(t *testing.T) {
	f := &recordingFinalizer{out: approval.Outcome{Result: approval.OutcomeMerged, RecordID: "id-1"}}
	ack := newTranslator(t, f).Handle(context.Background(), EventPullRequestFulfilled, []byte(mergedPayload))

	assert.Equal(t, approval.OutcomeMerged, ack.Outcome)
	assert.Equal(t, "id-1", ack.RecordID)
	require.Len(t, f.events, 1)
	assert.Equal(t, approval.PullRequestEvent{
		Action:            approval.ActionMerged,
		PullRequestID:     7,
		SourceBranch:      "delete-template-id-1-1714557600000",
		DestinationBranch: "main",
		Actor:             "Reviewer",
	}, f.events[0])
}

func TestHandle_Rejected(t *testing.T) {
	f := &recordingFinalizer{out: approval.Outcome{Result: approval.OutcomeAbandoned}}
	ack := newTranslator(t, f).Handle(context.Background(), EventPullRequestRejected, []byte(mergedPayload))

	assert.Equal(t, approval.OutcomeAbandoned, ack.Outcome)
	require.Len(t, f.events, 1)
	assert.Equal(t, approval.ActionDeclined, f.events[0].Action)
}

func TestHandle_OtherEventsIgnored(t *testing.T) {
	f := &recordingFinalizer{}
	tr := newTranslator(t, f)
	for _, key := range []string{"repo:push", "pullrequest:created", ""} {
		ack := tr.Handle(context.Background(), key, []byte(`not even json`))
		assert.Equal(t, approval.OutcomeIgnored, ack.Outcome, key)
	}
	assert.Empty(t, f.events)
}

func TestHandle_BadPayloadsAreSwallowed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing pullrequest", `{"actor":{}}`},
		{"missing branch name", `{"pullrequest":{"source":{"branch":{}}}}`},
		{"wrong id type", `{"pullrequest":{"id":"seven","source":{"branch":{"name":"x"}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &recordingFinalizer{}
			ack := newTranslator(t, f).Handle(context.Background(), EventPullRequestFulfilled, []byte(tt.body))
			assert.Equal(t, OutcomeError, ack.Outcome)
			assert.NotEmpty(t, ack.Error)
			assert.Empty(t, f.events)
		})
	}
}

func TestHandle_FinalizerPanicIsContained(t *testing.T) {
	ack := newTranslator(t, &recordingFinalizer{panic: true}).Handle(context.Background(), EventPullRequestFulfilled, []byte(mergedPayload))
	assert.Equal(t, OutcomeError, ack.Outcome)
	assert.Contains(t, ack.Error, "boom")
}

func TestHandle_UnknownEventKeysShareMetricLabel(t *testing.T) {
	tr := newTranslator(t, &recordingFinalizer{})
	for i := 0; i < 50; i++ {
		tr.Handle(context.Background(), fmt.Sprintf("unknown:%d", i), []byte(`{}`))
	}

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	labels := map[string]bool{}
	for _, mf := range families {
		if mf.GetName() != "webhook_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "event" {
					labels[lp.GetValue()] = true
				}
			}
		}
	}
	assert.True(t, labels["other"])
	for label := range labels {
		assert.Contains(t, []string{"other", EventPullRequestFulfilled, EventPullRequestRejected}, label)
	}
	assert.Equal(t, "other", eventLabel("repo:push"))
	assert.Equal(t, EventPullRequestRejected, eventLabel(EventPullRequestRejected))
}
