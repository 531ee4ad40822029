package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/CallAudit/internal/config"
	"github.com/MikeSquared-Agency/CallAudit/internal/evaluation"
	"github.com/MikeSquared-Agency/CallAudit/internal/hermes"
	"github.com/MikeSquared-Agency/CallAudit/internal/selection"
	"github.com/MikeSquared-Agency/CallAudit/internal/store"
	"github.com/MikeSquared-Agency/CallAudit/internal/week"
)

type fakeSelector struct {
	mu     sync.Mutex
	days   []string
	failOn map[string]bool
}

func (f *fakeSelector) SelectForDay(_ context.Context, date time.Time) (*selection.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := week.Format(date)
	f.days = append(f.days, d)
	if f.failOn[d] {
		return nil, errors.New("database unavailable")
	}
	return &selection.Result{
		Date:     d,
		Week:     week.Compute(date),
		Inserted: 2,
		Quotas:   map[string]selection.Quota{"lv": selection.Unbounded, "obama": 3},
	}, nil
}

type mockHermes struct {
	mock.Mock
	handlers map[string]func(string, []byte)
}

func (m *mockHermes) Publish(subject string, data interface{}) error {
	return m.Called(subject, data).Error(0)
}

func (m *mockHermes) Subscribe(subject string, handler func(string, []byte)) error {
	if m.handlers == nil {
		m.handlers = make(map[string]func(string, []byte))
	}
	m.handlers[subject] = handler
	return nil
}

func (m *mockHermes) Close() {}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestScheduler(sel Selector, h hermes.Client, now time.Time) *Scheduler {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		Enabled:         true,
		RunHourUTC:      6,
		CheckIntervalMs: 10,
		MaxCatchUpDays:  6,
	}}
	s := New(sel, h, cfg, testLogger())
	s.now = func() time.Time { return now }
	return s
}

// Thursday 2026-10-15.
var thursday = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

func TestRunDueWaitsForRunHour(t *testing.T) {
	sel := &fakeSelector{}
	s := newTestScheduler(sel, nil, thursday.Add(5*time.Hour))

	assert.Equal(t, 0, s.runDue(context.Background()))
	assert.Empty(t, sel.days)
	assert.True(t, s.LastCovered().IsZero())
}

func TestRunDueFirstRunSelectsYesterdayOnly(t *testing.T) {
	sel := &fakeSelector{}
	s := newTestScheduler(sel, nil, thursday.Add(7*time.Hour))

	assert.Equal(t, 1, s.runDue(context.Background()))
	assert.Equal(t, []string{"2026-10-14"}, sel.days)
	assert.Equal(t, "2026-10-14", week.Format(s.LastCovered()))

	// Same day again: nothing new to cover.
	assert.Equal(t, 0, s.runDue(context.Background()))
	assert.Len(t, sel.days, 1)
}

func TestRunDueCatchesUpSkippingSunday(t *testing.T) {
	sel := &fakeSelector{}
	// Tuesday 2026-10-20; last covered Friday 2026-10-16.
	s := newTestScheduler(sel, nil, time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC))
	s.SetLastCovered(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 2, s.runDue(context.Background()))
	assert.Equal(t, []string{"2026-10-17", "2026-10-19"}, sel.days)
	assert.Equal(t, "2026-10-19", week.Format(s.LastCovered()))
}

func TestRunDueStopsAtFailure(t *testing.T) {
	sel := &fakeSelector{failOn: map[string]bool{"2026-10-13": true}}
	s := newTestScheduler(sel, nil, thursday.Add(9*time.Hour))
	s.SetLastCovered(time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 1, s.runDue(context.Background()))
	assert.Equal(t, []string{"2026-10-12", "2026-10-13"}, sel.days)
	assert.Equal(t, "2026-10-12", week.Format(s.LastCovered()))

	// The failed day is retried on the next tick.
	sel.failOn = nil
	assert.Equal(t, 2, s.runDue(context.Background()))
	assert.Equal(t, "2026-10-14", week.Format(s.LastCovered()))
}

func TestRunDayPublishesCompletion(t *testing.T) {
	h := &mockHermes{}
	h.On("Publish", "audit.selection.2026-10-14.completed", mock.MatchedBy(func(evt hermes.SelectionCompletedEvent) bool {
		return evt.Inserted == 2 && evt.Quotas["lv"] == -1 && evt.Quotas["obama"] == 3 && evt.WeekStart == "2026-10-12"
	})).Return(nil).Once()

	s := newTestScheduler(&fakeSelector{}, h, thursday)
	res, err := s.RunDay(context.Background(), thursday.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, "2026-10-14", res.Date)
	h.AssertExpectations(t)
}

func TestStartStop(t *testing.T) {
	sel := &fakeSelector{}
	s := newTestScheduler(sel, nil, thursday.Add(10*time.Hour))
	s.Start(context.Background())

	require.Eventually(t, func() bool { return !s.LastCovered().IsZero() }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
}

type fakeRecordings struct {
	got []*store.Recording
}

func (f *fakeRecordings) UpsertRecordings(_ context.Context, recs []*store.Recording) (int, error) {
	f.got = append(f.got, recs...)
	return len(recs), nil
}

type fakeEvaluator struct {
	id      uuid.UUID
	payload []byte
	err     error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, id uuid.UUID, payload []byte) (*evaluation.Outcome, error) {
	f.id = id
	f.payload = payload
	return &evaluation.Outcome{}, f.err
}

func TestIngestSubscriptions(t *testing.T) {
	h := &mockHermes{}
	recs := &fakeRecordings{}
	ev := &fakeEvaluator{}
	in := NewIngest(h, recs, ev, testLogger())
	require.NoError(t, in.SetupSubscriptions(context.Background()))

	require.Contains(t, h.handlers, hermes.SubjectRecordingsDiscovered)
	require.Contains(t, h.handlers, hermes.SubjectJudgmentReady)

	data, _ := json.Marshal(hermes.RecordingsDiscoveredEvent{Recordings: []*store.Recording{{ID: 1, ClientCode: "lv", AgentID: "a"}}})
	h.handlers[hermes.SubjectRecordingsDiscovered](hermes.SubjectRecordingsDiscovered, data)
	require.Len(t, recs.got, 1)
	assert.Equal(t, int64(1), recs.got[0].ID)

	id := uuid.New()
	data, _ = json.Marshal(map[string]interface{}{
		"selection_id": id.String(),
		"payload":      "```json\n{\"general\":{}}\n```",
	})
	h.handlers[hermes.SubjectJudgmentReady](hermes.SubjectJudgmentReadyFor(id.String()), data)
	assert.Equal(t, id, ev.id)
	assert.Equal(t, "```json\n{\"general\":{}}\n```", string(ev.payload))
}

func TestHandleJudgmentObjectPayload(t *testing.T) {
	ev := &fakeEvaluator{}
	in := NewIngest(nil, &fakeRecordings{}, ev, testLogger())

	id := uuid.New()
	err := in.handleJudgment([]byte(`{"selection_id":"` + id.String() + `","payload":{"general":{}}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"general":{}}`, string(ev.payload))

	assert.Error(t, in.handleJudgment([]byte(`{"selection_id":"nope"}`)))

	ev.err = &evaluation.RetryableError{Err: evaluation.ErrMalformedPayload}
	err = in.handleJudgment([]byte(`{"selection_id":"` + id.String() + `","payload":"x"}`))
	assert.ErrorIs(t, err, evaluation.ErrMalformedPayload)
}

func TestIngestWithoutHermes(t *testing.T) {
	in := NewIngest(nil, &fakeRecordings{}, &fakeEvaluator{}, testLogger())
	assert.NoError(t, in.SetupSubscriptions(context.Background()))
}

// consumingHermes also offers durable consumption.
type consumingHermes struct {
	mockHermes
	durable  string
	consumed map[string]func(string, []byte) error
}

func (c *consumingHermes) Consume(_ context.Context, durable, subject string, handler func(string, []byte) error) error {
	if c.consumed == nil {
		c.consumed = make(map[string]func(string, []byte) error)
	}
	c.durable = durable
	c.consumed[subject] = handler
	return nil
}

func TestIngestUsesDurableConsumerForJudgments(t *testing.T) {
	h := &consumingHermes{}
	ev := &fakeEvaluator{}
	in := NewIngest(h, &fakeRecordings{}, ev, testLogger())
	require.NoError(t, in.SetupSubscriptions(context.Background()))

	assert.Contains(t, h.handlers, hermes.SubjectRecordingsDiscovered)
	assert.NotContains(t, h.handlers, hermes.SubjectJudgmentReady)
	require.Contains(t, h.consumed, hermes.SubjectJudgmentReady)
	assert.Equal(t, hermes.ConsumerJudgments, h.durable)

	handle := h.consumed[hermes.SubjectJudgmentReady]
	id := uuid.New()
	msg := []byte(`{"selection_id":"` + id.String() + `","payload":{"general":{}}}`)

	require.NoError(t, handle(hermes.SubjectJudgmentReadyFor(id.String()), msg))
	assert.Equal(t, id, ev.id)

	ev.err = errors.New("database unavailable")
	err := handle(hermes.SubjectJudgmentReadyFor(id.String()), msg)
	require.Error(t, err)
	assert.False(t, hermes.IsPermanent(err), "transient failures are redelivered")

	err = handle(hermes.SubjectJudgmentReadyFor(id.String()), []byte(`{"selection_id":"nope"}`))
	assert.True(t, hermes.IsPermanent(err))
}

func TestJudgmentErrorsThatCannotSucceedOnRedelivery(t *testing.T) {
	ev := &fakeEvaluator{}
	in := NewIngest(nil, &fakeRecordings{}, ev, testLogger())
	msg := []byte(`{"selection_id":"` + uuid.New().String() + `","payload":"x"}`)

	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"malformed payload", &evaluation.RetryableError{Err: evaluation.ErrMalformedPayload}, true},
		{"unknown selection", evaluation.ErrSelectionNotFound, true},
		{"reviewer corrected", fmt.Errorf("save evaluation: %w", store.ErrEvaluationCorrected), true},
		{"database down", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev.err = tt.err
			err := in.handleJudgment(msg)
			require.Error(t, err)
			assert.Equal(t, tt.permanent, hermes.IsPermanent(err))
		})
	}
}
