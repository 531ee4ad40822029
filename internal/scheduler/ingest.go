package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/CallAudit/internal/evaluation"
	"github.com/MikeSquared-Agency/CallAudit/internal/hermes"
	"github.com/MikeSquared-Agency/CallAudit/internal/rubric"
	"github.com/MikeSquared-Agency/CallAudit/internal/store"
)

type RecordingStore interface {
	UpsertRecordings(ctx context.Context, recs []*store.Recording) (int, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, selectionID uuid.UUID, payload []byte) (*evaluation.Outcome, error)
}

// Ingest consumes collaborator messages: recordings found by discovery and
// judgment documents produced for selected recordings.
type Ingest struct {
	hermes     hermes.Client
	recordings RecordingStore
	evaluator  Evaluator
	logger     *slog.Logger
	timeout    time.Duration
}

func NewIngest(h hermes.Client, recs RecordingStore, ev Evaluator, logger *slog.Logger) *Ingest {
	return &Ingest{
		hermes:     h,
		recordings: recs,
		evaluator:  ev,
		logger:     logger,
		timeout:    30 * time.Second,
	}
}

// SetupSubscriptions registers the NATS handlers. Judgment documents go
// through a durable consumer when the client supports one, so a document
// that fails for a transient reason is redelivered. It is a no-op without
// a hermes client.
func (i *Ingest) SetupSubscriptions(ctx context.Context) error {
	if i.hermes == nil {
		return nil
	}
	if err := i.hermes.Subscribe(hermes.SubjectRecordingsDiscovered, func(_ string, data []byte) {
		if _, err := i.handleRecordings(data); err != nil {
			i.logger.Warn("recordings event rejected", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", hermes.SubjectRecordingsDiscovered, err)
	}

	if c, ok := i.hermes.(hermes.Consumer); ok {
		if err := c.Consume(ctx, hermes.ConsumerJudgments, hermes.SubjectJudgmentReady, func(subject string, data []byte) error {
			err := i.handleJudgment(data)
			if err != nil {
				i.logger.Warn("judgment event not scored", "subject", subject, "redeliver", !hermes.IsPermanent(err), "error", err)
			}
			return err
		}); err != nil {
			return fmt.Errorf("consume %s: %w", hermes.SubjectJudgmentReady, err)
		}
		return nil
	}
	if err := i.hermes.Subscribe(hermes.SubjectJudgmentReady, func(subject string, data []byte) {
		if err := i.handleJudgment(data); err != nil {
			i.logger.Warn("judgment event not scored", "subject", subject, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", hermes.SubjectJudgmentReady, err)
	}
	return nil
}

func (i *Ingest) handleRecordings(data []byte) (int, error) {
	var evt hermes.RecordingsDiscoveredEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return 0, fmt.Errorf("decode recordings event: %w", err)
	}
	if len(evt.Recordings) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()
	n, err := i.recordings.UpsertRecordings(ctx, evt.Recordings)
	if err != nil {
		return 0, err
	}
	i.logger.Info("recordings ingested", "count", n)
	return n, nil
}

func (i *Ingest) handleJudgment(data []byte) error {
	var evt hermes.JudgmentReadyEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return hermes.Permanent(fmt.Errorf("decode judgment event: %w", err))
	}
	id, err := uuid.Parse(evt.SelectionID)
	if err != nil {
		return hermes.Permanent(fmt.Errorf("invalid selection id %q: %w", evt.SelectionID, err))
	}

	payload := []byte(evt.Payload)
	// The source may send its raw text response as a JSON string.
	var text string
	if err := json.Unmarshal(evt.Payload, &text); err == nil {
		payload = []byte(text)
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()
	if _, err := i.evaluator.Evaluate(ctx, id, payload); err != nil {
		var retry *evaluation.RetryableError
		if errors.As(err, &retry) {
			i.logger.Warn("judgment payload malformed, source may resend", "selection_id", id)
		}
		if permanentJudgmentError(err) {
			return hermes.Permanent(err)
		}
		return err
	}
	return nil
}

// permanentJudgmentError reports whether redelivering the same document
// would fail again. A malformed payload needs a new document from the
// source, not the same bytes.
func permanentJudgmentError(err error) bool {
	var retry *evaluation.RetryableError
	return errors.As(err, &retry) ||
		errors.Is(err, evaluation.ErrSelectionNotFound) ||
		errors.Is(err, rubric.ErrConfigurationMissing) ||
		errors.Is(err, store.ErrEvaluationCorrected)
}
