package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the store uses. It lets unit tests swap
// in pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type PostgresStore struct {
	pool DB
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithDB wraps an existing connection pool.
func NewPostgresStoreWithDB(db DB) *PostgresStore {
	return &PostgresStore{pool: db}
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies the schema idempotently.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const recordingColumns = `id, client_code, agent_id, agent_name, project_id,
	call_duration_seconds, file_size_bytes, file_date, file_name, file_path`

func (s *PostgresStore) UpsertRecordings(ctx context.Context, recs []*Recording) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n := 0
	for _, r := range recs {
		tag, err := tx.Exec(ctx, `
			INSERT INTO recordings (`+recordingColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				client_code = EXCLUDED.client_code,
				agent_id = EXCLUDED.agent_id,
				agent_name = EXCLUDED.agent_name,
				project_id = EXCLUDED.project_id,
				call_duration_seconds = EXCLUDED.call_duration_seconds,
				file_size_bytes = EXCLUDED.file_size_bytes`,
			r.ID, r.ClientCode, r.AgentID, r.AgentName, r.ProjectID,
			r.CallDurationSeconds, r.FileSizeBytes, r.FileDate, r.FileName, r.FilePath,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert recording %d: %w", r.ID, err)
		}
		n += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context, from, to time.Time) ([]*Recording, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordingColumns+`
		FROM recordings WHERE file_date >= $1 AND file_date <= $2
		ORDER BY file_date ASC, id ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *PostgresStore) GetRecording(ctx context.Context, id int64) (*Recording, error) {
	r, err := scanRecording(s.pool.QueryRow(ctx, `
		SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func scanRecording(row pgx.Row) (*Recording, error) {
	r := &Recording{}
	if err := row.Scan(
		&r.ID, &r.ClientCode, &r.AgentID, &r.AgentName, &r.ProjectID,
		&r.CallDurationSeconds, &r.FileSizeBytes, &r.FileDate, &r.FileName, &r.FilePath,
	); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) CreateSelection(ctx context.Context, sel *Selection) error {
	if sel.ID == uuid.Nil {
		sel.ID = uuid.New()
	}
	if sel.Status == "" {
		sel.Status = StatusSelected
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO audit_selections (id, recording_id, agent_id, agent_name, client_code,
			week_start, week_end, status, quota_exempt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		sel.ID, sel.RecordingID, sel.AgentID, sel.AgentName, sel.ClientCode,
		sel.WeekStart, sel.WeekEnd, sel.Status, sel.QuotaExempt,
	).Scan(&sel.CreatedAt, &sel.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateSelection
	}
	return err
}

const selectionColumns = `a.id, a.recording_id, a.agent_id, a.agent_name, a.client_code,
	a.week_start, a.week_end, a.status, a.score, a.notes, a.quota_exempt,
	a.created_at, a.updated_at,
	r.file_date, r.project_id, r.call_duration_seconds`

const selectionFrom = ` FROM audit_selections a LEFT JOIN recordings r ON r.id = a.recording_id`

func (s *PostgresStore) GetSelection(ctx context.Context, id uuid.UUID) (*Selection, error) {
	sel, err := scanSelection(s.pool.QueryRow(ctx,
		`SELECT `+selectionColumns+selectionFrom+` WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sel, nil
}

func (s *PostgresStore) ListSelections(ctx context.Context, filter SelectionFilter) ([]*Selection, error) {
	query := `SELECT ` + selectionColumns + selectionFrom + ` WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.WeekStart != nil {
		n++
		query += fmt.Sprintf(" AND a.week_start = $%d", n)
		args = append(args, *filter.WeekStart)
	}
	if filter.ClientCode != "" {
		n++
		query += fmt.Sprintf(" AND a.client_code = $%d", n)
		args = append(args, filter.ClientCode)
	}
	if filter.AgentID != "" {
		n++
		query += fmt.Sprintf(" AND a.agent_id = $%d", n)
		args = append(args, filter.AgentID)
	}
	if filter.Status != nil {
		n++
		query += fmt.Sprintf(" AND a.status = $%d", n)
		args = append(args, string(*filter.Status))
	}
	if filter.FileDate != nil {
		n++
		query += fmt.Sprintf(" AND r.file_date = $%d", n)
		args = append(args, *filter.FileDate)
	}

	query += " ORDER BY a.week_start DESC, a.agent_name ASC"

	if filter.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Selection
	for rows.Next() {
		sel, err := scanSelection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}

func scanSelection(row pgx.Row) (*Selection, error) {
	sel := &Selection{}
	var score sql.NullInt32
	if err := row.Scan(
		&sel.ID, &sel.RecordingID, &sel.AgentID, &sel.AgentName, &sel.ClientCode,
		&sel.WeekStart, &sel.WeekEnd, &sel.Status, &score, &sel.Notes, &sel.QuotaExempt,
		&sel.CreatedAt, &sel.UpdatedAt,
		&sel.FileDate, &sel.ProjectID, &sel.CallDurationSeconds,
	); err != nil {
		return nil, err
	}
	if score.Valid {
		v := int(score.Int32)
		sel.Score = &v
	}
	return sel, nil
}

// LatestSelectedDay returns the most recent recording day that has a
// selection, or the zero time when nothing has been selected yet.
func (s *PostgresStore) LatestSelectedDay(ctx context.Context) (time.Time, error) {
	var day *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(r.file_date)`+selectionFrom).Scan(&day)
	if err != nil {
		return time.Time{}, err
	}
	if day == nil {
		return time.Time{}, nil
	}
	return *day, nil
}

func (s *PostgresStore) UpdateSelection(ctx context.Context, id uuid.UUID, upd SelectionUpdate) (bool, error) {
	query := `UPDATE audit_selections SET updated_at = now()`
	args := []interface{}{id}
	n := 1

	if upd.Status != nil {
		if _, err := ParseStatus(string(*upd.Status)); err != nil {
			return false, err
		}
		n++
		query += fmt.Sprintf(", status = $%d", n)
		args = append(args, string(*upd.Status))
	}
	if upd.Score != nil {
		n++
		query += fmt.Sprintf(", score = $%d", n)
		args = append(args, *upd.Score)
	}
	if upd.Notes != nil {
		n++
		query += fmt.Sprintf(", notes = $%d", n)
		args = append(args, *upd.Notes)
	}
	query += " WHERE id = $1"

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SaveEvaluation upserts the current judgment set and score for a recording.
// The original_* columns are only written when they are still NULL, so
// re-running an analysis never disturbs the audit baseline. An existing row
// is only replaced by the same evaluator; otherwise ErrEvaluationCorrected
// is returned. On return ev carries the stored originals.
func (s *PostgresStore) SaveEvaluation(ctx context.Context, ev *Evaluation) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	judgmentsJSON, err := json.Marshal(ev.Judgments)
	if err != nil {
		return fmt.Errorf("marshal judgments: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var originalJSON []byte
	err = tx.QueryRow(ctx, `
		INSERT INTO qa_evaluations (id, recording_id, selection_id, rubric_id,
			judgments, score, original_judgments, original_score,
			summary, transcript, unintelligible, evaluator)
		VALUES ($1, $2, $3, $4, $5, $6, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (recording_id) DO UPDATE SET
			rubric_id = EXCLUDED.rubric_id,
			judgments = EXCLUDED.judgments,
			score = EXCLUDED.score,
			summary = EXCLUDED.summary,
			transcript = EXCLUDED.transcript,
			unintelligible = EXCLUDED.unintelligible,
			evaluator = EXCLUDED.evaluator,
			original_judgments = COALESCE(qa_evaluations.original_judgments, EXCLUDED.original_judgments),
			original_score = COALESCE(qa_evaluations.original_score, EXCLUDED.original_score),
			updated_at = now()
		WHERE qa_evaluations.evaluator = EXCLUDED.evaluator
		RETURNING id, original_judgments, original_score, created_at, updated_at`,
		ev.ID, ev.RecordingID, ev.SelectionID, ev.RubricID,
		judgmentsJSON, ev.Score,
		ev.Summary, ev.Transcript, ev.Unintelligible, ev.Evaluator,
	).Scan(&ev.ID, &originalJSON, &ev.OriginalScore, &ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrEvaluationCorrected
	}
	if err != nil {
		return fmt.Errorf("upsert evaluation: %w", err)
	}
	if err := json.Unmarshal(originalJSON, &ev.OriginalJudgments); err != nil {
		return fmt.Errorf("decode original judgments: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE audit_selections SET status = $2, score = $3, notes = $4, updated_at = now()
		WHERE id = $1`,
		ev.SelectionID, StatusCompleted, ev.Score, ev.Summary,
	); err != nil {
		return fmt.Errorf("complete selection: %w", err)
	}

	return tx.Commit(ctx)
}

const evaluationColumns = `id, recording_id, selection_id, rubric_id, judgments, score,
	original_judgments, original_score, summary, transcript, unintelligible, evaluator,
	created_at, updated_at`

func (s *PostgresStore) GetEvaluation(ctx context.Context, recordingID int64) (*Evaluation, error) {
	ev := &Evaluation{}
	var judgmentsJSON, originalJSON []byte
	var originalScore sql.NullInt32
	err := s.pool.QueryRow(ctx, `
		SELECT `+evaluationColumns+`
		FROM qa_evaluations WHERE recording_id = $1`, recordingID,
	).Scan(
		&ev.ID, &ev.RecordingID, &ev.SelectionID, &ev.RubricID, &judgmentsJSON, &ev.Score,
		&originalJSON, &originalScore, &ev.Summary, &ev.Transcript, &ev.Unintelligible, &ev.Evaluator,
		&ev.CreatedAt, &ev.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(judgmentsJSON, &ev.Judgments); err != nil {
		return nil, fmt.Errorf("decode judgments: %w", err)
	}
	if originalJSON != nil {
		if err := json.Unmarshal(originalJSON, &ev.OriginalJudgments); err != nil {
			return nil, fmt.Errorf("decode original judgments: %w", err)
		}
	}
	if originalScore.Valid {
		ev.OriginalScore = int(originalScore.Int32)
	}
	return ev, nil
}

// ApplyCorrection overwrites the mutable judgment set and score, appends the
// change record when there is one, and mirrors the score onto the selection.
// The original_* columns are not part of the statement. ev.UpdatedAt must
// be the value that was read; if the row moved on since, nothing is written
// and ErrStaleEvaluation is returned.
func (s *PostgresStore) ApplyCorrection(ctx context.Context, ev *Evaluation, change *ChangeRecord) error {
	judgmentsJSON, err := json.Marshal(ev.Judgments)
	if err != nil {
		return fmt.Errorf("marshal judgments: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if change != nil {
		if change.ID == uuid.Nil {
			change.ID = uuid.New()
		}
		changesJSON, err := json.Marshal(change.Changes)
		if err != nil {
			return fmt.Errorf("marshal changes: %w", err)
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO evaluation_changes (id, evaluation_id, selection_id, actor, changes, score_before, score_after)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at`,
			change.ID, change.EvaluationID, change.SelectionID, change.Actor,
			changesJSON, change.ScoreBefore, change.ScoreAfter,
		).Scan(&change.CreatedAt); err != nil {
			return fmt.Errorf("insert change record: %w", err)
		}
	}

	err = tx.QueryRow(ctx, `
		UPDATE qa_evaluations SET judgments = $2, score = $3, evaluator = $4, updated_at = now()
		WHERE id = $1 AND updated_at = $5
		RETURNING updated_at`,
		ev.ID, judgmentsJSON, ev.Score, ev.Evaluator, ev.UpdatedAt,
	).Scan(&ev.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrStaleEvaluation
	}
	if err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE audit_selections SET score = $2, updated_at = now() WHERE id = $1`,
		ev.SelectionID, ev.Score,
	); err != nil {
		return fmt.Errorf("update selection score: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ListChanges(ctx context.Context, selectionID uuid.UUID) ([]*ChangeRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, evaluation_id, selection_id, actor, changes, score_before, score_after, created_at
		FROM evaluation_changes WHERE selection_id = $1
		ORDER BY created_at DESC`, selectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChangeRecord
	for rows.Next() {
		c := &ChangeRecord{}
		var changesJSON []byte
		if err := rows.Scan(&c.ID, &c.EvaluationID, &c.SelectionID, &c.Actor,
			&changesJSON, &c.ScoreBefore, &c.ScoreAfter, &c.CreatedAt); err != nil {
			return nil, err
		}
		if changesJSON != nil {
			if err := json.Unmarshal(changesJSON, &c.Changes); err != nil {
				return nil, fmt.Errorf("decode changes: %w", err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
