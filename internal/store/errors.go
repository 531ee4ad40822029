package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateSelection means a uniqueness constraint on the selection
	// table rejected the insert. Selection treats it as a benign race.
	ErrDuplicateSelection = errors.New("selection already exists")

	ErrInvalidStatus = errors.New("invalid selection status")

	// ErrOriginalMissing is returned when a correction targets an
	// evaluation that was never scored.
	ErrOriginalMissing = errors.New("evaluation has not been scored")

	// ErrStaleEvaluation is returned when the evaluation changed between
	// reading it and applying a correction.
	ErrStaleEvaluation = errors.New("evaluation was modified concurrently")

	// ErrEvaluationCorrected means a reviewer has taken over the evaluation,
	// so a machine re-score may not replace it.
	ErrEvaluationCorrected = errors.New("evaluation has reviewer corrections")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
