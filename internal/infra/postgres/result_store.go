package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"inclusion-quiz-service/internal/domain"
)

type resultRow struct {
	bun.BaseModel `bun:"table:quiz_results"`

	AttemptID    string        `bun:"attempt_id,pk"`
	LearnerID    string        `bun:"learner_id"`
	QuizID       string        `bun:"quiz_id"`
	ScorePercent *int          `bun:"score_percent"`
	Verdict      string        `bun:"verdict"`
	Forced       bool          `bun:"forced"`
	Result       domain.Result `bun:"result,type:jsonb"`
	GradedAt     time.Time     `bun:"graded_at"`
}

// ResultStore persists graded results with bun. Saving an attempt that is
// already stored is a no-op, so grading retries never duplicate rows.
type ResultStore struct {
	db *bun.DB
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

func (s *ResultStore) SaveResult(ctx context.Context, record domain.ResultRecord) error {
	row := resultRow{
		AttemptID:    record.AttemptID,
		LearnerID:    record.LearnerID,
		QuizID:       record.Result.QuizID,
		ScorePercent: record.Result.ScorePercent,
		Verdict:      string(record.Result.Verdict),
		Forced:       record.Result.Forced,
		Result:       record.Result,
		GradedAt:     record.Result.GradedAt,
	}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (attempt_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// GetResult loads a stored result. ok is false when the attempt has none.
func (s *ResultStore) GetResult(ctx context.Context, attemptID string) (record domain.ResultRecord, ok bool, err error) {
	var row resultRow
	err = s.db.NewSelect().Model(&row).Where("attempt_id = ?", attemptID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ResultRecord{}, false, nil
	}
	if err != nil {
		return domain.ResultRecord{}, false, fmt.Errorf("select result: %w", err)
	}
	return domain.ResultRecord{AttemptID: row.AttemptID, LearnerID: row.LearnerID, Result: row.Result}, true, nil
}
