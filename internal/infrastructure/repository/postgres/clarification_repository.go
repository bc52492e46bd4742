package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/buildcost/docpipe/internal/core/domain"
)

type ClarificationRepository struct {
	db *sql.DB
}

func NewClarificationRepository(db *sql.DB) *ClarificationRepository {
	return &ClarificationRepository{db: db}
}

const clarificationColumns = `
id, document_id, item_id, field_key, question, status, answer, created_at, answered_at`

func (r *ClarificationRepository) Create(ctx context.Context, q *domain.ClarificationQuestion) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO clarification_questions (
	id, document_id, item_id, field_key, question, status, answer, created_at, answered_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		q.ID, q.DocumentID, q.ItemID, q.FieldKey, q.Question,
		string(q.Status), nullString(q.Answer), q.CreatedAt, nullTime(q.AnsweredAt),
	)
	if err != nil {
		return fmt.Errorf("insert clarification: %w", err)
	}
	return nil
}

func (r *ClarificationRepository) GetByID(ctx context.Context, id string) (*domain.ClarificationQuestion, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+clarificationColumns+`
FROM clarification_questions
WHERE id = $1
`, id)
	q, err := scanClarification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "clarification", fmt.Errorf("no question with id %s", id))
		}
		return nil, err
	}
	return q, nil
}

func (r *ClarificationRepository) ListOpenByDocument(ctx context.Context, documentID string) ([]domain.ClarificationQuestion, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+clarificationColumns+`
FROM clarification_questions
WHERE document_id = $1 AND status = $2
ORDER BY created_at, id
`, documentID, string(domain.QuestionOpen))
	if err != nil {
		return nil, fmt.Errorf("query clarifications: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.ClarificationQuestion, 0, 4)
	for rows.Next() {
		q, err := scanClarification(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clarifications: %w", err)
	}
	return questions, nil
}

func (r *ClarificationRepository) MarkAnswered(ctx context.Context, id, answer string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE clarification_questions
SET status = $2, answer = $3, answered_at = $4
WHERE id = $1 AND status = $5
`, id, string(domain.QuestionAnswered), answer, at, string(domain.QuestionOpen))
	if err != nil {
		return fmt.Errorf("mark clarification answered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrConflict, "clarification", fmt.Errorf("question %s is not open", id))
	}
	return nil
}

func scanClarification(row rowScanner) (*domain.ClarificationQuestion, error) {
	var q domain.ClarificationQuestion
	var status string
	var answer sql.NullString
	var answeredAt sql.NullTime

	err := row.Scan(
		&q.ID, &q.DocumentID, &q.ItemID, &q.FieldKey, &q.Question,
		&status, &answer, &q.CreatedAt, &answeredAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan clarification: %w", err)
	}
	q.Status = domain.QuestionStatus(status)
	q.Answer = answer.String
	q.AnsweredAt = timePtr(answeredAt)
	return &q, nil
}
