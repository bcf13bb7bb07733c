package feedback

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Feedback is one submitted feedback row.
type Feedback struct {
	ID        string    `json:"id"`
	UserName  string    `json:"user_name"`
	Message   string    `json:"message"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists feedback in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores a feedback row. Rating is clamped to 1..5.
func (r *Repository) Insert(ctx context.Context, f Feedback) (Feedback, error) {
	if f.Message == "" {
		return Feedback{}, errors.New("message required")
	}
	if f.Rating < 1 {
		f.Rating = 1
	}
	if f.Rating > 5 {
		f.Rating = 5
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO feedback (id, user_name, message, rating)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, f.ID, f.UserName, f.Message, f.Rating)
	if err := row.Scan(&f.CreatedAt); err != nil {
		return Feedback{}, err
	}
	return f, nil
}

// List returns the most recent feedback rows.
func (r *Repository) List(ctx context.Context, limit int) ([]Feedback, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_name, message, rating, created_at
		FROM feedback
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Feedback
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.UserName, &f.Message, &f.Rating, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}
