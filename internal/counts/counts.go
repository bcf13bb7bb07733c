package counts

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// DateLayout is the wire format for count dates.
const DateLayout = "2006-01-02"

// Count is a per-bus per-day head count.
type Count struct {
	ID           int64     `json:"id"`
	BusNumber    string    `json:"bus_number"`
	CountDate    time.Time `json:"count_date"`
	StudentCount int       `json:"student_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store abstracts the row operations so the replace logic is testable.
type Store interface {
	DeleteForDay(ctx context.Context, busNumber string, day time.Time) error
	Insert(ctx context.Context, busNumber string, day time.Time, n int) error
	ForDay(ctx context.Context, busNumber string, day time.Time) (*Count, error)
}

// Repository persists counts in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DeleteForDay removes any existing row for the bus/day pair.
func (r *Repository) DeleteForDay(ctx context.Context, busNumber string, day time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM student_counts WHERE bus_number = $1 AND count_date = $2
	`, busNumber, day)
	return err
}

// Insert appends a fresh count row.
func (r *Repository) Insert(ctx context.Context, busNumber string, day time.Time, n int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO student_counts (bus_number, count_date, student_count)
		VALUES ($1, $2, $3)
	`, busNumber, day, n)
	return err
}

// ForDay returns the row for a bus/day pair, or nil.
func (r *Repository) ForDay(ctx context.Context, busNumber string, day time.Time) (*Count, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, bus_number, count_date, student_count, created_at
		FROM student_counts
		WHERE bus_number = $1 AND count_date = $2
	`, busNumber, day)
	var c Count
	if err := row.Scan(&c.ID, &c.BusNumber, &c.CountDate, &c.StudentCount, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Service applies the same-day replace semantics for counts.
type Service struct {
	store Store
}

// NewService creates a service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Record replaces the count for a bus/day pair. The existing row is deleted
// first so retried submissions end with exactly one row for the day.
func (s *Service) Record(ctx context.Context, busNumber, dateStr string, n int) error {
	if busNumber == "" {
		return errors.New("bus_number required")
	}
	if n < 0 {
		return errors.New("student_count must not be negative")
	}
	day, err := time.ParseInLocation(DateLayout, dateStr, time.UTC)
	if err != nil {
		return errors.New("date must be YYYY-MM-DD")
	}
	if err := s.store.DeleteForDay(ctx, busNumber, day); err != nil {
		return err
	}
	return s.store.Insert(ctx, busNumber, day, n)
}

// ForDay returns the recorded count for a bus/day pair.
func (s *Service) ForDay(ctx context.Context, busNumber, dateStr string) (*Count, error) {
	if busNumber == "" {
		return nil, errors.New("bus_number required")
	}
	day, err := time.ParseInLocation(DateLayout, dateStr, time.UTC)
	if err != nil {
		return nil, errors.New("date must be YYYY-MM-DD")
	}
	return s.store.ForDay(ctx, busNumber, day)
}
