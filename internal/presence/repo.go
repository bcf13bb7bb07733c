package presence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists bus presence data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// BusByRFID returns the bus carrying the given tag, or nil when no row matches.
func (r *Repository) BusByRFID(ctx context.Context, rfidID string) (*Bus, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT rfid_id, bus_number, driver_name, driver_phone, bus_capacity, start_point,
		       in_campus, in_time, out_time, last_updated
		FROM buses
		WHERE rfid_id = $1
	`, rfidID)
	var b Bus
	if err := row.Scan(&b.RFIDID, &b.BusNumber, &b.DriverName, &b.DriverPhone, &b.BusCapacity,
		&b.StartPoint, &b.InCampus, &b.InTime, &b.OutTime, &b.LastUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// SetDriverName backfills the driver name on a bus row.
func (r *Repository) SetDriverName(ctx context.Context, rfidID, name string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE buses SET driver_name = $2, last_updated = NOW() WHERE rfid_id = $1
	`, rfidID, name)
	return err
}

// MarkEntry flips the bus into campus and stamps the entry time.
func (r *Repository) MarkEntry(ctx context.Context, rfidID string, eventTime, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE buses
		SET in_campus = TRUE, in_time = $2, last_updated = $3
		WHERE rfid_id = $1
	`, rfidID, eventTime, updatedAt)
	return err
}

// MarkExit flips the bus out of campus and stamps the exit time.
func (r *Repository) MarkExit(ctx context.Context, rfidID string, eventTime, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE buses
		SET in_campus = FALSE, out_time = $2, last_updated = $3
		WHERE rfid_id = $1
	`, rfidID, eventTime, updatedAt)
	return err
}

// InsertTimeEntry appends a new open presence interval.
func (r *Repository) InsertTimeEntry(ctx context.Context, e TimeEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bus_times (id, bus_number, rfid_id, in_time, date_in)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.BusNumber, e.RFIDID, e.InTime, e.DateIn)
	return err
}

// LatestTimeEntry returns the most recently created interval for a tag, or nil.
// Ordering is by created_at; there is no open/closed flag on the row.
func (r *Repository) LatestTimeEntry(ctx context.Context, rfidID string) (*TimeEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, bus_number, rfid_id, in_time, out_time, date_in, date_out, created_at
		FROM bus_times
		WHERE rfid_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, rfidID)
	var e TimeEntry
	if err := row.Scan(&e.ID, &e.BusNumber, &e.RFIDID, &e.InTime, &e.OutTime,
		&e.DateIn, &e.DateOut, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// CloseTimeEntry patches the exit fields onto an interval row.
func (r *Repository) CloseTimeEntry(ctx context.Context, id string, outTime, dateOut time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bus_times SET out_time = $2, date_out = $3 WHERE id = $1
	`, id, outTime, dateOut)
	return err
}

// CountInCampus counts buses currently inside.
func (r *Repository) CountInCampus(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buses WHERE in_campus`).Scan(&n)
	return n, err
}

// ListTimeEntries returns recent intervals, optionally filtered by tag.
func (r *Repository) ListTimeEntries(ctx context.Context, rfidID string, limit int) ([]TimeEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, bus_number, rfid_id, in_time, out_time, date_in, date_out, created_at
		FROM bus_times`
	args := []any{}
	if rfidID != "" {
		query += ` WHERE rfid_id = $1`
		args = append(args, rfidID)
	}
	if len(args) == 1 {
		query += ` ORDER BY created_at DESC LIMIT $2`
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []TimeEntry
	for rows.Next() {
		var e TimeEntry
		if err := rows.Scan(&e.ID, &e.BusNumber, &e.RFIDID, &e.InTime, &e.OutTime,
			&e.DateIn, &e.DateOut, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
