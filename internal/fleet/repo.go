package fleet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"campuspro/internal/presence"
)

// BusInput carries the administratively editable bus fields.
type BusInput struct {
	RFIDID      string  `json:"rfid_id"`
	BusNumber   string  `json:"bus_number"`
	DriverName  *string `json:"driver_name"`
	DriverPhone *string `json:"driver_phone"`
	BusCapacity int     `json:"bus_capacity"`
	StartPoint  *string `json:"start_point"`
}

// Route is a bus route shown on the dashboards.
type Route struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartPoint string    `json:"start_point"`
	EndPoint   string    `json:"end_point"`
	Stops      string    `json:"stops"`
	CreatedAt  time.Time `json:"created_at"`
}

// Repository persists fleet data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateBus registers a new bus. New buses start outside campus.
func (r *Repository) CreateBus(ctx context.Context, in BusInput) error {
	if in.RFIDID == "" || in.BusNumber == "" {
		return errors.New("rfid_id and bus_number required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO buses (rfid_id, bus_number, driver_name, driver_phone, bus_capacity, start_point, in_campus, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW())
	`, in.RFIDID, in.BusNumber, in.DriverName, in.DriverPhone, in.BusCapacity, in.StartPoint)
	return err
}

// ListBuses returns all buses ordered by number.
func (r *Repository) ListBuses(ctx context.Context) ([]presence.Bus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT rfid_id, bus_number, driver_name, driver_phone, bus_capacity, start_point,
		       in_campus, in_time, out_time, last_updated
		FROM buses
		ORDER BY bus_number
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buses []presence.Bus
	for rows.Next() {
		var b presence.Bus
		if err := rows.Scan(&b.RFIDID, &b.BusNumber, &b.DriverName, &b.DriverPhone, &b.BusCapacity,
			&b.StartPoint, &b.InCampus, &b.InTime, &b.OutTime, &b.LastUpdated); err != nil {
			return nil, err
		}
		buses = append(buses, b)
	}
	return buses, rows.Err()
}

// UpdateBus rewrites the editable fields of a bus.
func (r *Repository) UpdateBus(ctx context.Context, rfidID string, in BusInput) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE buses
		SET bus_number = $2, driver_name = $3, driver_phone = $4, bus_capacity = $5,
		    start_point = $6, last_updated = NOW()
		WHERE rfid_id = $1
	`, rfidID, in.BusNumber, in.DriverName, in.DriverPhone, in.BusCapacity, in.StartPoint)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("bus not found")
	}
	return nil
}

// DeleteBus removes a bus row.
func (r *Repository) DeleteBus(ctx context.Context, rfidID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM buses WHERE rfid_id = $1`, rfidID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("bus not found")
	}
	return nil
}

// BusByDriver returns the bus assigned to a driver name, or nil.
func (r *Repository) BusByDriver(ctx context.Context, driverName string) (*presence.Bus, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT rfid_id, bus_number, driver_name, driver_phone, bus_capacity, start_point,
		       in_campus, in_time, out_time, last_updated
		FROM buses
		WHERE driver_name = $1
		LIMIT 1
	`, driverName)
	var b presence.Bus
	if err := row.Scan(&b.RFIDID, &b.BusNumber, &b.DriverName, &b.DriverPhone, &b.BusCapacity,
		&b.StartPoint, &b.InCampus, &b.InTime, &b.OutTime, &b.LastUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// CreateRoute inserts a route.
func (r *Repository) CreateRoute(ctx context.Context, rt Route) (Route, error) {
	if rt.Name == "" {
		return Route{}, errors.New("route name required")
	}
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO routes (id, name, start_point, end_point, stops)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, rt.ID, rt.Name, rt.StartPoint, rt.EndPoint, rt.Stops)
	if err := row.Scan(&rt.CreatedAt); err != nil {
		return Route{}, err
	}
	return rt, nil
}

// ListRoutes returns all routes.
func (r *Repository) ListRoutes(ctx context.Context) ([]Route, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, start_point, end_point, stops, created_at FROM routes ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		var rt Route
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.StartPoint, &rt.EndPoint, &rt.Stops, &rt.CreatedAt); err != nil {
			return nil, err
		}
		routes = append(routes, rt)
	}
	return routes, rows.Err()
}

// DeleteRoute removes a route row.
func (r *Repository) DeleteRoute(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM routes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("route not found")
	}
	return nil
}
