package presence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Store is the record-store surface the tracker needs. *Repository satisfies it;
// tests substitute a fake.
type Store interface {
	BusByRFID(ctx context.Context, rfidID string) (*Bus, error)
	SetDriverName(ctx context.Context, rfidID, name string) error
	MarkEntry(ctx context.Context, rfidID string, eventTime, updatedAt time.Time) error
	MarkExit(ctx context.Context, rfidID string, eventTime, updatedAt time.Time) error
	InsertTimeEntry(ctx context.Context, e TimeEntry) error
	LatestTimeEntry(ctx context.Context, rfidID string) (*TimeEntry, error)
	CloseTimeEntry(ctx context.Context, id string, outTime, dateOut time.Time) error
	CountInCampus(ctx context.Context) (int, error)
}

// OccupancyCache caches the in-campus bus count between gate events.
type OccupancyCache interface {
	GetOccupancy(ctx context.Context) (int, bool)
	SetOccupancy(ctx context.Context, n int) error
}

// EventRequest is a decoded gate controller event.
type EventRequest struct {
	RFIDID    string
	EventType string
	Timestamp string
}

// EventResult is what an accepted event reports back to the gate.
// Warnings carries best-effort step failures that did not block the gate.
type EventResult struct {
	BusNumber string
	Message   string
	Timestamp time.Time
	Warnings  []string
}

// Service applies entry/exit transitions against the store.
type Service struct {
	store Store
	cache OccupancyCache
}

// NewService creates a tracker. cache may be nil.
func NewService(store Store, cache OccupancyCache) *Service {
	return &Service{store: store, cache: cache}
}

// RecordEvent validates and applies one gate event. The bus presence update is
// load-bearing; the time-log bookkeeping and driver-name backfill never fail
// the request, they only surface as warnings.
func (s *Service) RecordEvent(ctx context.Context, req EventRequest) (EventResult, error) {
	if req.RFIDID == "" || req.EventType == "" {
		gateEvents.WithLabelValues("unknown", "rejected").Inc()
		return EventResult{}, errors.New("Missing required parameters: rfid_id, event_type, or timestamp")
	}
	if req.EventType != EventEntry && req.EventType != EventExit {
		// The client string never becomes a label value: unbounded input
		// would blow up metric cardinality.
		gateEvents.WithLabelValues("invalid", "rejected").Inc()
		return EventResult{}, errors.New("Invalid event_type. Must be 'entry' or 'exit'")
	}

	// Event time comes from the controller when supplied, otherwise from our clock.
	eventTime := time.Now().UTC()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			gateEvents.WithLabelValues(req.EventType, "rejected").Inc()
			return EventResult{}, fmt.Errorf("Invalid timestamp: %v", err)
		}
		eventTime = parsed.UTC()
	}

	bus, err := s.store.BusByRFID(ctx, req.RFIDID)
	if err != nil {
		gateEvents.WithLabelValues(req.EventType, "error").Inc()
		return EventResult{}, fmt.Errorf("Failed to look up bus: %v", err)
	}
	if bus == nil {
		gateEvents.WithLabelValues(req.EventType, "rejected").Inc()
		return EventResult{}, fmt.Errorf("Bus not found with RFID: %s", req.RFIDID)
	}

	res := EventResult{BusNumber: bus.BusNumber, Timestamp: eventTime}

	// Driver-name backfill never blocks the gate; the in-memory value is used
	// regardless of whether the write stuck.
	if bus.DriverName == nil || *bus.DriverName == "" {
		if err := s.store.SetDriverName(ctx, req.RFIDID, UnknownDriver); err != nil {
			log.Printf("driver name backfill failed for %s: %v", req.RFIDID, err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("driver name backfill failed: %v", err))
		}
		name := UnknownDriver
		bus.DriverName = &name
	}

	now := time.Now().UTC()
	switch req.EventType {
	case EventEntry:
		if err := s.store.MarkEntry(ctx, req.RFIDID, eventTime, now); err != nil {
			gateEvents.WithLabelValues(req.EventType, "error").Inc()
			return EventResult{}, fmt.Errorf("Failed to update bus status: %v", err)
		}
		entry := TimeEntry{
			BusNumber: bus.BusNumber,
			RFIDID:    req.RFIDID,
			InTime:    eventTime,
			DateIn:    dateOf(eventTime),
		}
		if err := s.store.InsertTimeEntry(ctx, entry); err != nil {
			log.Printf("time log insert failed for %s: %v", req.RFIDID, err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("time log insert failed: %v", err))
		}
		res.Message = fmt.Sprintf("Bus %s entered successfully", bus.BusNumber)

	case EventExit:
		if err := s.store.MarkExit(ctx, req.RFIDID, eventTime, now); err != nil {
			gateEvents.WithLabelValues(req.EventType, "error").Inc()
			return EventResult{}, fmt.Errorf("Failed to update bus status: %v", err)
		}
		latest, err := s.store.LatestTimeEntry(ctx, req.RFIDID)
		switch {
		case err != nil:
			log.Printf("time log lookup failed for %s: %v", req.RFIDID, err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("time log lookup failed: %v", err))
		case latest == nil:
			log.Printf("no time log entry to close for %s", req.RFIDID)
			res.Warnings = append(res.Warnings, "no time log entry to close")
		default:
			if err := s.store.CloseTimeEntry(ctx, latest.ID, eventTime, dateOf(eventTime)); err != nil {
				log.Printf("time log close failed for %s: %v", req.RFIDID, err)
				res.Warnings = append(res.Warnings, fmt.Sprintf("time log close failed: %v", err))
			}
		}
		res.Message = fmt.Sprintf("Bus %s exited successfully", bus.BusNumber)
	}

	gateEvents.WithLabelValues(req.EventType, "accepted").Inc()
	return res, nil
}

// Status reports the current in-campus flag for a tag.
func (s *Service) Status(ctx context.Context, rfidID string) (bool, error) {
	if rfidID == "" {
		return false, errors.New("rfid_id query parameter is required")
	}
	bus, err := s.store.BusByRFID(ctx, rfidID)
	if err != nil {
		return false, fmt.Errorf("Failed to look up bus: %v", err)
	}
	if bus == nil {
		return false, fmt.Errorf("Bus not found with RFID: %s", rfidID)
	}
	return bus.InCampus, nil
}

// Occupancy returns the number of buses currently in campus, preferring the
// cache and falling back to a live count.
func (s *Service) Occupancy(ctx context.Context) (int, error) {
	if s.cache != nil {
		if n, ok := s.cache.GetOccupancy(ctx); ok {
			return n, nil
		}
	}
	n, err := s.store.CountInCampus(ctx)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.SetOccupancy(ctx, n); err != nil {
			log.Printf("occupancy cache write failed: %v", err)
		}
	}
	return n, nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
