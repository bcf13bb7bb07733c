package presence

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStore struct {
	buses   map[string]*Bus
	entries []TimeEntry

	failSetDriver bool
	failMarkEntry bool
	failMarkExit  bool
	failInsert    bool
	failLatest    bool
	failClose     bool

	driverNameWrites []string
}

func newFakeStore(buses ...Bus) *fakeStore {
	f := &fakeStore{buses: map[string]*Bus{}}
	for i := range buses {
		b := buses[i]
		f.buses[b.RFIDID] = &b
	}
	return f
}

func (f *fakeStore) BusByRFID(_ context.Context, rfidID string) (*Bus, error) {
	b, ok := f.buses[rfidID]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (f *fakeStore) SetDriverName(_ context.Context, rfidID, name string) error {
	if f.failSetDriver {
		return errors.New("write refused")
	}
	f.driverNameWrites = append(f.driverNameWrites, rfidID+"="+name)
	if b, ok := f.buses[rfidID]; ok {
		b.DriverName = &name
	}
	return nil
}

func (f *fakeStore) MarkEntry(_ context.Context, rfidID string, eventTime, updatedAt time.Time) error {
	if f.failMarkEntry {
		return errors.New("connection reset")
	}
	b := f.buses[rfidID]
	b.InCampus = true
	b.InTime = &eventTime
	b.LastUpdated = updatedAt
	return nil
}

func (f *fakeStore) MarkExit(_ context.Context, rfidID string, eventTime, updatedAt time.Time) error {
	if f.failMarkExit {
		return errors.New("connection reset")
	}
	b := f.buses[rfidID]
	b.InCampus = false
	b.OutTime = &eventTime
	b.LastUpdated = updatedAt
	return nil
}

func (f *fakeStore) InsertTimeEntry(_ context.Context, e TimeEntry) error {
	if f.failInsert {
		return errors.New("insert refused")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeStore) LatestTimeEntry(_ context.Context, rfidID string) (*TimeEntry, error) {
	if f.failLatest {
		return nil, errors.New("query refused")
	}
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].RFIDID == rfidID {
			copied := f.entries[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CloseTimeEntry(_ context.Context, id string, outTime, dateOut time.Time) error {
	if f.failClose {
		return errors.New("update refused")
	}
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries[i].OutTime = &outTime
			f.entries[i].DateOut = &dateOut
			return nil
		}
	}
	return errors.New("no such entry")
}

func (f *fakeStore) CountInCampus(_ context.Context) (int, error) {
	n := 0
	for _, b := range f.buses {
		if b.InCampus {
			n++
		}
	}
	return n, nil
}

func seededBus() Bus {
	name := "A. Kumar"
	return Bus{RFIDID: "RFID001", BusNumber: "BUS01", DriverName: &name}
}

func TestRecordEventEntry(t *testing.T) {
	store := newFakeStore(seededBus())
	svc := NewService(store, nil)

	res, err := svc.RecordEvent(context.Background(), EventRequest{
		RFIDID:    "RFID001",
		EventType: "entry",
		Timestamp: "2024-05-01T06:15:00Z",
	})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if res.Message != "Bus BUS01 entered successfully" {
		t.Errorf("message = %q", res.Message)
	}
	if res.BusNumber != "BUS01" {
		t.Errorf("bus_number = %q", res.BusNumber)
	}
	if got := res.Timestamp.Format(time.RFC3339); got != "2024-05-01T06:15:00Z" {
		t.Errorf("timestamp = %q", got)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}

	bus := store.buses["RFID001"]
	if !bus.InCampus {
		t.Error("bus should be in campus")
	}
	if bus.InTime == nil || !bus.InTime.Equal(res.Timestamp) {
		t.Errorf("in_time = %v, want %v", bus.InTime, res.Timestamp)
	}
	if len(store.entries) != 1 {
		t.Fatalf("time entries = %d, want 1", len(store.entries))
	}
	if store.entries[0].OutTime != nil {
		t.Error("new time entry should be open")
	}
	if got := store.entries[0].DateIn.Format("2006-01-02"); got != "2024-05-01" {
		t.Errorf("date_in = %q", got)
	}
}

func TestRecordEventExitClosesLatestEntry(t *testing.T) {
	store := newFakeStore(seededBus())
	svc := NewService(store, nil)
	ctx := context.Background()

	if _, err := svc.RecordEvent(ctx, EventRequest{RFIDID: "RFID001", EventType: "entry", Timestamp: "2024-05-01T06:15:00Z"}); err != nil {
		t.Fatalf("entry: %v", err)
	}
	res, err := svc.RecordEvent(ctx, EventRequest{RFIDID: "RFID001", EventType: "exit", Timestamp: "2024-05-01T07:50:00Z"})
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if res.Message != "Bus BUS01 exited successfully" {
		t.Errorf("message = %q", res.Message)
	}

	bus := store.buses["RFID001"]
	if bus.InCampus {
		t.Error("bus should be outside campus")
	}
	entry := store.entries[0]
	if entry.OutTime == nil {
		t.Fatal("time entry should be closed")
	}
	if got := entry.OutTime.Format(time.RFC3339); got != "2024-05-01T07:50:00Z" {
		t.Errorf("out_time = %q", got)
	}
	if entry.DateOut == nil || entry.DateOut.Format("2006-01-02") != "2024-05-01" {
		t.Errorf("date_out = %v", entry.DateOut)
	}
}

// Double entry is accepted, not rejected: the design has no idempotency key,
// so a retried event produces a second open interval. That is the documented
// behavior, not a bug to fix here.
func TestRecordEventDoubleEntryAccumulates(t *testing.T) {
	store := newFakeStore(seededBus())
	svc := NewService(store, nil)
	ctx := context.Background()

	for _, ts := range []string{"2024-05-01T06:15:00Z", "2024-05-01T06:16:00Z"} {
		if _, err := svc.RecordEvent(ctx, EventRequest{RFIDID: "RFID001", EventType: "entry", Timestamp: ts}); err != nil {
			t.Fatalf("entry %s: %v", ts, err)
		}
	}

	if len(store.entries) != 2 {
		t.Fatalf("time entries = %d, want 2", len(store.entries))
	}
	for i, e := range store.entries {
		if e.OutTime != nil {
			t.Errorf("entry %d should be open", i)
		}
	}
	// The bus row carries the re-stamped in_time of the second event.
	if got := store.buses["RFID001"].InTime.Format(time.RFC3339); got != "2024-05-01T06:16:00Z" {
		t.Errorf("in_time = %q", got)
	}
}

func TestRecordEventValidation(t *testing.T) {
	cases := []struct {
		name    string
		req     EventRequest
		wantErr string
	}{
		{"missing rfid", EventRequest{EventType: "entry"}, "Missing required parameters: rfid_id, event_type, or timestamp"},
		{"missing event type", EventRequest{RFIDID: "RFID001"}, "Missing required parameters: rfid_id, event_type, or timestamp"},
		{"uppercase event type", EventRequest{RFIDID: "RFID001", EventType: "ENTRY"}, "Invalid event_type. Must be 'entry' or 'exit'"},
		{"mixed case event type", EventRequest{RFIDID: "RFID001", EventType: "Entry"}, "Invalid event_type. Must be 'entry' or 'exit'"},
		{"bogus event type", EventRequest{RFIDID: "RFID001", EventType: "arrive"}, "Invalid event_type. Must be 'entry' or 'exit'"},
		{"bad timestamp", EventRequest{RFIDID: "RFID001", EventType: "entry", Timestamp: "yesterday"}, "Invalid timestamp"},
		{"unknown rfid", EventRequest{RFIDID: "RFID999", EventType: "entry"}, "Bus not found with RFID: RFID999"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore(seededBus())
			svc := NewService(store, nil)
			_, err := svc.RecordEvent(context.Background(), tc.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tc.wantErr)
			}
			if store.buses["RFID001"].InCampus {
				t.Error("rejected event must not mutate the bus")
			}
			if len(store.entries) != 0 {
				t.Error("rejected event must not create time entries")
			}
		})
	}
}

func TestRejectedEventTypeUsesFixedMetricLabel(t *testing.T) {
	svc := NewService(newFakeStore(seededBus()), nil)

	before := testutil.ToFloat64(gateEvents.WithLabelValues("invalid", "rejected"))
	if _, err := svc.RecordEvent(context.Background(), EventRequest{RFIDID: "RFID001", EventType: "ENTRY"}); err == nil {
		t.Fatal("expected error")
	}

	if got := testutil.ToFloat64(gateEvents.WithLabelValues("invalid", "rejected")); got != before+1 {
		t.Errorf("invalid/rejected count = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(gateEvents.WithLabelValues("ENTRY", "rejected")); got != 0 {
		t.Errorf("client-supplied event type leaked into labels: %v", got)
	}
}

func TestRecordEventServerClockWhenTimestampAbsent(t *testing.T) {
	store := newFakeStore(seededBus())
	svc := NewService(store, nil)

	before := time.Now().UTC()
	res, err := svc.RecordEvent(context.Background(), EventRequest{RFIDID: "RFID001", EventType: "entry"})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	after := time.Now().UTC()

	if res.Timestamp.Before(before) || res.Timestamp.After(after) {
		t.Errorf("timestamp %v not within [%v, %v]", res.Timestamp, before, after)
	}
}

func TestDriverNameBackfill(t *testing.T) {
	bus := Bus{RFIDID: "RFID002", BusNumber: "BUS02"}
	store := newFakeStore(bus)
	svc := NewService(store, nil)

	res, err := svc.RecordEvent(context.Background(), EventRequest{RFIDID: "RFID002", EventType: "entry"})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
	if len(store.driverNameWrites) != 1 || store.driverNameWrites[0] != "RFID002=Unknown Driver" {
		t.Errorf("driver writes = %v", store.driverNameWrites)
	}
}

func TestDriverNameBackfillFailureDoesNotBlockGate(t *testing.T) {
	bus := Bus{RFIDID: "RFID002", BusNumber: "BUS02"}
	store := newFakeStore(bus)
	store.failSetDriver = true
	svc := NewService(store, nil)

	res, err := svc.RecordEvent(context.Background(), EventRequest{RFIDID: "RFID002", EventType: "entry"})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "driver name backfill failed") {
		t.Errorf("warnings = %v", res.Warnings)
	}
	if !store.buses["RFID002"].InCampus {
		t.Error("presence update must still apply")
	}
}

func TestRecordEventLoadBearingUpdateFailure(t *testing.T) {
	store := newFakeStore(seededBus())
	store.failMarkEntry = true
	svc := NewService(store, nil)

	_, err := svc.RecordEvent(context.Background(), EventRequest{RFIDID: "RFID001", EventType: "entry"})
	if err == nil || !strings.Contains(err.Error(), "Failed to update bus status") {
		t.Errorf("error = %v", err)
	}
}

func TestRecordEventBestEffortInsertFailure(t *testing.T) {
	store := newFakeStore(seededBus())
	store.failInsert = true
	svc := NewService(store, nil)

	res, err := svc.RecordEvent(context.Background(), EventRequest{RFIDID: "RFID001", EventType: "entry"})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "time log insert failed") {
		t.Errorf("warnings = %v", res.Warnings)
	}
	if !store.buses["RFID001"].InCampus {
		t.Error("presence update must still apply")
	}
}

func TestRecordEventExitWithNothingToClose(t *testing.T) {
	store := newFakeStore(seededBus())
	svc := NewService(store, nil)

	res, err := svc.RecordEvent(context.Background(), EventRequest{RFIDID: "RFID001", EventType: "exit"})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "no time log entry to close" {
		t.Errorf("warnings = %v", res.Warnings)
	}
	if store.buses["RFID001"].InCampus {
		t.Error("bus should be outside campus")
	}
}

func TestStatusRoundTrip(t *testing.T) {
	store := newFakeStore(seededBus())
	svc := NewService(store, nil)
	ctx := context.Background()

	if _, err := svc.RecordEvent(ctx, EventRequest{RFIDID: "RFID001", EventType: "entry"}); err != nil {
		t.Fatalf("entry: %v", err)
	}
	in, err := svc.Status(ctx, "RFID001")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !in {
		t.Error("status after entry should be in campus")
	}

	if _, err := svc.RecordEvent(ctx, EventRequest{RFIDID: "RFID001", EventType: "exit"}); err != nil {
		t.Fatalf("exit: %v", err)
	}
	in, err = svc.Status(ctx, "RFID001")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if in {
		t.Error("status after exit should be outside campus")
	}
}

func TestStatusValidation(t *testing.T) {
	svc := NewService(newFakeStore(seededBus()), nil)

	if _, err := svc.Status(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "rfid_id query parameter is required") {
		t.Errorf("error = %v", err)
	}
	if _, err := svc.Status(context.Background(), "RFID999"); err == nil || !strings.Contains(err.Error(), "Bus not found with RFID: RFID999") {
		t.Errorf("error = %v", err)
	}
}

type fakeCache struct {
	val int
	ok  bool
	set []int
}

func (c *fakeCache) GetOccupancy(context.Context) (int, bool) { return c.val, c.ok }
func (c *fakeCache) SetOccupancy(_ context.Context, n int) error {
	c.set = append(c.set, n)
	return nil
}

func TestOccupancy(t *testing.T) {
	inside := seededBus()
	inside.InCampus = true
	outside := Bus{RFIDID: "RFID002", BusNumber: "BUS02"}
	store := newFakeStore(inside, outside)

	cache := &fakeCache{}
	svc := NewService(store, cache)

	n, err := svc.Occupancy(context.Background())
	if err != nil {
		t.Fatalf("Occupancy: %v", err)
	}
	if n != 1 {
		t.Errorf("occupancy = %d, want 1", n)
	}
	if len(cache.set) != 1 || cache.set[0] != 1 {
		t.Errorf("cache writes = %v", cache.set)
	}

	// Cached value wins over the live count.
	cache.val, cache.ok = 7, true
	n, err = svc.Occupancy(context.Background())
	if err != nil {
		t.Fatalf("Occupancy: %v", err)
	}
	if n != 7 {
		t.Errorf("occupancy = %d, want cached 7", n)
	}
}
