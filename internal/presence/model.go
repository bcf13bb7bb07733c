package presence

import "time"

// Event types accepted from gate controllers. Comparison is case-sensitive.
const (
	EventEntry = "entry"
	EventExit  = "exit"
)

// UnknownDriver is written into buses missing a driver name before an event is processed.
const UnknownDriver = "Unknown Driver"

// Bus is one tracked vehicle, keyed by its RFID tag.
type Bus struct {
	RFIDID      string     `json:"rfid_id"`
	BusNumber   string     `json:"bus_number"`
	DriverName  *string    `json:"driver_name,omitempty"`
	DriverPhone *string    `json:"driver_phone,omitempty"`
	BusCapacity int        `json:"bus_capacity"`
	StartPoint  *string    `json:"start_point,omitempty"`
	InCampus    bool       `json:"in_campus"`
	InTime      *time.Time `json:"in_time,omitempty"`
	OutTime     *time.Time `json:"out_time,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
}

// TimeEntry is one append-only presence interval. OutTime and DateOut stay
// null until the matching exit event closes the row.
type TimeEntry struct {
	ID        string     `json:"id"`
	BusNumber string     `json:"bus_number"`
	RFIDID    string     `json:"rfid_id"`
	InTime    time.Time  `json:"in_time"`
	OutTime   *time.Time `json:"out_time,omitempty"`
	DateIn    time.Time  `json:"date_in"`
	DateOut   *time.Time `json:"date_out,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
