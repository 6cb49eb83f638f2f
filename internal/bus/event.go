package bus

import "time"

// Event represents a domain event published on the bus. Seq is assigned
// at publish time and is strictly increasing within one process, so a
// subscriber can tell the relative order of two events even when they
// arrive on different channels.
type Event struct {
	Kind      string
	Seq       uint64
	Timestamp time.Time
	Payload   any
}
