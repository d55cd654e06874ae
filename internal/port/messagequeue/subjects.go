package messagequeue

import "github.com/lucylow/kale-ndar-sub000/internal/domain/event"

// Subject constants for the shared fan-out topics. Events are keyed by
// event type so remote instances can filter server-side.
const (
	// SubjectEvents is the wildcard every instance subscribes to.
	SubjectEvents = "events.>"

	subjectEventPrefix = "events."
)

// EventSubject returns the publish subject for an event type.
func EventSubject(t event.Type) string {
	return subjectEventPrefix + string(t)
}
