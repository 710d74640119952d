package lifecycle

// readOnlyTypes is the fixed set of verbs that never change a resource.
var readOnlyTypes = map[EventType]struct{}{
	EventTypeGet:   {},
	EventTypeList:  {},
	EventTypeWatch: {},
}

// IsReadOnly reports whether t is get, list or watch. Types are compared without
// regard to letter case.
func IsReadOnly(t EventType) bool {
	normalized, err := ParseEventType(string(t))
	if err != nil {
		return false
	}
	_, ok := readOnlyTypes[normalized]
	return ok
}

// FilterEvents returns the events to display. With hideReadOnly set, read-only events
// are dropped; otherwise every event is kept. Relative order is preserved and the
// result never shares its backing array with events.
func FilterEvents(events []Event, hideReadOnly bool) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if hideReadOnly && IsReadOnly(e.Type) {
			continue
		}
		out = append(out, e)
	}
	return out
}
