package lifecycle

// ResolvePreviousState returns the state of the resource immediately before event.
//
// fullChronology must be the complete, unfiltered event list ordered newest-first.
// The event is located by ID, and the state of the next older mutating event is
// returned. Read-only events are stepped over because they never describe a change,
// so the result is not always the adjacent entry: a get, list or watch directly
// older than event is skipped rather than compared against.
// The second result is false when the event is the oldest change, or when its ID is
// not part of the chronology.
func ResolvePreviousState(event Event, fullChronology []Event) (Snapshot, bool) {
	idx := indexByID(fullChronology, event.ID)
	if idx < 0 {
		return nil, false
	}
	for i := idx + 1; i < len(fullChronology); i++ {
		if IsReadOnly(fullChronology[i].Type) {
			continue
		}
		return fullChronology[i].ResourceState, true
	}
	return nil, false
}

// BuildTimeline pairs every displayed event with its previous state. display is
// usually the output of FilterEvents; previous states are always resolved against
// full.
func BuildTimeline(display, full []Event) []TimelineEntry {
	entries := make([]TimelineEntry, 0, len(display))
	for _, e := range display {
		prev, ok := ResolvePreviousState(e, full)
		entries = append(entries, TimelineEntry{
			Event:            e,
			PreviousState:    prev,
			HasPreviousState: ok,
		})
	}
	return entries
}

func indexByID(events []Event, id string) int {
	for i := range events {
		if events[i].ID == id {
			return i
		}
	}
	return -1
}
