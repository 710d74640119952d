// Package diffview turns resource snapshots into text that a person can read: a
// unified diff between two states, a short summary of what changed, and the full
// object for creates and deletes.
//
// Rendering never fails. Malformed input is logged and reported through
// StateUnavailable.
package diffview

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"k8s.io/klog/v2"

	"go.miloapis.com/auditdashboard/internal/lifecycle"
)

// State classifies a rendered comparison.
type State string

const (
	StateCreated     State = "Created"
	StateChanged     State = "Changed"
	StateUnchanged   State = "Unchanged"
	StateDeleted     State = "Deleted"
	StateUnavailable State = "Unavailable"
	// StateNoPrevious marks a change whose earlier state was never recorded, for
	// example because only reads are older or the history was truncated.
	StateNoPrevious State = "NoPreviousState"
)

const (
	// MessageUnavailable is shown in place of a diff that could not be rendered.
	MessageUnavailable = "error displaying diff"
	// MessageNoPrevious is shown in place of a diff with nothing to compare against.
	MessageNoPrevious = "no earlier state recorded"
)

// maxSummaryFields is the number of field names listed before the summary
// collapses the rest into a count.
const maxSummaryFields = 3

// View is the displayable form of one comparison.
type View struct {
	State State `json:"state"`
	// Unified is a unified diff from Previous to Current. Only set for StateChanged.
	Unified string `json:"unified,omitempty"`
	// Summary lists the changed top-level fields.
	Summary string `json:"summary,omitempty"`
	// Object is the pretty printed object for created and deleted resources.
	Object  string `json:"object,omitempty"`
	Message string `json:"message,omitempty"`
}

func unavailable(message string) View {
	return View{State: StateUnavailable, Message: message}
}

// Render compares the current state of a resource with the state before the event.
// hasPrevious is false when no older mutation exists. Only a create is compared
// against an empty object then; any other change renders as StateNoPrevious.
func Render(eventType lifecycle.EventType, current, previous lifecycle.Snapshot, hasPrevious bool) View {
	if !hasPrevious && !strings.EqualFold(string(eventType), string(lifecycle.EventTypeCreate)) {
		return View{State: StateNoPrevious, Message: MessageNoPrevious}
	}

	curr, err := current.Decode()
	if err != nil {
		klog.ErrorS(err, "Failed to decode current resource state")
		return unavailable(MessageUnavailable)
	}

	var prev map[string]any
	if hasPrevious {
		prev, err = previous.Decode()
		if err != nil {
			klog.ErrorS(err, "Failed to decode previous resource state")
			return unavailable(MessageUnavailable)
		}
	}

	switch {
	case curr == nil && prev == nil:
		return unavailable("no resource state recorded")
	case curr == nil:
		return objectView(StateDeleted, cleanObject(prev))
	case prev == nil:
		return objectView(StateCreated, cleanObject(curr))
	}

	cleanPrev := cleanObject(prev)
	cleanCurr := cleanObject(curr)

	unified, err := unifiedDiff(cleanPrev, cleanCurr)
	if err != nil {
		klog.ErrorS(err, "Failed to generate diff")
		return unavailable(MessageUnavailable)
	}
	if unified == "" {
		return View{State: StateUnchanged, Summary: "no changes"}
	}

	return View{
		State:   StateChanged,
		Unified: unified,
		Summary: summarizeChanges(cleanPrev, cleanCurr),
	}
}

// RenderDiff renders a precomputed structured diff as a View. Values are printed
// in the order of their paths.
func RenderDiff(diff *lifecycle.ResourceDiff) View {
	if diff == nil {
		return unavailable(MessageUnavailable)
	}
	if diff.IsEmpty() {
		return View{State: StateUnchanged, Summary: "no changes"}
	}

	added, err := diff.Added.Decode()
	if err != nil {
		klog.ErrorS(err, "Failed to decode added fields")
		return unavailable(MessageUnavailable)
	}
	removed, err := diff.Removed.Decode()
	if err != nil {
		klog.ErrorS(err, "Failed to decode removed fields")
		return unavailable(MessageUnavailable)
	}

	var b strings.Builder
	var paths []string
	for _, p := range sortedKeys(removed) {
		fmt.Fprintf(&b, "- %s: %s\n", p, encode(removed[p]))
		paths = append(paths, p+" (removed)")
	}
	for _, p := range sortedKeys(added) {
		fmt.Fprintf(&b, "+ %s: %s\n", p, encode(added[p]))
		paths = append(paths, p)
	}
	for _, m := range diff.Modified {
		fmt.Fprintf(&b, "~ %s: %s -> %s\n", m.Path, m.OldValue, m.NewValue)
		paths = append(paths, m.Path)
	}

	return View{
		State:   StateChanged,
		Unified: b.String(),
		Summary: joinSummary(paths),
	}
}

func objectView(state State, obj map[string]any) View {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		klog.ErrorS(err, "Failed to marshal object")
		return unavailable(MessageUnavailable)
	}
	return View{State: state, Object: string(data)}
}

// cleanObject removes server-managed noise. Metadata is reduced to the fields a
// person edits.
func cleanObject(obj map[string]any) map[string]any {
	cleaned := make(map[string]any, len(obj))
	for k, v := range obj {
		switch k {
		case "metadata":
			meta, ok := v.(map[string]any)
			if !ok {
				continue
			}
			cleanedMeta := make(map[string]any)
			for mk, mv := range meta {
				switch mk {
				case "name", "namespace", "labels", "annotations":
					cleanedMeta[mk] = mv
				}
			}
			if len(cleanedMeta) > 0 {
				cleaned[k] = cleanedMeta
			}
		case "managedFields", "resourceVersion", "generation", "uid":
		default:
			cleaned[k] = v
		}
	}
	return cleaned
}

func unifiedDiff(prev, curr map[string]any) (string, error) {
	prevJSON, err := json.MarshalIndent(prev, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal previous object: %w", err)
	}
	currJSON, err := json.MarshalIndent(curr, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal current object: %w", err)
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(prevJSON)),
		B:        difflib.SplitLines(string(currJSON)),
		FromFile: "Previous",
		ToFile:   "Current",
		Context:  3,
	})
}

// summarizeChanges names the changed top-level fields. Status is skipped; metadata
// is reported by its changed sub-fields.
func summarizeChanges(prev, curr map[string]any) string {
	var changes []string

	for _, k := range sortedKeys(curr) {
		if k == "status" {
			continue
		}
		if k == "metadata" {
			changes = append(changes, metadataChanges(prev[k], curr[k])...)
			continue
		}
		if _, ok := prev[k]; !ok {
			changes = append(changes, k+" (added)")
			continue
		}
		if encode(prev[k]) != encode(curr[k]) {
			changes = append(changes, k)
		}
	}
	for _, k := range sortedKeys(prev) {
		if k == "status" || k == "metadata" {
			continue
		}
		if _, ok := curr[k]; !ok {
			changes = append(changes, k+" (removed)")
		}
	}

	if len(changes) == 0 {
		return "status only"
	}
	return joinSummary(changes)
}

func metadataChanges(prev, curr any) []string {
	prevMeta, _ := prev.(map[string]any)
	currMeta, _ := curr.(map[string]any)

	var changes []string
	seen := map[string]bool{}
	for _, k := range append(sortedKeys(currMeta), sortedKeys(prevMeta)...) {
		if seen[k] {
			continue
		}
		seen[k] = true
		if encode(prevMeta[k]) != encode(currMeta[k]) {
			changes = append(changes, "metadata."+k)
		}
	}
	return changes
}

func joinSummary(fields []string) string {
	switch {
	case len(fields) == 0:
		return ""
	case len(fields) > maxSummaryFields:
		return fmt.Sprintf("%s and %d more fields", strings.Join(fields[:maxSummaryFields], ", "), len(fields)-maxSummaryFields)
	case len(fields) == 1:
		return fields[0]
	default:
		return strings.Join(fields[:len(fields)-1], ", ") + " and " + fields[len(fields)-1]
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
