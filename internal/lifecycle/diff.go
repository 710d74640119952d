package lifecycle

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"sigs.k8s.io/yaml"
)

// volatileMetadata lists server-managed metadata fields that change on every write.
var volatileMetadata = []string{
	"resourceVersion",
	"generation",
	"uid",
	"creationTimestamp",
	"selfLink",
	"managedFields",
}

// ComputeDiff compares two snapshots of the same resource. An empty previous
// snapshot reports every field as added; an empty current snapshot reports every
// field as removed. Server-managed metadata and status are ignored. Lists are
// compared as a whole.
func ComputeDiff(previous, current Snapshot) (*ResourceDiff, error) {
	oldObj, err := parseSnapshot("previous", previous)
	if err != nil {
		return nil, err
	}
	newObj, err := parseSnapshot("current", current)
	if err != nil {
		return nil, err
	}

	added := map[string]any{}
	removed := map[string]any{}
	var modified []FieldChange

	switch {
	case oldObj == nil && newObj == nil:
	case oldObj == nil:
		flatten("", newObj, added)
	case newObj == nil:
		flatten("", oldObj, removed)
	default:
		compareMaps("", oldObj, newObj, added, removed, &modified)
	}

	sort.Slice(modified, func(i, j int) bool { return modified[i].Path < modified[j].Path })

	diff := &ResourceDiff{Modified: modified}
	if diff.Added, err = SnapshotFromObject(added); err != nil {
		return nil, err
	}
	if diff.Removed, err = SnapshotFromObject(removed); err != nil {
		return nil, err
	}
	return diff, nil
}

func parseSnapshot(side string, s Snapshot) (map[string]any, error) {
	if s.IsEmpty() {
		return nil, nil
	}
	var obj map[string]any
	if err := yaml.Unmarshal(s, &obj); err != nil {
		return nil, &ParseError{Type: "snapshot", Input: side, Reason: fmt.Sprintf("invalid %s state: %v", side, err), Err: ErrSnapshotParsing}
	}
	if obj == nil {
		return nil, nil
	}
	stripVolatile(obj)
	return obj, nil
}

func stripVolatile(obj map[string]any) {
	if metadata, ok := obj["metadata"].(map[string]any); ok {
		for _, f := range volatileMetadata {
			delete(metadata, f)
		}
		if len(metadata) == 0 {
			delete(obj, "metadata")
		}
	}
	delete(obj, "status")
}

func compareMaps(path string, oldMap, newMap map[string]any, added, removed map[string]any, modified *[]FieldChange) {
	for key, oldVal := range oldMap {
		fieldPath := joinPath(path, key)
		newVal, exists := newMap[key]
		if !exists {
			removed[fieldPath] = oldVal
			continue
		}
		if valuesEqual(oldVal, newVal) {
			continue
		}
		oldChild, oldIsMap := oldVal.(map[string]any)
		newChild, newIsMap := newVal.(map[string]any)
		if oldIsMap && newIsMap {
			compareMaps(fieldPath, oldChild, newChild, added, removed, modified)
			continue
		}
		*modified = append(*modified, FieldChange{
			Path:     fieldPath,
			OldValue: encodeValue(oldVal),
			NewValue: encodeValue(newVal),
		})
	}
	for key, newVal := range newMap {
		if _, exists := oldMap[key]; !exists {
			added[joinPath(path, key)] = newVal
		}
	}
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for key, value := range m {
		fullKey := joinPath(prefix, key)
		if nested, ok := value.(map[string]any); ok && len(nested) > 0 {
			flatten(fullKey, nested, out)
			continue
		}
		out[fullKey] = value
	}
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

// valuesEqual compares through JSON so that numbers decoded with different Go
// types still match.
func valuesEqual(a, b any) bool {
	aJSON, errA := json.Marshal(a)
	bJSON, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(aJSON) == string(bJSON)
}

func encodeValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
