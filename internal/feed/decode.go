package feed

import (
	"encoding/json"
	"strings"
)

// Operation is the change type carried by a decoded log entry.
type Operation string

const (
	// OpInsert replaces the local record wholesale.
	OpInsert Operation = "insert"
	// OpUpdate applies only the fields present in the value.
	OpUpdate Operation = "update"
	// OpDelete removes the local record.
	OpDelete Operation = "delete"
)

// Entry is a normalized log entry ready for the apply step. Value is nil
// for deletes.
type Entry struct {
	Op       Operation
	EntityID string
	Value    map[string]any
}

// rawEntry mirrors the wire shape of one feed log entry. The format is
// externally controlled, so every field is optional here and validated
// during decoding.
type rawEntry struct {
	Key     string         `json:"key"`
	Value   map[string]any `json:"value"`
	Headers struct {
		Operation string `json:"operation"`
		Control   string `json:"control"`
	} `json:"headers"`
}

// Decode normalizes raw log entries into Entry values, returning the
// decoded entries and the count of malformed entries that were skipped.
//
// Control/heartbeat entries and entries missing both an operation tag and
// a key are filtered out. Entries with an operation tag but an unparsable
// key, an unknown operation, or an undecodable body are counted as
// malformed and skipped; nothing here ever fails the batch. A nil or
// empty input decodes to an empty result.
func Decode(raw []json.RawMessage) ([]Entry, int) {
	var (
		entries []Entry
		skipped int
	)

	for _, msg := range raw {
		var re rawEntry
		if err := json.Unmarshal(msg, &re); err != nil {
			skipped++
			continue
		}

		// Control messages (up-to-date markers, heartbeats) carry no data.
		if re.Headers.Control != "" {
			continue
		}

		if re.Headers.Operation == "" && re.Key == "" {
			continue
		}

		op, ok := parseOperation(re.Headers.Operation)
		if !ok {
			skipped++
			continue
		}

		id := entityIDFromKey(re.Key)
		if id == "" {
			skipped++
			continue
		}

		value := re.Value
		if op == OpDelete {
			value = nil
		}

		entries = append(entries, Entry{Op: op, EntityID: id, Value: value})
	}

	return entries, skipped
}

func parseOperation(tag string) (Operation, bool) {
	switch Operation(strings.ToLower(tag)) {
	case OpInsert:
		return OpInsert, true
	case OpUpdate:
		return OpUpdate, true
	case OpDelete:
		return OpDelete, true
	default:
		return "", false
	}
}

// entityIDFromKey extracts the entity id from a composite key such as
// `"public"."tasks"/"8c3f..."`: the last path segment with surrounding
// quote characters stripped.
func entityIDFromKey(key string) string {
	if key == "" {
		return ""
	}
	segment := key
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		segment = key[idx+1:]
	}
	return strings.Trim(segment, `"`)
}
