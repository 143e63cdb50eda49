package feed

import (
	"encoding/json"
	"testing"
)

func rawMessages(t *testing.T, docs ...string) []json.RawMessage {
	t.Helper()

	msgs := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		msgs[i] = json.RawMessage(d)
	}
	return msgs
}

func TestDecodeDataEntries(t *testing.T) {
	entries, skipped := Decode(rawMessages(t,
		`{"key":"\"public\".\"tasks\"/\"t1\"","value":{"id":"t1","title":"buy milk"},"headers":{"operation":"insert"}}`,
		`{"key":"\"public\".\"tasks\"/\"t2\"","value":{"completed":true},"headers":{"operation":"update"}}`,
		`{"key":"\"public\".\"tasks\"/\"t3\"","headers":{"operation":"delete"}}`,
	))

	if skipped != 0 {
		t.Fatalf("expected no skipped entries, got %d", skipped)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	if entries[0].Op != OpInsert || entries[0].EntityID != "t1" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[0].Value["title"] != "buy milk" {
		t.Errorf("insert value not decoded: %+v", entries[0].Value)
	}
	if entries[1].Op != OpUpdate || entries[1].EntityID != "t2" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
	if entries[2].Op != OpDelete || entries[2].EntityID != "t3" {
		t.Errorf("unexpected third entry: %+v", entries[2])
	}
	if entries[2].Value != nil {
		t.Errorf("delete entries must carry no value, got %+v", entries[2].Value)
	}
}

func TestDecodeSkipsControlMessages(t *testing.T) {
	entries, skipped := Decode(rawMessages(t,
		`{"headers":{"control":"up-to-date"}}`,
		`{"key":"\"public\".\"tasks\"/\"t1\"","value":{"id":"t1"},"headers":{"operation":"insert"}}`,
		`{"headers":{"control":"must-refetch"}}`,
	))

	// Control messages are protocol bookkeeping, not malformed data.
	if skipped != 0 {
		t.Errorf("control messages must not count as skipped, got %d", skipped)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 data entry, got %d", len(entries))
	}
	if entries[0].EntityID != "t1" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}

func TestDecodeCountsMalformedEntries(t *testing.T) {
	entries, skipped := Decode(rawMessages(t,
		`not even json`,
		`{"key":"\"public\".\"tasks\"/\"t1\"","value":{},"headers":{"operation":"upsert"}}`,
		`{"key":"\"public\".\"tasks\"/\"t2\"","value":{"id":"t2"},"headers":{"operation":"insert"}}`,
	))

	if skipped != 2 {
		t.Errorf("expected 2 skipped entries (bad json, unknown op), got %d", skipped)
	}
	if len(entries) != 1 || entries[0].EntityID != "t2" {
		t.Errorf("expected the well-formed entry to survive, got %+v", entries)
	}
}

func TestDecodeEmptyEnvelopeIsSilentlySkipped(t *testing.T) {
	entries, skipped := Decode(rawMessages(t, `{}`))

	if skipped != 0 {
		t.Errorf("empty envelope should be ignored without counting, got %d", skipped)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %+v", entries)
	}
}

func TestEntityIDFromKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{`"public"."tasks"/"t1"`, "t1"},
		{`tasks/42`, "42"},
		{`plain-id`, "plain-id"},
		{`"quoted-only"`, "quoted-only"},
	}
	for _, tt := range tests {
		if got := entityIDFromKey(tt.key); got != tt.want {
			t.Errorf("entityIDFromKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
