package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	got := sanitizeKVs([]interface{}{"openai_api_key", "sk-123", "document_id", "abc"})
	if len(got) != 4 {
		t.Fatalf("len: want=4 got=%d", len(got))
	}
	if got[1] != "[REDACTED]" {
		t.Fatalf("api key not redacted: %v", got[1])
	}
	if got[3] != "abc" {
		t.Fatalf("document_id changed: %v", got[3])
	}
}

func TestSanitizeKVsHashesOwner(t *testing.T) {
	got := sanitizeKVs([]interface{}{"owner_id", "user-1"})
	s, ok := got[1].(string)
	if !ok || len(s) != len("hash:")+12 || s[:5] != "hash:" {
		t.Fatalf("owner_id not hashed: %v", got[1])
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	got := sanitizeKVs([]interface{}{"stage", "chunking", "dangling"})
	if len(got) != 3 || got[2] != "dangling" {
		t.Fatalf("unexpected: %#v", got)
	}
}
