package memory

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.db")
	s, err := Open(path, TokenizerEN)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAndRecall(t *testing.T) {
	s := openTestStore(t)
	if err := s.StoreEntry("note-1", "the workspace root is under the user's home directory", CategoryDaily); err != nil {
		t.Fatalf("StoreEntry: %v", err)
	}
	entries, err := s.Recall("workspace root", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "note-1" {
		t.Fatalf("expected note-1 to be recalled, got %+v", entries)
	}
}

func TestRecallEmptyIsValid(t *testing.T) {
	s := openTestStore(t)
	entries, err := s.Recall("nothing stored yet", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no results, got %+v", entries)
	}
}

func TestStoreLastWriterWins(t *testing.T) {
	s := openTestStore(t)
	if err := s.StoreEntry("k", "original content about rivers", CategoryCustom("test")); err != nil {
		t.Fatalf("StoreEntry 1: %v", err)
	}
	if err := s.StoreEntry("k", "updated content about mountains", CategoryCustom("test")); err != nil {
		t.Fatalf("StoreEntry 2: %v", err)
	}
	entries, err := s.Recall("mountains", 1)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(entries) != 1 || entries[0].Content != "updated content about mountains" {
		t.Fatalf("expected last writer to win, got %+v", entries)
	}
}

func TestForget(t *testing.T) {
	s := openTestStore(t)
	if err := s.StoreEntry("gone", "temporary", CategoryDaily); err != nil {
		t.Fatalf("StoreEntry: %v", err)
	}
	deleted, err := s.Forget("gone")
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if !deleted {
		t.Error("expected Forget to report a row was deleted")
	}
	deletedAgain, err := s.Forget("gone")
	if err != nil {
		t.Fatalf("Forget again: %v", err)
	}
	if deletedAgain {
		t.Error("expected second Forget to report no row deleted")
	}
}

func TestCount(t *testing.T) {
	s := openTestStore(t)
	s.StoreEntry("a", "one", CategoryDaily)
	s.StoreEntry("b", "two", CategoryDaily)
	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected count 2, got %d", n)
	}
}

func TestConversationHistoryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	payloads := []json.RawMessage{
		json.RawMessage(`{"kind":"chat","role":"user","content":"hello"}`),
		json.RawMessage(`{"kind":"chat","role":"assistant","content":"hi!"}`),
	}
	if err := s.SaveConversationHistory("session-1", payloads); err != nil {
		t.Fatalf("SaveConversationHistory: %v", err)
	}
	records, err := s.LoadConversationHistory("session-1")
	if err != nil {
		t.Fatalf("LoadConversationHistory: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Seq != 0 || records[1].Seq != 1 {
		t.Fatalf("expected seq 0,1 in order, got %d,%d", records[0].Seq, records[1].Seq)
	}
	if string(records[0].Payload) != string(payloads[0]) {
		t.Errorf("payload 0 mismatch: got %s", records[0].Payload)
	}
}

func TestConversationHistoryOverwritesOnResave(t *testing.T) {
	s := openTestStore(t)
	s.SaveConversationHistory("s", []json.RawMessage{json.RawMessage(`{"a":1}`), json.RawMessage(`{"a":2}`)})
	s.SaveConversationHistory("s", []json.RawMessage{json.RawMessage(`{"a":3}`)})
	records, err := s.LoadConversationHistory("s")
	if err != nil {
		t.Fatalf("LoadConversationHistory: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected the resave to fully replace history, got %d records", len(records))
	}
}

func TestSeedCoreKnowledgeIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.SeedCoreKnowledge(); err != nil {
		t.Fatalf("SeedCoreKnowledge 1: %v", err)
	}
	n1, _ := s.Count()
	if err := s.SeedCoreKnowledge(); err != nil {
		t.Fatalf("SeedCoreKnowledge 2: %v", err)
	}
	n2, _ := s.Count()
	if n1 != n2 {
		t.Errorf("expected idempotent entry count, got %d then %d", n1, n2)
	}
	if n1 != len(coreKnowledgeEntries) {
		t.Errorf("expected %d core entries, got %d", len(coreKnowledgeEntries), n1)
	}
}

func TestTokenizerMismatchRebuildsIndexPreservingRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	s1, err := Open(path, TokenizerEN)
	if err != nil {
		t.Fatalf("Open (en): %v", err)
	}
	if err := s1.StoreEntry("k", "some english content", CategoryDaily); err != nil {
		t.Fatalf("StoreEntry: %v", err)
	}
	s1.Close()

	s2, err := Open(path, TokenizerZH)
	if err != nil {
		t.Fatalf("Open (zh): %v", err)
	}
	defer s2.Close()

	n, err := s2.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected relational row to survive tokenizer switch, got count %d", n)
	}
}
