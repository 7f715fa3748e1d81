package store

import (
	"path/filepath"
	"testing"
	"time"
)

func TestBoltStore_SaveAndGetTransfer(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	store, err := NewBoltStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create BoltStore: %v", err)
	}
	defer store.Close()

	rec := &TransferRecord{
		ID:              "transfer-123",
		Tag:             "hollowknight",
		DestinationPath: "/games/hollowknight",
		State:           StateStarting,
		StartedAt:       time.Now(),
	}

	if err := store.SaveTransfer(rec); err != nil {
		t.Fatalf("Failed to save transfer: %v", err)
	}

	got, err := store.GetTransfer("transfer-123")
	if err != nil {
		t.Fatalf("Failed to get transfer: %v", err)
	}
	if got.Tag != rec.Tag {
		t.Errorf("Expected tag %s, got %s", rec.Tag, got.Tag)
	}
	if got.State != StateStarting {
		t.Errorf("Expected state %s, got %s", StateStarting, got.State)
	}

	rec.State = StateRunning
	rec.Percent = 42
	if err := store.SaveTransfer(rec); err != nil {
		t.Fatalf("Failed to update transfer: %v", err)
	}

	got, err = store.GetTransfer("transfer-123")
	if err != nil {
		t.Fatalf("Failed to get updated transfer: %v", err)
	}
	if got.State != StateRunning {
		t.Errorf("Expected updated state %s, got %s", StateRunning, got.State)
	}
	if got.Percent != 42 {
		t.Errorf("Expected updated percent %d, got %d", 42, got.Percent)
	}

	_, err = store.GetTransfer("non-existent")
	if err != ErrTransferNotFound {
		t.Errorf("Expected ErrTransferNotFound, got %v", err)
	}
}

func TestBoltStore_ListTransfersNewestFirst(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "list.db"))
	if err != nil {
		t.Fatalf("Failed to create BoltStore: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, tag := range []string{"celeste", "hades", "tunic"} {
		rec := &TransferRecord{ID: tag, Tag: tag, State: StateCompleted, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.SaveTransfer(rec); err != nil {
			t.Fatalf("Failed to save %s: %v", tag, err)
		}
	}

	recs, err := store.ListTransfers()
	if err != nil {
		t.Fatalf("Failed to list transfers: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(recs))
	}
	if recs[0].Tag != "tunic" || recs[2].Tag != "celeste" {
		t.Errorf("Expected newest first, got %s ... %s", recs[0].Tag, recs[2].Tag)
	}
}

func TestState_Finished(t *testing.T) {
	if StateRunning.Finished() || StateStarting.Finished() {
		t.Error("non-terminal state reported as finished")
	}
	for _, s := range []State{StateCompleted, StateFailed, StateCancelled, StateTimedOut} {
		if !s.Finished() {
			t.Errorf("Expected %s to be finished", s)
		}
	}
}

func TestBoltStore_Close(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "test_close.db"))
	if err != nil {
		t.Fatalf("Failed to create BoltStore: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Failed to close BoltStore: %v", err)
	}

	if _, err := store.GetTransfer("transfer-123"); err == nil {
		t.Error("Expected error when accessing closed store, got nil")
	}
}
