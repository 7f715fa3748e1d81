package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var (
	// ErrTransferNotFound is returned when a transfer is not found in the history store.
	ErrTransferNotFound = errors.New("transfer not found")
)

var (
	transfersBucket = []byte("transfers")
)

// State mirrors the lifecycle status of a transfer.
type State string

const (
	StateStarting  State = "Starting"
	StateRunning   State = "Running"
	StateCompleted State = "Completed"
	StateFailed    State = "Failed"
	StateCancelled State = "Cancelled"
	StateTimedOut  State = "TimedOut"
)

// Finished reports whether the transfer reached a terminal state.
func (s State) Finished() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

// TransferRecord is the persisted history entry of one transfer.
type TransferRecord struct {
	ID              string    `json:"id"`
	Tag             string    `json:"tag"`
	DestinationPath string    `json:"destination_path"`
	Provider        string    `json:"provider,omitempty"`
	Command         string    `json:"command,omitempty"`
	State           State     `json:"state"`
	Percent         int       `json:"percent"`
	Transferred     string    `json:"transferred,omitempty"`
	Total           string    `json:"total,omitempty"`
	Speed           string    `json:"speed,omitempty"`
	ExitCode        int       `json:"exit_code"`
	Summary         string    `json:"summary,omitempty"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	EndedAt         time.Time `json:"ended_at,omitzero"`
}

// Store defines the interface for keeping transfer history.
type Store interface {
	SaveTransfer(rec *TransferRecord) error
	GetTransfer(id string) (*TransferRecord, error)
	ListTransfers() ([]*TransferRecord, error)
	Close() error
}

// BoltStore is a Store implementation backed by bbolt.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltStore at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(transfersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create transfers bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// SaveTransfer inserts or replaces a transfer record.
func (s *BoltStore) SaveTransfer(rec *TransferRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal transfer: %w", err)
		}

		if err := tx.Bucket(transfersBucket).Put([]byte(rec.ID), data); err != nil {
			return fmt.Errorf("failed to put transfer: %w", err)
		}
		return nil
	})
}

// GetTransfer retrieves a transfer record by id.
func (s *BoltStore) GetTransfer(id string) (*TransferRecord, error) {
	var rec TransferRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(transfersBucket).Get([]byte(id))
		if data == nil {
			return ErrTransferNotFound
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListTransfers returns every record, newest first.
func (s *BoltStore) ListTransfers() ([]*TransferRecord, error) {
	var recs []*TransferRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(transfersBucket).ForEach(func(k, v []byte) error {
			var rec TransferRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal transfer %s: %w", k, err)
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].StartedAt.After(recs[j].StartedAt)
	})
	return recs, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
