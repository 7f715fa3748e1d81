package engine

import (
	"sync"
	"time"

	"github.com/franksops/tagsync/store"
)

// CheckpointConfig defines the criteria for when to save a transfer's progress
type CheckpointConfig struct {
	// PercentInterval triggers a save after progress advanced this many points
	PercentInterval int
	// TimeInterval triggers a save after this much time has passed
	TimeInterval time.Duration
}

// DefaultCheckpointConfig provides reasonable defaults for checkpointing
var DefaultCheckpointConfig = CheckpointConfig{
	PercentInterval: 5,
	TimeInterval:    5 * time.Second,
}

// JobTracker records transfer history in a store. It implements Recorder;
// snapshots are checkpointed at most as often as the config allows so a
// chatty rsync does not turn into a write per line.
type JobTracker struct {
	store  store.Store
	config CheckpointConfig

	mu   sync.Mutex
	last map[string]checkpoint
}

type checkpoint struct {
	percent int
	at      time.Time
}

var _ Recorder = (*JobTracker)(nil)

// NewJobTracker creates a new JobTracker
func NewJobTracker(s store.Store, config CheckpointConfig) *JobTracker {
	return &JobTracker{
		store:  s,
		config: config,
		last:   make(map[string]checkpoint),
	}
}

// Begin stores the initial record of a transfer.
func (jt *JobTracker) Begin(req TransferRequest, stats TransferStats) {
	rec := &store.TransferRecord{
		ID:              req.ID,
		Tag:             req.Tag,
		DestinationPath: req.DestinationPath,
		Provider:        req.Provider,
		Command:         req.Command,
		State:           store.StateStarting,
		StartedAt:       stats.LastUpdate,
		UpdatedAt:       stats.LastUpdate,
	}
	if err := jt.store.SaveTransfer(rec); err != nil {
		log.Warnw("failed to record transfer start", "id", req.ID, "error", err)
		return
	}

	jt.mu.Lock()
	jt.last[req.ID] = checkpoint{at: stats.LastUpdate}
	jt.mu.Unlock()
}

// Checkpoint saves the snapshot when enough progress or time has passed
// since the previous save.
func (jt *JobTracker) Checkpoint(req TransferRequest, stats TransferStats) {
	jt.mu.Lock()
	prev, ok := jt.last[req.ID]
	needsCheckpoint := !ok ||
		stats.Percent-prev.percent >= jt.config.PercentInterval ||
		stats.LastUpdate.Sub(prev.at) >= jt.config.TimeInterval
	if needsCheckpoint {
		jt.last[req.ID] = checkpoint{percent: stats.Percent, at: stats.LastUpdate}
	}
	jt.mu.Unlock()

	if !needsCheckpoint {
		return
	}

	// A lost checkpoint only costs display accuracy in the history view.
	rec, err := jt.store.GetTransfer(req.ID)
	if err != nil {
		log.Debugw("checkpoint skipped", "id", req.ID, "error", err)
		return
	}
	applyStats(rec, stats)
	if err := jt.store.SaveTransfer(rec); err != nil {
		log.Debugw("checkpoint save failed", "id", req.ID, "error", err)
	}
}

// End stores the terminal outcome.
func (jt *JobTracker) End(req TransferRequest, out Outcome) {
	jt.mu.Lock()
	delete(jt.last, req.ID)
	jt.mu.Unlock()

	rec, err := jt.store.GetTransfer(req.ID)
	if err != nil {
		rec = &store.TransferRecord{
			ID:              req.ID,
			Tag:             req.Tag,
			DestinationPath: req.DestinationPath,
			Provider:        req.Provider,
			Command:         req.Command,
			StartedAt:       out.Stats.LastUpdate,
		}
	}

	applyStats(rec, out.Stats)
	rec.ExitCode = out.ExitCode
	rec.Summary = out.Summary
	rec.EndedAt = out.Stats.LastUpdate
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}

	if err := jt.store.SaveTransfer(rec); err != nil {
		log.Warnw("failed to record transfer outcome", "id", req.ID, "error", err)
	}
}

func applyStats(rec *store.TransferRecord, stats TransferStats) {
	rec.State = store.State(stats.Status)
	rec.Percent = stats.Percent
	rec.Transferred = stats.Transferred
	rec.Total = stats.Total
	rec.Speed = stats.Speed
	rec.UpdatedAt = stats.LastUpdate
}
