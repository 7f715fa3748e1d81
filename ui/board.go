package ui

import (
	"slices"
	"sync"

	"github.com/franksops/tagsync/engine"
)

// TransferRow is one transfer on the board.
type TransferRow struct {
	ID       string
	Tag      string
	Stats    engine.TransferStats
	Summary  string
	Finished bool
}

// BoardState is a copy of the board handed to the renderer.
type BoardState struct {
	Rows      []TransferRow
	Queued    int
	Workers   int
	Completed int
	Failed    int
	Done      bool
}

// Total counts every transfer the board has heard of, including queued ones.
func (s BoardState) Total() int { return len(s.Rows) + s.Queued }

// Finished counts rows with a terminal outcome.
func (s BoardState) Finished() int { return s.Completed + s.Failed }

// Board aggregates the snapshots of concurrently running transfers. Progress
// callbacks from any number of worker goroutines may update it.
type Board struct {
	mu      sync.Mutex
	order   []string
	rows    map[string]*TransferRow
	queued  int
	workers int
	done    bool
}

// NewBoard creates an empty board expecting queued transfers.
func NewBoard(queued, workers int) *Board {
	return &Board{
		rows:    make(map[string]*TransferRow),
		queued:  queued,
		workers: workers,
	}
}

// Track returns the progress callback for req.
func (b *Board) Track(req engine.TransferRequest) engine.ProgressFunc {
	return func(s engine.TransferStats) error {
		b.Update(req.ID, req.Tag, s)
		return nil
	}
}

// Update records the latest snapshot of a transfer.
func (b *Board) Update(id, tag string, s engine.TransferStats) {
	b.mu.Lock()
	defer b.mu.Unlock()

	row := b.row(id, tag)
	if row.Finished {
		return
	}
	row.Stats = s
}

// Finish records the outcome of a transfer.
func (b *Board) Finish(id, tag string, out engine.Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	row := b.row(id, tag)
	if row.Finished {
		return
	}
	row.Finished = true
	row.Stats = out.Stats
	row.Summary = out.Summary
}

func (b *Board) row(id, tag string) *TransferRow {
	row, ok := b.rows[id]
	if !ok {
		row = &TransferRow{ID: id, Tag: tag}
		b.rows[id] = row
		b.order = append(b.order, id)
		if b.queued > 0 {
			b.queued--
		}
	}
	return row
}

// SetWorkers records the current worker count.
func (b *Board) SetWorkers(n int) {
	b.mu.Lock()
	b.workers = n
	b.mu.Unlock()
}

// SetDone marks the run as over.
func (b *Board) SetDone() {
	b.mu.Lock()
	b.done = true
	b.mu.Unlock()
}

// State returns a copy of the board.
func (b *Board) State() BoardState {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := BoardState{
		Rows:    make([]TransferRow, 0, len(b.order)),
		Queued:  b.queued,
		Workers: b.workers,
		Done:    b.done,
	}
	for _, id := range b.order {
		row := *b.rows[id]
		row.Stats.Log = slices.Clone(row.Stats.Log)
		st.Rows = append(st.Rows, row)
		if row.Finished {
			if row.Stats.Status == engine.StatusCompleted {
				st.Completed++
			} else {
				st.Failed++
			}
		}
	}
	return st
}
