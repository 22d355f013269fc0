// Package memory persists conversation turns in LevelDB and keeps a bounded
// in-memory ring of the most recent turns for prompt context. Writes are
// asynchronous; reads are served from the ring.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/afif25fradana/luna-voice-assistant-offline/internal/types"
)

// LevelDB key scheme ("|" separates fields; keys sort chronologically):
//
//	t|<fixed-width UTC timestamp>|<uuid> → Turn JSON
const prefixTurn = "t|"

// turnTimeFormat is RFC3339 with fixed-width fractional seconds.
// time.RFC3339Nano trims trailing zeros, which breaks lexicographic ordering.
const turnTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the LevelDB-backed conversation log.
// Append() is async (fire-and-forget channel); Recent() reads the in-memory ring.
type Store struct {
	db      *leveldb.DB
	writeCh chan types.Turn // async write queue; buffered to avoid blocking the reply hot path

	mu        sync.Mutex
	recent    []types.Turn
	maxRecent int

	closeOnce sync.Once
}

// Open opens (or creates) a LevelDB database at path and seeds the recent ring
// from the newest maxRecent persisted turns. path should be a directory;
// LevelDB creates it if absent.
//
// Expectations:
//   - Returns an error when the database cannot be opened (including a second
//     open of the same path: LevelDB is single-writer)
//   - Seeds the ring with at most maxRecent turns, oldest first
//   - maxRecent values below 1 fall back to 20
func Open(path string, maxRecent int) (*Store, error) {
	if maxRecent < 1 {
		maxRecent = 20
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("memory: open %s: %w (is another luna instance running? LevelDB is single-writer)", path, err)
	}

	iter := db.NewIterator(util.BytesPrefix([]byte(prefixTurn)), nil)
	var recent []types.Turn
	for ok := iter.Last(); ok && len(recent) < maxRecent; ok = iter.Prev() {
		var t types.Turn
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		recent = append(recent, t)
	}
	iterErr := iter.Error()
	iter.Release()
	if iterErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: seed recent turns: %w", iterErr)
	}
	// The tail scan collected newest-first; the ring is chronological.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}

	slog.Info("[MEMORY] opened turn store", "path", path, "seeded", len(recent))
	return &Store{
		db:        db,
		writeCh:   make(chan types.Turn, 256),
		recent:    recent,
		maxRecent: maxRecent,
	}, nil
}

// Append records a conversation turn: the ring is updated synchronously so the
// turn is visible to Recent() immediately, persistence happens in the background.
//
// Expectations:
//   - Non-blocking: never blocks the caller goroutine
//   - Assigns At if missing
//   - The turn shows up in Recent() before Append returns
//   - Drops the disk write with a log warning when the queue is at capacity
//   - Safe to call on a nil *Store (no-op)
func (s *Store) Append(t types.Turn) {
	if s == nil {
		return
	}
	if t.At == "" {
		t.At = time.Now().UTC().Format(turnTimeFormat)
	}

	s.mu.Lock()
	s.recent = append(s.recent, t)
	if len(s.recent) > s.maxRecent {
		s.recent = s.recent[len(s.recent)-s.maxRecent:]
	}
	s.mu.Unlock()

	select {
	case s.writeCh <- t:
	default:
		slog.Warn("[MEMORY] write queue full — dropping turn", "role", t.Role)
	}
}

// Recent returns a copy of the ring, oldest turn first.
// Returns nil on a nil *Store.
func (s *Store) Recent() []types.Turn {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Turn, len(s.recent))
	copy(out, s.recent)
	return out
}

// Count scans the store and returns the number of persisted turns.
// Reads are synchronous; used by the doctor command, not hot paths.
func (s *Store) Count() (int, error) {
	if s == nil {
		return 0, nil
	}
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixTurn)), nil)
	defer iter.Release()
	n := 0
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

// Run processes the async write queue until ctx is cancelled, then drains all
// pending writes and closes the database.
func (s *Store) Run(ctx context.Context) {
	if s == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case t := <-s.writeCh:
			s.persistTurn(t)
		}
	}
}

// Close drains pending writes and closes the database. Needed only when Run is
// not driving the store (the doctor command opens, inspects, and closes).
// Safe to call more than once and safe alongside Run's own shutdown.
func (s *Store) Close() {
	if s == nil {
		return
	}
	s.shutdown()
}

func (s *Store) shutdown() {
	s.closeOnce.Do(func() {
		s.drainWriteQueue()
		if err := s.db.Close(); err != nil {
			slog.Warn("[MEMORY] DB close error", "error", err)
		}
	})
}

func (s *Store) drainWriteQueue() {
	for {
		select {
		case t := <-s.writeCh:
			s.persistTurn(t)
		default:
			return
		}
	}
}

func (s *Store) persistTurn(t types.Turn) {
	data, err := json.Marshal(t)
	if err != nil {
		slog.Error("[MEMORY] marshal turn failed", "role", t.Role, "error", err)
		return
	}
	if err := s.db.Put([]byte(turnKey(t.At)), data, nil); err != nil {
		slog.Error("[MEMORY] persist turn failed", "role", t.Role, "error", err)
	}
}

// turnKey builds the LevelDB key for a turn. The uuid suffix keeps turns
// written within the same nanosecond from clobbering each other.
func turnKey(at string) string {
	return prefixTurn + at + "|" + uuid.New().String()
}
