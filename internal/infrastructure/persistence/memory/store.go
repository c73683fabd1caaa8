// Package memory implements an in-process record store. It keeps the
// serialized form of the records, so every Load returns an independent copy
// the way a real backend would.
package memory

import (
	"context"
	"sync"

	"github.com/alem-hub/counseling-hub/internal/domain/allocation"
	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
	"github.com/alem-hub/counseling-hub/pkg/logger"
)

// Store is an in-memory student.Repository.
type Store struct {
	mu          sync.Mutex
	data        []byte
	version     int64
	consistency student.Consistency
	cycles      []allocation.Result
	closed      bool
	log         *logger.Logger
}

// NewStore creates an empty store.
func NewStore(consistency student.Consistency, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		consistency: consistency,
		log:         log.With(logger.Component("memory_store")),
	}
}

// Seed replaces the raw stored payload. Used to load fixtures and to
// simulate corrupted storage.
func (s *Store) Seed(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	s.version++
}

// Load implements student.Repository.
func (s *Store) Load(ctx context.Context) (*student.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	data, version, closed := s.data, s.version, s.closed
	s.mu.Unlock()

	if closed {
		return nil, shared.ErrStoreClosed
	}

	records, err := student.DecodeRecords(data)
	if err != nil {
		s.log.Warn("stored records are unreadable, treating store as empty", logger.Err(err))
		records = nil
	}
	return student.NewSnapshot(records, version), nil
}

// Save implements student.Repository.
func (s *Store) Save(ctx context.Context, snap *student.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := student.EncodeRecords(snap.Records)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return shared.ErrStoreClosed
	}
	if s.consistency.IsOptimistic() && snap.Version != s.version {
		return shared.ErrStaleSnapshot
	}

	s.data = data
	s.version++
	snap.Version = s.version
	return nil
}

// Ping implements student.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return shared.ErrStoreClosed
	}
	return ctx.Err()
}

// RecordCycle keeps the allocation cycle in memory.
func (s *Store) RecordCycle(ctx context.Context, res *allocation.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, *res)
	return ctx.Err()
}

// Cycles returns recorded allocation cycles, oldest first.
func (s *Store) Cycles() []allocation.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]allocation.Result, len(s.cycles))
	copy(out, s.cycles)
	return out
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
