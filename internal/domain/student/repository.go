package student

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/counseling-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Хранилище читается и пишется целиком. Реализации находятся в
// infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository - контракт хранилища записей.
type Repository interface {
	// Load возвращает все записи в порядке вставки.
	// Неразборчивое содержимое хранилища читается как пустой набор.
	Load(ctx context.Context) (*Snapshot, error)

	// Save полностью заменяет содержимое хранилища.
	// В оптимистическом режиме возвращает ErrStaleSnapshot, если с момента
	// Load хранилище уже было перезаписано.
	Save(ctx context.Context, snap *Snapshot) error
}

// Pinger - опциональная проверка доступности хранилища (readiness).
type Pinger interface {
	Ping(ctx context.Context) error
}

// ══════════════════════════════════════════════════════════════════════════════
// CONSISTENCY
// ══════════════════════════════════════════════════════════════════════════════

// Consistency - режим записи хранилища.
type Consistency string

const (
	// ConsistencyLastWriterWins - версия игнорируется, последняя запись
	// молча затирает предыдущую.
	ConsistencyLastWriterWins Consistency = "last_writer_wins"

	// ConsistencyOptimistic - Save отклоняет снапшот с устаревшей версией.
	ConsistencyOptimistic Consistency = "optimistic"
)

// ParseConsistency разбирает режим из конфигурации.
func ParseConsistency(s string) (Consistency, error) {
	switch c := Consistency(strings.ToLower(strings.TrimSpace(s))); c {
	case "", ConsistencyLastWriterWins:
		return ConsistencyLastWriterWins, nil
	case ConsistencyOptimistic:
		return c, nil
	default:
		return "", shared.WrapError("store", "ParseConsistency", shared.ErrInvalidInput,
			"unknown consistency mode", fmt.Errorf("%q", s))
	}
}

// IsOptimistic возвращает true для оптимистического режима.
func (c Consistency) IsOptimistic() bool {
	return c == ConsistencyOptimistic
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - содержимое хранилища на момент Load.
type Snapshot struct {
	// Records в порядке вставки.
	Records []*Record

	// Version увеличивается при каждом Save. 0 - хранилище ни разу не писалось.
	Version int64
}

// NewSnapshot создаёт снапшот из готового набора записей.
func NewSnapshot(records []*Record, version int64) *Snapshot {
	if records == nil {
		records = []*Record{}
	}
	return &Snapshot{Records: records, Version: version}
}

// Find возвращает запись по email или nil.
func (s *Snapshot) Find(email Email) *Record {
	for _, r := range s.Records {
		if r.Email == email {
			return r
		}
	}
	return nil
}

// Get возвращает запись по email или ErrStudentNotFound.
func (s *Snapshot) Get(email Email) (*Record, error) {
	if r := s.Find(email); r != nil {
		return r, nil
	}
	return nil, shared.WrapError("student", "Get", shared.ErrStudentNotFound,
		"student not found", fmt.Errorf("%s", email))
}

// Upsert возвращает существующую запись или добавляет новую в конец.
// Относительный порядок остальных записей не меняется.
func (s *Snapshot) Upsert(email Email, now time.Time) *Record {
	if r := s.Find(email); r != nil {
		return r
	}
	r := NewRecord(email, now)
	s.Records = append(s.Records, r)
	return r
}

// Len возвращает число записей.
func (s *Snapshot) Len() int {
	return len(s.Records)
}

// Clone возвращает глубокую копию снапшота.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{Records: make([]*Record, len(s.Records)), Version: s.Version}
	for i, r := range s.Records {
		out.Records[i] = r.Clone()
	}
	return out
}
