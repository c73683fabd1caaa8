// Package command contains write operations (CQRS - Commands).
//
// Every command loads the whole record set, changes it in memory and saves it
// back. When the store runs in optimistic mode a lost race surfaces as a
// concurrent-modification error and the whole cycle is retried from a fresh
// load.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
	"github.com/alem-hub/counseling-hub/pkg/logger"
	"github.com/alem-hub/counseling-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the struct tags of cmd and maps failures to
// shared.ErrValidation.
func validateStruct(op string, cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make([]string, 0, len(ve))
		for _, fe := range ve {
			fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
		}
		return shared.WrapError("command", op, shared.ErrValidation,
			"invalid command", errors.New(strings.Join(fields, "; ")))
	}
	return shared.WrapError("command", op, shared.ErrValidation, "invalid command", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE CYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Store runs load-mutate-save cycles against a repository.
type Store struct {
	repo    student.Repository
	retrier *retry.Retrier
	now     func() time.Time
	events  shared.EventPublisher
	log     *logger.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the time source used for record timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithRetrier replaces the retry policy for lost version races.
func WithRetrier(r *retry.Retrier) StoreOption {
	return func(s *Store) {
		s.retrier = r
	}
}

// WithPublisher publishes a domain event after every saved change.
func WithPublisher(p shared.EventPublisher) StoreOption {
	return func(s *Store) {
		s.events = p
	}
}

// NewStore wraps repo. A nil log disables logging.
func NewStore(repo student.Repository, log *logger.Logger, opts ...StoreOption) *Store {
	if log == nil {
		log = logger.Nop()
	}
	s := &Store{
		repo: repo,
		now:  time.Now,
		log:  log.With(logger.Component("command")),
	}
	s.retrier = retry.StoreRetrier(isStale, retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		s.log.Warn("store write lost a race, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repository returns the wrapped repository.
func (s *Store) Repository() student.Repository {
	return s.repo
}

// Now returns the current time from the store clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Mutate loads a snapshot, applies fn and saves the result. fn is called
// again on a fresh snapshot if the save lost a version race. When fn returns
// errNoChange the snapshot is not saved.
func (s *Store) Mutate(ctx context.Context, fn func(snap *student.Snapshot, now time.Time) error) (*student.Snapshot, error) {
	var out *student.Snapshot
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		snap, err := s.repo.Load(ctx)
		if err != nil {
			return err
		}
		if err := fn(snap, s.now()); err != nil {
			if errors.Is(err, errNoChange) {
				out = snap
				return nil
			}
			return retry.Permanent(err)
		}
		if err := s.repo.Save(ctx, snap); err != nil {
			return err
		}
		out = snap
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// publish hands saved changes to the event publisher. The change is already
// committed, so a publish failure is logged and dropped.
func (s *Store) publish(events ...shared.Event) {
	if s.events == nil {
		return
	}
	for _, e := range events {
		if err := s.events.Publish(e); err != nil {
			s.log.Warn("failed to publish event",
				logger.String("event_type", string(e.EventType())),
				logger.Err(err),
			)
		}
	}
}

// errNoChange lets a mutation skip the save.
var errNoChange = errors.New("no change")

func isStale(err error) bool {
	return errors.Is(err, shared.ErrConcurrentModification)
}

func parseEmail(op, raw string) (student.Email, error) {
	email, err := student.ParseEmail(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return email, nil
}
