package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/counseling-hub/internal/domain/allocation"
	"github.com/alem-hub/counseling-hub/internal/domain/branch"
	"github.com/alem-hub/counseling-hub/internal/domain/ranking"
	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
	"github.com/alem-hub/counseling-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE RANKINGS
// Assigns dense ranks by total 10+2 marks across the whole store.
// ══════════════════════════════════════════════════════════════════════════════

// GenerateRankingsCommand has no parameters; it always ranks the full store.
type GenerateRankingsCommand struct{}

// GenerateRankingsResult contains the ranking run and the saved version.
type GenerateRankingsResult struct {
	Ranking *ranking.Result
	Version int64
}

// GenerateRankingsHandler handles GenerateRankingsCommand.
type GenerateRankingsHandler struct {
	store  *Store
	engine *ranking.Engine
	log    *logger.Logger
}

// NewGenerateRankingsHandler creates a new GenerateRankingsHandler.
func NewGenerateRankingsHandler(store *Store, engine *ranking.Engine, log *logger.Logger) *GenerateRankingsHandler {
	if engine == nil {
		engine = ranking.NewEngine()
	}
	return &GenerateRankingsHandler{store: store, engine: engine, log: orNop(log)}
}

// Handle executes the command.
func (h *GenerateRankingsHandler) Handle(ctx context.Context, _ GenerateRankingsCommand) (*GenerateRankingsResult, error) {
	var (
		res *ranking.Result
		at  time.Time
	)
	snap, err := h.store.Mutate(ctx, func(snap *student.Snapshot, now time.Time) error {
		res = h.engine.Rank(snap.Records)
		at = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate_rankings: %w", err)
	}

	h.log.Info("rankings generated",
		logger.Int("ranked", len(res.Ranked)),
		logger.Int("unranked", len(res.Unranked)),
		logger.Int("changed", res.Changed()),
	)
	h.store.publish(shared.RankingsGeneratedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventRankingsGenerated, shared.StoreAggregate, at, snap.Version),
		Ranked:    len(res.Ranked),
		Unranked:  len(res.Unranked),
		Changed:   res.Changed(),
	})
	return &GenerateRankingsResult{Ranking: res, Version: snap.Version}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ALLOCATE SEATS
// Runs one allocation cycle over all eligible records.
// ══════════════════════════════════════════════════════════════════════════════

// CycleRecorder keeps an audit trail of allocation cycles.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, res *allocation.Result) error
}

// AllocateSeatsCommand has no parameters; capacity comes from the engine.
type AllocateSeatsCommand struct{}

// AllocateSeatsResult contains the cycle and the saved version.
type AllocateSeatsResult struct {
	Cycle   *allocation.Result
	Version int64
}

// AllocateSeatsHandler handles AllocateSeatsCommand.
type AllocateSeatsHandler struct {
	store    *Store
	engine   *allocation.Engine
	recorder CycleRecorder
	log      *logger.Logger
}

// NewAllocateSeatsHandler creates a new AllocateSeatsHandler. recorder may be
// nil.
func NewAllocateSeatsHandler(store *Store, engine *allocation.Engine, recorder CycleRecorder, log *logger.Logger) *AllocateSeatsHandler {
	return &AllocateSeatsHandler{store: store, engine: engine, recorder: recorder, log: orNop(log)}
}

// Handle executes the command.
func (h *AllocateSeatsHandler) Handle(ctx context.Context, _ AllocateSeatsCommand) (*AllocateSeatsResult, error) {
	var res *allocation.Result
	snap, err := h.store.Mutate(ctx, func(snap *student.Snapshot, _ time.Time) error {
		r, err := h.engine.Allocate(snap.Records)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("allocate_seats: %w", err)
	}

	log := h.log.With(logger.CycleID(res.CycleID))
	if h.recorder != nil {
		// The cycle is already saved; a failed audit write is reported, not returned.
		if err := h.recorder.RecordCycle(ctx, res); err != nil {
			log.Warn("failed to record allocation cycle", logger.Err(err))
		}
	}

	log.Info("seats allocated",
		logger.Int("first_choice", res.Count(allocation.ChoiceFirst)),
		logger.Int("second_choice", res.Count(allocation.ChoiceSecond)),
		logger.Int("unplaced", res.Count(allocation.ChoiceNone)),
		logger.Int("overrides", res.Count(allocation.ChoiceOverride)),
		logger.Int("skipped", len(res.Skipped)),
		logger.Int("changed", res.Changed()),
		logger.Bool("preserve_overrides", h.engine.PreservesOverrides()),
	)
	h.store.publish(shared.SeatsAllocatedEvent{
		BaseEvent:    shared.NewBaseEvent(shared.EventSeatsAllocated, shared.StoreAggregate, res.StartedAt, snap.Version),
		CycleID:      res.CycleID,
		FirstChoice:  res.Count(allocation.ChoiceFirst),
		SecondChoice: res.Count(allocation.ChoiceSecond),
		Unplaced:     res.Count(allocation.ChoiceNone),
		Overrides:    res.Count(allocation.ChoiceOverride),
		Changed:      res.Changed(),
	})
	return &AllocateSeatsResult{Cycle: res, Version: snap.Version}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OVERRIDE ALLOCATION
// Assigns one student to one branch by hand. Capacity and preferences are
// not checked; the branch only has to be known.
// ══════════════════════════════════════════════════════════════════════════════

// OverrideAllocationCommand sets or clears a manual allocation.
type OverrideAllocationCommand struct {
	Email  string `validate:"required,email"`
	Branch string `validate:"required_without=Clear,excluded_with=Clear"`

	// Clear removes the allocation and the override mark instead.
	Clear bool
}

// Validate validates the command.
func (c OverrideAllocationCommand) Validate() error {
	return validateStruct("OverrideAllocation", c)
}

// OverrideAllocationResult contains the updated record.
type OverrideAllocationResult struct {
	Record   *student.Record
	Previous *branch.Code
	Version  int64
}

// OverrideAllocationHandler handles OverrideAllocationCommand.
type OverrideAllocationHandler struct {
	store *Store
	log   *logger.Logger
}

// NewOverrideAllocationHandler creates a new OverrideAllocationHandler.
func NewOverrideAllocationHandler(store *Store, log *logger.Logger) *OverrideAllocationHandler {
	return &OverrideAllocationHandler{store: store, log: orNop(log)}
}

// Handle executes the command.
func (h *OverrideAllocationHandler) Handle(ctx context.Context, cmd OverrideAllocationCommand) (*OverrideAllocationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("override_allocation: %w", err)
	}
	email, err := parseEmail("override_allocation", cmd.Email)
	if err != nil {
		return nil, err
	}

	var code branch.Code
	if !cmd.Clear {
		code, err = branch.Parse(cmd.Branch)
		if err != nil {
			return nil, fmt.Errorf("override_allocation: %w", err)
		}
	}

	var (
		rec      *student.Record
		previous *branch.Code
		at       time.Time
	)
	snap, err := h.store.Mutate(ctx, func(snap *student.Snapshot, now time.Time) error {
		r, err := snap.Get(email)
		if err != nil {
			return err
		}
		previous = nil
		if old, ok := r.Branch(); ok {
			previous = &old
		}
		if cmd.Clear {
			r.ClearAllocation(now)
		} else {
			r.OverrideAllocation(code, now)
		}
		rec = r
		at = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("override_allocation: %w", err)
	}

	h.log.Info("allocation overridden",
		logger.Email(email.String()),
		logger.Branch(code.String()),
		logger.Bool("cleared", cmd.Clear),
	)
	event := shared.AllocationOverriddenEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventAllocationOverridden, email.String(), at, snap.Version),
		Branch:    code.String(),
		Cleared:   cmd.Clear,
	}
	if previous != nil {
		event.Previous = previous.String()
	}
	h.store.publish(event)
	return &OverrideAllocationResult{Record: rec.Clone(), Previous: previous, Version: snap.Version}, nil
}
