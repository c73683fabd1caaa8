package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/counseling-hub/internal/domain/allocation"
	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
	"github.com/alem-hub/counseling-hub/pkg/logger"
)

// RecordStore is a student.Repository over the counseling_records row.
type RecordStore struct {
	conn        *Connection
	consistency student.Consistency
	log         *logger.Logger
}

// NewRecordStore creates a record store. Migrations must already be applied.
func NewRecordStore(conn *Connection, consistency student.Consistency, log *logger.Logger) *RecordStore {
	if log == nil {
		log = logger.Nop()
	}
	return &RecordStore{
		conn:        conn,
		consistency: consistency,
		log:         log.With(logger.Component("postgres_store")),
	}
}

// Ping implements student.Pinger.
func (s *RecordStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Load implements student.Repository.
func (s *RecordStore) Load(ctx context.Context) (*student.Snapshot, error) {
	var (
		payload []byte
		version int64
	)
	err := s.conn.QueryRow(ctx,
		`SELECT payload, version FROM counseling_records WHERE id = 1`,
	).Scan(&payload, &version)
	if IsNoRows(err) {
		return student.NewSnapshot(nil, 0), nil
	}
	if err != nil {
		return nil, wrapErr("Load", err)
	}

	records, err := student.DecodeRecords(payload)
	if err != nil {
		s.log.Warn("stored records are unreadable, treating store as empty", logger.Err(err))
		records = nil
	}
	return student.NewSnapshot(records, version), nil
}

// Save implements student.Repository.
func (s *RecordStore) Save(ctx context.Context, snap *student.Snapshot) error {
	data, err := student.EncodeRecords(snap.Records)
	if err != nil {
		return err
	}

	var version int64
	if s.consistency.IsOptimistic() {
		err = s.conn.QueryRow(ctx, `
			UPDATE counseling_records
			SET payload = $1, version = version + 1, updated_at = NOW()
			WHERE id = 1 AND version = $2
			RETURNING version`, data, snap.Version,
		).Scan(&version)
		if IsNoRows(err) {
			return shared.ErrStaleSnapshot
		}
	} else {
		err = s.conn.QueryRow(ctx, `
			INSERT INTO counseling_records (id, payload, version, updated_at)
			VALUES (1, $1, 1, NOW())
			ON CONFLICT (id) DO UPDATE
			SET payload = EXCLUDED.payload,
			    version = counseling_records.version + 1,
			    updated_at = NOW()
			RETURNING version`, data,
		).Scan(&version)
	}
	if err != nil {
		if IsSerializationFailure(err) {
			return shared.WrapError("postgres", "Save", shared.ErrConcurrentModification,
				"concurrent write", err)
		}
		return wrapErr("Save", err)
	}

	snap.Version = version
	return nil
}

// RecordCycle appends an allocation cycle to the audit table.
func (s *RecordStore) RecordCycle(ctx context.Context, res *allocation.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("postgres: encode cycle: %w", err)
	}

	return s.conn.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO allocation_cycles (cycle_id, started_at, assigned, unplaced, overrides, payload)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			res.CycleID, res.StartedAt,
			res.Count(allocation.ChoiceFirst)+res.Count(allocation.ChoiceSecond),
			res.Count(allocation.ChoiceNone),
			res.Count(allocation.ChoiceOverride),
			payload,
		)
		if err != nil {
			return wrapErr("RecordCycle", err)
		}
		return nil
	})
}

func wrapErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.WrapError("postgres", op, shared.ErrServiceUnavailable, "postgres query failed", err)
}
