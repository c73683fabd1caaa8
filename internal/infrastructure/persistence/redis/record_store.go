package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/counseling-hub/internal/domain/allocation"
	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
	"github.com/alem-hub/counseling-hub/pkg/logger"
)

// RecordStore is a student.Repository over two Redis keys: the JSON record
// set and its version counter.
type RecordStore struct {
	cache       *Cache
	consistency student.Consistency
	log         *logger.Logger
}

// NewRecordStore creates a record store on top of cache.
func NewRecordStore(cache *Cache, consistency student.Consistency, log *logger.Logger) *RecordStore {
	if log == nil {
		log = logger.Nop()
	}
	return &RecordStore{
		cache:       cache,
		consistency: consistency,
		log:         log.With(logger.Component("redis_store")),
	}
}

// Ping implements student.Pinger.
func (s *RecordStore) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

// Load implements student.Repository.
func (s *RecordStore) Load(ctx context.Context) (*student.Snapshot, error) {
	keys := s.cache.Keys()
	vals, err := s.cache.Client().MGet(ctx, keys.Records(), keys.Version()).Result()
	if err != nil {
		return nil, wrapErr("Load", err)
	}

	payload, _ := vals[0].(string)
	version, err := parseVersion(vals[1])
	if err != nil {
		return nil, wrapErr("Load", err)
	}

	records, err := student.DecodeRecords([]byte(payload))
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

	if !s.consistency.IsOptimistic() {
		version, err := s.write(ctx, s.cache.Client(), data)
		if err != nil {
			return wrapErr("Save", err)
		}
		snap.Version = version
		return nil
	}

	keys := s.cache.Keys()
	var version int64
	err = s.cache.Client().Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, keys.Version()).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		v, err := parseVersion(current)
		if err != nil {
			return err
		}
		if v != snap.Version {
			return shared.ErrStaleSnapshot
		}
		version, err = s.write(ctx, tx, data)
		return err
	}, keys.Version())

	switch {
	case err == nil:
		snap.Version = version
		return nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, shared.ErrStaleSnapshot):
		return shared.ErrStaleSnapshot
	default:
		return wrapErr("Save", err)
	}
}

// write stores the payload and bumps the version in one MULTI/EXEC.
func (s *RecordStore) write(ctx context.Context, c redis.Cmdable, data []byte) (int64, error) {
	keys := s.cache.Keys()
	var incr *redis.IntCmd
	_, err := c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keys.Records(), data, 0)
		incr = pipe.Incr(ctx, keys.Version())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// maxCycles bounds the allocation-cycle audit list.
const maxCycles = 100

// RecordCycle pushes an allocation cycle onto a capped audit list.
func (s *RecordStore) RecordCycle(ctx context.Context, res *allocation.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("redis: encode cycle: %w", err)
	}
	key := s.cache.Keys().Cycles()
	_, err = s.cache.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, maxCycles-1)
		return nil
	})
	if err != nil {
		return wrapErr("RecordCycle", err)
	}
	return nil
}

func parseVersion(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case string:
		if t == "" {
			return 0, nil
		}
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, errors.New("unexpected version type")
	}
}

func wrapErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.WrapError("redis", op, shared.ErrServiceUnavailable, "redis command failed", err)
}
