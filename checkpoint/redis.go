package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/contextmesh/core"
)

const keyPrefix = "contextmesh:checkpoint:"

// RedisStoreOptions configure the Redis checkpoint store.
type RedisStoreOptions struct {
	// KeyPrefix namespaces checkpoint keys within the Redis database.
	KeyPrefix string
}

// RedisStore is the Redis-backed core.CheckpointStore. Conditional writes
// use WATCH-based transactions: the record is re-read inside the watch and
// the write aborts when another client touched the key, mapping both a
// stage mismatch and a lost transaction to *core.CheckpointConflict.
type RedisStore struct {
	client redis.UniversalClient
	opts   RedisStoreOptions
}

// NewRedisStore creates a RedisStore on an existing client.
func NewRedisStore(client redis.UniversalClient, optFns ...func(o *RedisStoreOptions)) *RedisStore {
	opts := RedisStoreOptions{KeyPrefix: keyPrefix}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, opts: opts}
}

func (s *RedisStore) key(analysisID string) string {
	return s.opts.KeyPrefix + analysisID
}

// Get implements core.CheckpointStore.
func (s *RedisStore) Get(ctx context.Context, analysisID string) (*core.CheckpointRecord, bool, error) {
	raw, err := s.client.Get(ctx, s.key(analysisID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get checkpoint %s: %w", analysisID, err)
	}

	var rec core.CheckpointRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode checkpoint %s: %w", analysisID, err)
	}
	return &rec, true, nil
}

// Put implements core.CheckpointStore.
func (s *RedisStore) Put(ctx context.Context, record core.CheckpointRecord, expectedStage int) error {
	key := s.key(record.AnalysisID)

	blob, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", record.AnalysisID, err)
	}

	conflict := &core.CheckpointConflict{AnalysisID: record.AnalysisID, ExpectedStage: expectedStage}

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		exists := !errors.Is(err, redis.Nil)
		if err != nil && exists {
			return fmt.Errorf("read checkpoint %s: %w", record.AnalysisID, err)
		}

		switch {
		case expectedStage == -1 && exists:
			return conflict
		case expectedStage != -1 && !exists:
			return conflict
		case expectedStage != -1:
			var current core.CheckpointRecord
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("decode checkpoint %s: %w", record.AnalysisID, err)
			}
			if current.StageIndex != expectedStage {
				return conflict
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, blob, 0)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		return conflict
	}
	return err
}
