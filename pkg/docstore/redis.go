package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/dataset-processor/pkg/logger"
)

const maxTxRetries = 16

// RedisStore keeps each document in a hash (fields data and partition) and
// indexes ids per partition in sets. Writes use WATCH/MULTI so inserts and
// read-modify-write updates are atomic.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger logger.Logger
}

// NewRedisStore wraps client. Keys are namespaced by prefix.
func NewRedisStore(client *redis.Client, prefix string, log logger.Logger) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, logger: log}
}

func (s *RedisStore) docKey(collection, id string) string {
	return fmt.Sprintf("%s:%s:doc:%s", s.prefix, collection, id)
}

func (s *RedisStore) partitionKey(collection, partition string) string {
	return fmt.Sprintf("%s:%s:part:%s", s.prefix, collection, partition)
}

func (s *RedisStore) allKey(collection string) string {
	return fmt.Sprintf("%s:%s:all", s.prefix, collection)
}

func (s *RedisStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.docKey(collection, id), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return data, nil
}

// List returns documents ordered by id. Index entries whose document is gone
// are skipped.
func (s *RedisStore) List(ctx context.Context, collection, partition string) ([][]byte, error) {
	index := s.allKey(collection)
	if partition != "" {
		index = s.partitionKey(collection, partition)
	}
	ids, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	sort.Strings(ids)

	cmds := make([]*redis.StringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGet(ctx, s.docKey(collection, id), "data")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load %s: %w", collection, err)
	}

	out := make([][]byte, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			s.logger.Warn("Stale index entry",
				logger.String("collection", collection),
				logger.String("id", ids[i]),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s/%s: %w", collection, ids[i], err)
		}
		out = append(out, data)
	}
	return out, nil
}

func (s *RedisStore) Insert(ctx context.Context, collection string, doc Document) error {
	key := s.docKey(collection, doc.ID)
	return s.retry(ctx, key, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return ErrDuplicateKey
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.write(ctx, pipe, collection, doc)
			return nil
		})
		return err
	})
}

func (s *RedisStore) Save(ctx context.Context, collection string, doc Document) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.write(ctx, pipe, collection, doc)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", collection, doc.ID, err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, collection, id string, fn UpdateFunc) error {
	key := s.docKey(collection, id)
	return s.retry(ctx, key, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "data").Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "data", next)
			return nil
		})
		return err
	})
}

func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	key := s.docKey(collection, id)
	return s.retry(ctx, key, func(tx *redis.Tx) error {
		partition, err := tx.HGet(ctx, key, "partition").Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, s.allKey(collection), id)
			if partition != "" {
				pipe.SRem(ctx, s.partitionKey(collection, partition), id)
			}
			return nil
		})
		return err
	})
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) write(ctx context.Context, pipe redis.Pipeliner, collection string, doc Document) {
	pipe.HSet(ctx, s.docKey(collection, doc.ID), "data", doc.Data, "partition", doc.Partition)
	pipe.SAdd(ctx, s.allKey(collection), doc.ID)
	if doc.Partition != "" {
		pipe.SAdd(ctx, s.partitionKey(collection, doc.Partition), doc.ID)
	}
}

// retry runs fn under WATCH key until the transaction commits without a
// concurrent modification.
func (s *RedisStore) retry(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("Optimistic transaction retry",
				logger.String("key", key),
				logger.Int("attempt", i+1),
			)
			continue
		}
		return err
	}
	return fmt.Errorf("transaction on %s did not commit after %d attempts", key, maxTxRetries)
}
