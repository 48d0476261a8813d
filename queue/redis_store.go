package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of Redis sorted sets, one ZSET per
// partition per account, using a "{queue_key}:{account}" key layout:
// trading:signals / :processing / :failed.
type RedisStore struct {
	client             redis.UniversalClient
	pendingKey         string
	processingKey      string
	failedKey          string
	statsKeyPrefix     string
}

// RedisStoreConfig names the base keys; account namespacing is appended by
// the store itself so a single RedisStore instance can serve every
// account sharing a Redis deployment.
type RedisStoreConfig struct {
	Client        redis.UniversalClient
	QueueKey      string // default "trading:signals"
	ProcessingKey string // default "trading:signals:processing"
	FailedKey     string // default "trading:signals:failed"
	StatsKey      string // default "trading:signals:stats"
}

// NewRedisStore builds a RedisStore from cfg, applying sensible key
// defaults for any key left blank.
func NewRedisStore(cfg RedisStoreConfig) *RedisStore {
	if cfg.QueueKey == "" {
		cfg.QueueKey = "trading:signals"
	}
	if cfg.ProcessingKey == "" {
		cfg.ProcessingKey = cfg.QueueKey + ":processing"
	}
	if cfg.FailedKey == "" {
		cfg.FailedKey = cfg.QueueKey + ":failed"
	}
	if cfg.StatsKey == "" {
		cfg.StatsKey = cfg.QueueKey + ":stats"
	}
	return &RedisStore{
		client:         cfg.Client,
		pendingKey:     cfg.QueueKey,
		processingKey:  cfg.ProcessingKey,
		failedKey:      cfg.FailedKey,
		statsKeyPrefix: cfg.StatsKey,
	}
}

func (s *RedisStore) key(account string, p Partition) string {
	switch p {
	case PartitionPending:
		return fmt.Sprintf("%s:%s", s.pendingKey, account)
	case PartitionProcessing:
		return fmt.Sprintf("%s:%s", s.processingKey, account)
	case PartitionFailed:
		return fmt.Sprintf("%s:%s", s.failedKey, account)
	default:
		return fmt.Sprintf("%s:%s:%s", s.pendingKey, account, p)
	}
}

func (s *RedisStore) Insert(ctx context.Context, account string, p Partition, payload []byte, score float64) error {
	return s.client.ZAdd(ctx, s.key(account, p), redis.Z{Score: score, Member: payload}).Err()
}

func (s *RedisStore) PopMin(ctx context.Context, account string, p Partition) ([]byte, float64, bool, error) {
	res, err := s.client.ZPopMin(ctx, s.key(account, p), 1).Result()
	if err != nil {
		return nil, 0, false, err
	}
	if len(res) == 0 {
		return nil, 0, false, nil
	}
	member, ok := res[0].Member.(string)
	if !ok {
		return nil, 0, false, fmt.Errorf("queue: unexpected redis member type %T", res[0].Member)
	}
	return []byte(member), res[0].Score, true, nil
}

func (s *RedisStore) Remove(ctx context.Context, account string, p Partition, payload []byte) (bool, error) {
	removed, err := s.client.ZRem(ctx, s.key(account, p), payload).Result()
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

func (s *RedisStore) RangeOlderThan(ctx context.Context, account string, p Partition, cutoff float64) ([][]byte, error) {
	res, err := s.client.ZRangeByScore(ctx, s.key(account, p), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", cutoff),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(res))
	for i, m := range res {
		out[i] = []byte(m)
	}
	return out, nil
}

func (s *RedisStore) RangeAll(ctx context.Context, account string, p Partition) ([][]byte, error) {
	res, err := s.client.ZRange(ctx, s.key(account, p), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(res))
	for i, m := range res {
		out[i] = []byte(m)
	}
	return out, nil
}

func (s *RedisStore) Card(ctx context.Context, account string, p Partition) (int64, error) {
	return s.client.ZCard(ctx, s.key(account, p)).Result()
}

func (s *RedisStore) Clear(ctx context.Context, account string, p Partition) error {
	return s.client.Del(ctx, s.key(account, p)).Err()
}

func (s *RedisStore) IncrCounter(ctx context.Context, account, name string) error {
	return s.client.HIncrBy(ctx, fmt.Sprintf("%s:%s", s.statsKeyPrefix, account), name, 1).Err()
}

func (s *RedisStore) GetCounter(ctx context.Context, account, name string) (int64, error) {
	v, err := s.client.HGet(ctx, fmt.Sprintf("%s:%s", s.statsKeyPrefix, account), name).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}
