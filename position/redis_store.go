package position

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis: a per-account SET of held
// symbols, a HASH of symbol->detail JSON, and a pub/sub channel, keyed
// under a "{prefix}:current_positions:{account}" layout.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore builds a RedisStore; prefix defaults to "trading".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "trading"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) setKey(account string) string     { return fmt.Sprintf("%s:current_positions:%s", s.prefix, account) }
func (s *RedisStore) hashKey(account string) string    { return fmt.Sprintf("%s:position_details:%s", s.prefix, account) }
func (s *RedisStore) channelKey(account string) string { return fmt.Sprintf("%s:position_updates:%s", s.prefix, account) }

func (s *RedisStore) SAdd(ctx context.Context, account, symbol string) error {
	return s.client.SAdd(ctx, s.setKey(account), symbol).Err()
}

func (s *RedisStore) SRem(ctx context.Context, account, symbol string) error {
	return s.client.SRem(ctx, s.setKey(account), symbol).Err()
}

func (s *RedisStore) SIsMember(ctx context.Context, account, symbol string) (bool, error) {
	return s.client.SIsMember(ctx, s.setKey(account), symbol).Result()
}

func (s *RedisStore) SMembers(ctx context.Context, account string) ([]string, error) {
	return s.client.SMembers(ctx, s.setKey(account)).Result()
}

func (s *RedisStore) HSet(ctx context.Context, account, symbol string, detail []byte) error {
	return s.client.HSet(ctx, s.hashKey(account), symbol, detail).Err()
}

func (s *RedisStore) HDel(ctx context.Context, account, symbol string) error {
	return s.client.HDel(ctx, s.hashKey(account), symbol).Err()
}

func (s *RedisStore) HGet(ctx context.Context, account, symbol string) ([]byte, bool, error) {
	v, err := s.client.HGet(ctx, s.hashKey(account), symbol).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *RedisStore) HGetAll(ctx context.Context, account string) (map[string][]byte, error) {
	res, err := s.client.HGetAll(ctx, s.hashKey(account)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(res))
	for k, v := range res {
		out[k] = []byte(v)
	}
	return out, nil
}

func (s *RedisStore) Publish(ctx context.Context, account string, update Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("position: marshal update: %w", err)
	}
	return s.client.Publish(ctx, s.channelKey(account), payload).Err()
}

func (s *RedisStore) Subscribe(ctx context.Context, account string) (<-chan Update, error) {
	pubsub := s.client.Subscribe(ctx, s.channelKey(account))
	raw := pubsub.Channel()

	out := make(chan Update, 16)
	go func() {
		defer pubsub.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var update Update
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					continue
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
