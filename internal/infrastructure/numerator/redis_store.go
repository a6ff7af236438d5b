package numerator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	corenumerator "docnum/internal/core/numerator"
)

const (
	recycledKeySuffix = "recycled"
	officeSetSuffix   = "recycled:offices"
)

// RedisRecycleStore keeps each office's released numbers in a sorted set
// scored by release time in milliseconds. ZPOPMIN makes Pop atomic and FIFO.
type RedisRecycleStore struct {
	client redis.UniversalClient
	prefix string
	clock  corenumerator.Clock
}

var _ corenumerator.RecycleStore = (*RedisRecycleStore)(nil)

// NewRedisRecycleStore creates a Redis recycle store. A nil clock means time.Now.
func NewRedisRecycleStore(client redis.UniversalClient, prefix string, clock corenumerator.Clock) *RedisRecycleStore {
	if prefix == "" {
		prefix = "docnum"
	}
	if clock == nil {
		clock = time.Now
	}
	return &RedisRecycleStore{client: client, prefix: prefix, clock: clock}
}

func (s *RedisRecycleStore) officeKey(office string) string {
	return s.prefix + ":" + recycledKeySuffix + ":" + office
}

func (s *RedisRecycleStore) officesKey() string {
	return s.prefix + ":" + officeSetSuffix
}

// Add implements corenumerator.RecycleStore.
// NX keeps the original release time when a number is offered twice.
func (s *RedisRecycleStore) Add(ctx context.Context, office, number string) error {
	score := float64(s.clock().UnixMilli())
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddNX(ctx, s.officeKey(office), redis.Z{Score: score, Member: number})
		pipe.SAdd(ctx, s.officesKey(), office)
		return nil
	})
	if err != nil {
		return fmt.Errorf("zadd recycled number: %w", err)
	}
	return nil
}

// Pop implements corenumerator.RecycleStore.
func (s *RedisRecycleStore) Pop(ctx context.Context, office string) (string, bool, error) {
	res, err := s.client.ZPopMin(ctx, s.officeKey(office), 1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("zpopmin recycled number: %w", err)
	}
	if len(res) == 0 {
		return "", false, nil
	}
	number, ok := res[0].Member.(string)
	if !ok {
		return "", false, fmt.Errorf("unexpected recycled member type %T", res[0].Member)
	}
	return number, true, nil
}

// Purge implements corenumerator.RecycleStore.
func (s *RedisRecycleStore) Purge(ctx context.Context, office string) (int64, error) {
	key := s.officeKey(office)
	var card *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		card = pipe.ZCard(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge recycled numbers: %w", err)
	}
	return card.Val(), nil
}

// PurgeOlderThan implements corenumerator.RecycleStore.
func (s *RedisRecycleStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	offices, err := s.client.SMembers(ctx, s.officesKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("list recycle offices: %w", err)
	}

	// Exclusive upper bound: released strictly before cutoff.
	upper := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	var removed int64
	for _, office := range offices {
		n, err := s.client.ZRemRangeByScore(ctx, s.officeKey(office), "-inf", upper).Result()
		if err != nil {
			return removed, fmt.Errorf("purge recycled numbers for %s: %w", office, err)
		}
		removed += n
	}
	return removed, nil
}

// Count implements corenumerator.RecycleStore.
func (s *RedisRecycleStore) Count(ctx context.Context, office string) (int64, error) {
	n, err := s.client.ZCard(ctx, s.officeKey(office)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard recycled numbers: %w", err)
	}
	return n, nil
}

// List implements corenumerator.RecycleStore.
func (s *RedisRecycleStore) List(ctx context.Context, office string, limit int) ([]corenumerator.RecycledNumber, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	res, err := s.client.ZRangeWithScores(ctx, s.officeKey(office), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange recycled numbers: %w", err)
	}

	items := make([]corenumerator.RecycledNumber, 0, len(res))
	for _, z := range res {
		number, _ := z.Member.(string)
		items = append(items, corenumerator.RecycledNumber{
			Number:     number,
			Office:     office,
			ReleasedAt: time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return items, nil
}
