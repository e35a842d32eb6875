package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

// leaveScript decrements a user's connection count and drops the field once
// it reaches zero. ARGV[2] is the key ttl in milliseconds, 0 to keep it.
var leaveScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
end
local ttl = tonumber(ARGV[2])
if ttl > 0 and redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return n
`)

// RedisStore keeps per-class connection counts in Redis so every instance
// can answer who is online. Keys:
//   - <prefix>:presence:<class_id>: hash user_id -> open connections
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "classchat"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(classID int64) string {
	return fmt.Sprintf("%s:presence:%d", s.prefix, classID)
}

// Joined records one more connection of userID in the class room.
func (s *RedisStore) Joined(ctx context.Context, classID, userID int64) error {
	key := s.key(classID)
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, strconv.FormatInt(userID, 10), 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Left records that one connection of userID left the class room and keeps
// the room alive for the remaining members.
func (s *RedisStore) Left(ctx context.Context, classID, userID int64) error {
	return leaveScript.Run(ctx, s.client, []string{s.key(classID)},
		strconv.FormatInt(userID, 10), s.ttl.Milliseconds()).Err()
}

// Online returns the ids of users with at least one connection, ascending.
func (s *RedisStore) Online(ctx context.Context, classID int64) ([]int64, error) {
	counts, err := s.client.HGetAll(ctx, s.key(classID)).Result()
	if err != nil {
		return nil, err
	}
	ids := lo.FilterMap(lo.Entries(counts), func(e lo.Entry[string, string], _ int) (int64, bool) {
		n, err := strconv.Atoi(e.Value)
		if err != nil || n <= 0 {
			return 0, false
		}
		id, err := strconv.ParseInt(e.Key, 10, 64)
		return id, err == nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
