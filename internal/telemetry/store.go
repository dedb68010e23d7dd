package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMetricsStore implements QueryMetricsStore over the same Redis
// instance the fusion engine's state store uses, keeping all persisted
// state in one place rather than adding a second storage technology.
type RedisMetricsStore struct {
	rdb      redis.UniversalClient
	snapshot string
	ctx      context.Context
}

// NewRedisMetricsStore creates a Redis-backed metrics store, namespaced
// under the given snapshot so multiple engine deployments sharing a Redis
// instance don't mix telemetry.
func NewRedisMetricsStore(rdb redis.UniversalClient, snapshot string) (*RedisMetricsStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if snapshot == "" {
		snapshot = "default"
	}
	return &RedisMetricsStore{rdb: rdb, snapshot: snapshot, ctx: context.Background()}, nil
}

func (s *RedisMetricsStore) key(parts ...string) string {
	key := "telemetry:" + s.snapshot
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// SaveQueryTypeCounts upserts daily lane-type counts into a per-day hash.
func (s *RedisMetricsStore) SaveQueryTypeCounts(date string, counts map[QueryType]int64) error {
	if len(counts) == 0 {
		return nil
	}
	key := s.key("query_types", date)
	pipe := s.rdb.Pipeline()
	for qt, n := range counts {
		pipe.HIncrBy(s.ctx, key, string(qt), n)
	}
	_, err := pipe.Exec(s.ctx)
	return err
}

// GetQueryTypeCounts sums per-day hashes across an inclusive date range.
func (s *RedisMetricsStore) GetQueryTypeCounts(from, to string) (map[QueryType]int64, error) {
	dates, err := dateRange(from, to)
	if err != nil {
		return nil, err
	}

	out := make(map[QueryType]int64)
	for _, date := range dates {
		vals, err := s.rdb.HGetAll(s.ctx, s.key("query_types", date)).Result()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		for qt, raw := range vals {
			n, _ := strconv.ParseInt(raw, 10, 64)
			out[QueryType(qt)] += n
		}
	}
	return out, nil
}

// UpsertTermCounts increments each term's frequency in a single sorted set,
// so GetTopTerms can read back the highest-frequency terms without a scan.
func (s *RedisMetricsStore) UpsertTermCounts(terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}
	key := s.key("terms")
	pipe := s.rdb.Pipeline()
	for term, n := range terms {
		pipe.ZIncrBy(s.ctx, key, float64(n), term)
	}
	_, err := pipe.Exec(s.ctx)
	return err
}

// GetTopTerms retrieves the top-N terms by frequency.
func (s *RedisMetricsStore) GetTopTerms(limit int) ([]TermCount, error) {
	if limit <= 0 {
		limit = 20
	}
	zs, err := s.rdb.ZRevRangeWithScores(s.ctx, s.key("terms"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]TermCount, len(zs))
	for i, z := range zs {
		out[i] = TermCount{Term: z.Member.(string), Count: int64(z.Score)}
	}
	return out, nil
}

// AddZeroResultQuery pushes a query onto a capped list acting as the
// circular buffer's durable mirror.
func (s *RedisMetricsStore) AddZeroResultQuery(query string, timestamp time.Time) error {
	key := s.key("zero_result_queries")
	pipe := s.rdb.Pipeline()
	pipe.LPush(s.ctx, key, query)
	pipe.LTrim(s.ctx, key, 0, 99)
	_, err := pipe.Exec(s.ctx)
	return err
}

// GetZeroResultQueries retrieves the most recent zero-result queries.
func (s *RedisMetricsStore) GetZeroResultQueries(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.rdb.LRange(s.ctx, s.key("zero_result_queries"), 0, int64(limit-1)).Result()
}

// SaveLatencyCounts upserts a day's took-ms histogram into a per-day hash.
func (s *RedisMetricsStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	if len(counts) == 0 {
		return nil
	}
	key := s.key("latencies", date)
	pipe := s.rdb.Pipeline()
	for bucket, n := range counts {
		pipe.HIncrBy(s.ctx, key, string(bucket), n)
	}
	_, err := pipe.Exec(s.ctx)
	return err
}

// GetLatencyCounts sums per-day latency histograms across a date range.
func (s *RedisMetricsStore) GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	dates, err := dateRange(from, to)
	if err != nil {
		return nil, err
	}

	out := make(map[LatencyBucket]int64)
	for _, date := range dates {
		vals, err := s.rdb.HGetAll(s.ctx, s.key("latencies", date)).Result()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		for bucket, raw := range vals {
			n, _ := strconv.ParseInt(raw, 10, 64)
			out[LatencyBucket(bucket)] += n
		}
	}
	return out, nil
}

// Close is a no-op: the Redis client's lifecycle is owned by whoever
// constructed it (the same client the state store uses).
func (s *RedisMetricsStore) Close() error {
	return nil
}

func dateRange(from, to string) ([]string, error) {
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return nil, fmt.Errorf("invalid from date %q: %w", from, err)
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		return nil, fmt.Errorf("invalid to date %q: %w", to, err)
	}
	if end.Before(start) {
		start, end = end, start
	}

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format("2006-01-02"))
	}
	return dates, nil
}
