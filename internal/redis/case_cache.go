package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"trafficSOS/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

// CaseStore is the subset of the case store the cache wraps.
type CaseStore interface {
	Insert(ctx context.Context, rec *domain.CaseRecord) error
	Get(ctx context.Context, accidentID string) (*domain.CaseRecord, error)
	List(ctx context.Context, filter domain.ListCasesRequest) ([]*domain.CaseRecord, int, error)
	Update(ctx context.Context, rec *domain.CaseRecord, expected domain.CaseStatus) error
	ListExpired(ctx context.Context, cutoff time.Time) ([]string, error)
	Delete(ctx context.Context, accidentID string, expected domain.CaseStatus) error
	Ping(ctx context.Context) error
}

// CachedCases serves Get from redis and invalidates on every write. The
// wrapped store stays authoritative: cache errors fall through to it.
//
// Every invalidation bumps a per-case generation key. A read-through fill
// only lands if the generation it saw before reading the store is still
// current, so a slow reader cannot put back a record a writer just replaced.
type CachedCases struct {
	CaseStore
	client *goredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// fillScript sets KEYS[1] only while KEYS[2] still holds ARGV[1].
var fillScript = goredis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func NewCachedCases(store CaseStore, client *goredis.Client, ttl time.Duration, logger *slog.Logger) *CachedCases {
	return &CachedCases{CaseStore: store, client: client, ttl: ttl, logger: logger}
}

func cacheKey(accidentID string) string {
	return "sos:case:" + accidentID
}

func genKey(accidentID string) string {
	return "sos:case:" + accidentID + ":gen"
}

func (c *CachedCases) Get(ctx context.Context, accidentID string) (*domain.CaseRecord, error) {
	gen, fill := "0", true
	vals, err := c.client.MGet(ctx, cacheKey(accidentID), genKey(accidentID)).Result()
	switch {
	case err != nil:
		fill = false
		c.logger.Warn("case cache read failed", slog.String("accident_id", accidentID), slog.Any("error", err))
	case len(vals) == 2:
		if data, ok := vals[0].(string); ok {
			var rec domain.CaseRecord
			if err := json.Unmarshal([]byte(data), &rec); err == nil {
				return &rec, nil
			}
		}
		if g, ok := vals[1].(string); ok {
			gen = g
		}
	}

	rec, err := c.CaseStore.Get(ctx, accidentID)
	if err != nil {
		return nil, err
	}
	if fill {
		c.fill(ctx, rec, gen)
	}
	return rec, nil
}

func (c *CachedCases) Update(ctx context.Context, rec *domain.CaseRecord, expected domain.CaseStatus) error {
	c.invalidate(ctx, rec.AccidentID)
	if err := c.CaseStore.Update(ctx, rec, expected); err != nil {
		return err
	}
	c.invalidate(ctx, rec.AccidentID)
	return nil
}

func (c *CachedCases) Delete(ctx context.Context, accidentID string, expected domain.CaseStatus) error {
	if err := c.CaseStore.Delete(ctx, accidentID, expected); err != nil {
		return err
	}
	c.invalidate(ctx, accidentID)
	return nil
}

func (c *CachedCases) fill(ctx context.Context, rec *domain.CaseRecord, gen string) {
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	keys := []string{cacheKey(rec.AccidentID), genKey(rec.AccidentID)}
	if err := fillScript.Run(ctx, c.client, keys, gen, b, c.ttl.Milliseconds()).Err(); err != nil {
		c.logger.Warn("case cache write failed", slog.String("accident_id", rec.AccidentID), slog.Any("error", err))
	}
}

func (c *CachedCases) invalidate(ctx context.Context, accidentID string) {
	// The generation outlives any entry filled under it.
	genTTL := 2 * c.ttl
	if genTTL < time.Minute {
		genTTL = time.Minute
	}
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, cacheKey(accidentID))
		pipe.Incr(ctx, genKey(accidentID))
		pipe.PExpire(ctx, genKey(accidentID), genTTL)
		return nil
	})
	if err != nil {
		c.logger.Warn("case cache invalidate failed", slog.String("accident_id", accidentID), slog.Any("error", err))
	}
}
