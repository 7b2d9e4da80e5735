package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"reviewcamp/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator issues human readable reference codes. Codes are unique per
// prefix and day; ids remain snowflakes.
type Generator interface {
	NextCampaignCode(ctx context.Context) (string, error)
	NextInvoiceNo(ctx context.Context) (string, error)
	NextWithdrawalCode(ctx context.Context) (string, error)
}

const (
	PrefixCampaign   = "CMP"
	PrefixInvoice    = "INV"
	PrefixWithdrawal = "WDR"
)

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextCampaignCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, PrefixCampaign)
}

func (g *RedisGenerator) NextInvoiceNo(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, PrefixInvoice)
}

func (g *RedisGenerator) NextWithdrawalCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, PrefixWithdrawal)
}

func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix string) (string, error) {
	now := time.Now().UTC()
	today := now.Format("060102")
	key := rediskey.BuildSequenceKey(prefix, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		expire := time.Until(now.Truncate(24 * time.Hour).Add(48 * time.Hour))
		_ = g.rdb.Expire(ctx, key, expire).Err()
	}

	return format(prefix, today, seq)
}

func format(prefix, day string, seq int64) (string, error) {
	encodedSeq := strings.ToUpper(fmt.Sprintf("%03s", strconv.FormatInt(seq, 36)))

	randSuffix, err := randomAlphaNumeric(2)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s%s", prefix, day, encodedSeq, randSuffix), nil
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}

// MemoryGenerator keeps counters in process. It backs tests and single
// instance development setups without redis.
type MemoryGenerator struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryGenerator() *MemoryGenerator {
	return &MemoryGenerator{counters: map[string]int64{}}
}

func (g *MemoryGenerator) next(prefix string) (string, error) {
	today := time.Now().UTC().Format("060102")

	g.mu.Lock()
	g.counters[prefix+today]++
	seq := g.counters[prefix+today]
	g.mu.Unlock()

	return format(prefix, today, seq)
}

func (g *MemoryGenerator) NextCampaignCode(ctx context.Context) (string, error) {
	return g.next(PrefixCampaign)
}

func (g *MemoryGenerator) NextInvoiceNo(ctx context.Context) (string, error) {
	return g.next(PrefixInvoice)
}

func (g *MemoryGenerator) NextWithdrawalCode(ctx context.Context) (string, error) {
	return g.next(PrefixWithdrawal)
}
