package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kirillkom/bookshelf-aibot/internal/config"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/cache/memcache"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/cache/rediscache"
)

func TestNewCacheUsesMemoryWithoutRedis(t *testing.T) {
	cache, closeFn := newCache(context.Background(), config.Config{CacheTTLSeconds: 60})
	defer closeFn()
	if _, ok := cache.(*memcache.Cache); !ok {
		t.Fatalf("expected in-memory cache, got %T", cache)
	}
}

func TestNewCacheUsesRedisWhenReachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, closeFn := newCache(context.Background(), config.Config{RedisAddr: mr.Addr(), CacheTTLSeconds: 60})
	defer closeFn()
	if _, ok := cache.(*rediscache.Cache); !ok {
		t.Fatalf("expected redis cache, got %T", cache)
	}
}

func TestNewCacheFallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cache, closeFn := newCache(context.Background(), config.Config{RedisAddr: addr, CacheTTLSeconds: 60})
	defer closeFn()
	if _, ok := cache.(*memcache.Cache); !ok {
		t.Fatalf("expected in-memory fallback, got %T", cache)
	}
}

func TestNewCoreWiresUseCases(t *testing.T) {
	cfg := config.Config{
		LLMBaseURL:       "http://127.0.0.1:1/v1",
		LLMModel:         "test-model",
		WebSearchURL:     "http://127.0.0.1:1/search",
		BookSearchURL:    "http://127.0.0.1:1",
		CacheTTLSeconds:  60,
		RetryMaxAttempts: 1,
		UploadMaxBytes:   1 << 20,
		UploadMaxRunes:   1000,
	}
	core, closeFn, err := NewCore(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewCore() error = %v", err)
	}
	defer closeFn()

	if core.Chat == nil || core.DeepSearch == nil || core.Documents == nil || core.Books == nil ||
		core.Interpretation == nil || core.Classifier == nil || core.Upload == nil {
		t.Fatalf("expected every use case to be wired, got %+v", core)
	}
}

func TestNewCoreRejectsBadPlainTextPattern(t *testing.T) {
	cfg := config.Config{
		BookSearchURL:         "http://127.0.0.1:1",
		BookPlainTextTemplate: "([",
		CacheTTLSeconds:       60,
	}
	if _, _, err := NewCore(context.Background(), cfg, nil, nil); err == nil {
		t.Fatalf("expected invalid plain-text pattern to fail")
	}
}

func TestNewExecutorAppliesAttemptTimeout(t *testing.T) {
	executor := newExecutor(config.Config{RetryMaxAttempts: 1}, 10*time.Millisecond, nil)
	err := executor.Execute(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	if err == nil {
		t.Fatalf("expected attempt timeout error")
	}
}
