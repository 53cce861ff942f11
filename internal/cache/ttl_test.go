// Package cache 缓存测试
package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"hyperliquid-market-aggregator/internal/util/timeutil"
)

func TestTTL_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("有效期内 Set 后 Get 返回原值", prop.ForAll(
		func(key string, value int, ttlMs int, elapsedPct int) bool {
			clock := timeutil.NewManualClock(time.Unix(0, 0))
			c := New(WithClock(clock.Now))
			ttl := time.Duration(ttlMs) * time.Millisecond
			c.Set(key, value, ttl)
			clock.Advance(ttl * time.Duration(elapsedPct) / 100)
			got, ok := c.Get(key)
			return ok && got.(int) == value
		},
		gen.AlphaString(),
		gen.Int(),
		gen.IntRange(1, 60000),
		gen.IntRange(0, 100),
	))

	properties.Property("超过有效期的条目视为不存在", prop.ForAll(
		func(key string, ttlMs int, extraMs int) bool {
			clock := timeutil.NewManualClock(time.Unix(0, 0))
			c := New(WithClock(clock.Now))
			ttl := time.Duration(ttlMs) * time.Millisecond
			c.Set(key, "v", ttl)
			clock.Advance(ttl + time.Duration(extraMs)*time.Millisecond)
			_, ok := c.Get(key)
			return !ok && c.Stats().Entries == 1
		},
		gen.AlphaString(),
		gen.IntRange(0, 60000),
		gen.IntRange(1, 60000),
	))

	properties.TestingRun(t)
}

func TestTTL_SetOverwrites(t *testing.T) {
	clock := timeutil.NewManualClock(time.Unix(0, 0))
	c := New(WithClock(clock.Now))
	c.Set("ob:mainnet:BTC:50", 1, time.Second)
	clock.Advance(2 * time.Second)
	c.Set("ob:mainnet:BTC:50", 2, time.Second)
	v, ok := c.Get("ob:mainnet:BTC:50")
	if !ok || v.(int) != 2 {
		t.Fatalf("覆盖写入后应读到新值, got %v %v", v, ok)
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestTTL_GetOrLoad(t *testing.T) {
	clock := timeutil.NewManualClock(time.Unix(0, 0))
	c := New(WithClock(clock.Now))

	calls := 0
	load := func() (any, error) {
		calls++
		return calls, nil
	}

	v, cached, err := c.GetOrLoad("k", time.Second, load)
	if err != nil || cached || v.(int) != 1 {
		t.Fatalf("首次加载=%v,%v,%v", v, cached, err)
	}
	v, cached, _ = c.GetOrLoad("k", time.Second, load)
	if !cached || v.(int) != 1 || calls != 1 {
		t.Fatalf("有效期内应命中缓存")
	}
	clock.Advance(1500 * time.Millisecond)
	v, cached, _ = c.GetOrLoad("k", time.Second, load)
	if cached || v.(int) != 2 {
		t.Fatalf("过期后应重新加载")
	}

	boom := errors.New("boom")
	if _, _, err := c.GetOrLoad("bad", time.Second, func() (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("加载错误应原样返回: %v", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Fatalf("加载失败不应写入缓存")
	}
}

func TestTTL_GetOrLoadDeduplicates(t *testing.T) {
	c := New()
	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = c.GetOrLoad("ctxs:mainnet", time.Minute, func() (any, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return "ctxs", nil
			})
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("并发未命中应只加载一次, got %d", n)
	}
}

type countingObserver struct {
	hits, misses int
}

func (o *countingObserver) CacheHit(string)  { o.hits++ }
func (o *countingObserver) CacheMiss(string) { o.misses++ }

func TestTTL_Observer(t *testing.T) {
	o := &countingObserver{}
	c := New(WithObserver(o))
	c.Get("x")
	c.Set("x", 1, time.Minute)
	c.Get("x")
	if o.hits != 1 || o.misses != 1 {
		t.Fatalf("observer hits=%d misses=%d", o.hits, o.misses)
	}
}
