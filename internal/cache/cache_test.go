package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := New[string, int](0)
	if _, ok := c.Get("a"); ok {
		t.Fatal("empty cache should miss")
	}
	c.Set("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("got (%d,%v) want (1,true)", v, ok)
	}
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted key should miss")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New[string, int](time.Minute)
	base := time.Unix(1000, 0)
	c.now = func() time.Time { return base }
	c.Set("a", 1)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("fresh entry should hit")
	}
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := c.Get("a"); ok {
		t.Fatal("expired entry should miss")
	}
}

func TestGetOrLoad(t *testing.T) {
	c := New[string, int](0)
	calls := 0
	load := func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}
	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(context.Background(), "k", load)
		if err != nil || v != 42 {
			t.Fatalf("got (%d,%v) want (42,nil)", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("loader called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	_, err := c.GetOrLoad(context.Background(), "other", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
	if _, ok := c.Get("other"); ok {
		t.Fatal("failed load must not be cached")
	}
}
