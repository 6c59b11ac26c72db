package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

type entry struct {
	Name  string `json:"name"`
	Cents int64  `json:"cents"`
}

// Runs against a real server when FINTRACK_TEST_REDIS_ADDR is set.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("FINTRACK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FINTRACK_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := Connect(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })

	c := NewRedisCache[entry](rdb, "fintrack-test-"+time.Now().Format("150405.000"), time.Minute)
	c.Set(ctx, "ada:summary", entry{Name: "Groceries", Cents: 1200})
	c.Set(ctx, "ada:series", entry{Name: "x"})
	c.Set(ctx, "bob:summary", entry{Name: "y"})

	got, ok := c.Get(ctx, "ada:summary")
	if !ok || got.Cents != 1200 {
		t.Fatalf("get: %+v %v", got, ok)
	}
	if n := c.DeletePrefix(ctx, "ada:"); n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	if _, ok := c.Get(ctx, "bob:summary"); !ok {
		t.Fatal("bob entry must survive")
	}
	c.Delete(ctx, "bob:summary")
}

func TestConnectWithoutAddr(t *testing.T) {
	rdb, err := Connect(context.Background(), "", "", 0)
	if rdb != nil || err != nil {
		t.Fatalf("expected nil client and nil error, got %v %v", rdb, err)
	}
}
