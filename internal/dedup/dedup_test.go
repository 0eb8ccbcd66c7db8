package dedup

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupGuard(t *testing.T) (*UpdateGuard, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewUpdateGuard(client, time.Minute), mr
}

func TestFirstSeesUpdateOnce(t *testing.T) {
	guard, _ := setupGuard(t)
	ctx := context.Background()

	first, err := guard.First(ctx, 7)
	if err != nil || !first {
		t.Fatalf("expected first delivery, got %v %v", first, err)
	}
	again, err := guard.First(ctx, 7)
	if err != nil || again {
		t.Fatalf("expected duplicate, got %v %v", again, err)
	}
	other, err := guard.First(ctx, 8)
	if err != nil || !other {
		t.Fatalf("expected a different update to pass, got %v %v", other, err)
	}
}

func TestFirstExpires(t *testing.T) {
	guard, mr := setupGuard(t)
	ctx := context.Background()

	if _, err := guard.First(ctx, 1); err != nil {
		t.Fatalf("first: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	first, err := guard.First(ctx, 1)
	if err != nil || !first {
		t.Fatalf("expected update to be accepted after ttl, got %v %v", first, err)
	}
}

func TestFirstStoreFailure(t *testing.T) {
	guard, mr := setupGuard(t)
	mr.Close()
	if _, err := guard.First(context.Background(), 1); err == nil {
		t.Fatal("expected an error when redis is down")
	}
}

func TestNilGuard(t *testing.T) {
	var guard *UpdateGuard
	first, err := guard.First(context.Background(), 1)
	if err != nil || !first {
		t.Fatalf("nil guard must accept, got %v %v", first, err)
	}
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	client.Close()

	if _, err := NewRedisClient(context.Background(), "://bad"); err == nil {
		t.Fatal("expected invalid url error")
	}
}
