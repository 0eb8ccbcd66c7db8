package custos

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stroller-protocol/custos/internal/models"
)

func TestWatchRequiresWallet(t *testing.T) {
	f := newFixture(t)
	err := f.custos.Watch(context.Background(), models.ChannelTelegram, "42", "0xnew")
	if !errors.Is(err, models.ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
	if f.repo.CountWatchers() != 0 {
		t.Fatal("watch must not create a watcher for an unknown wallet")
	}
}

func TestWatcherIsReusedAcrossWallets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, address := range []string{"0xa", "0xb"} {
		if _, err := f.custos.AddTopUp(ctx, request(address, "i", 1)); err != nil {
			t.Fatalf("add top-up: %v", err)
		}
		if err := f.custos.Watch(ctx, models.ChannelTelegram, "42", address); err != nil {
			t.Fatalf("watch %s: %v", address, err)
		}
	}

	if f.repo.CountWatchers() != 1 {
		t.Fatalf("expected 1 watcher, got %d", f.repo.CountWatchers())
	}
	a, _ := f.custos.WalletWatchers(ctx, "0xa")
	b, _ := f.custos.WalletWatchers(ctx, "0xb")
	if len(a) != 1 || len(b) != 1 || a[0].ID != b[0].ID {
		t.Fatalf("expected the same watcher on both wallets, got %+v and %+v", a, b)
	}
}

func TestWatchTwiceKeepsOneSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.custos.AddTopUp(ctx, request("0xa", "i", 1)); err != nil {
		t.Fatalf("add top-up: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.custos.Watch(ctx, models.ChannelTelegram, "42", "0xa"); err != nil {
			t.Fatalf("watch: %v", err)
		}
	}
	watchers, _ := f.custos.WalletWatchers(ctx, "0xa")
	if len(watchers) != 1 {
		t.Fatalf("expected 1 watcher, got %d", len(watchers))
	}
}

func TestConcurrentWatchCreatesOneWatcher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.custos.AddTopUp(ctx, request("0xa", "i", 1)); err != nil {
		t.Fatalf("add top-up: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.custos.Watch(ctx, models.ChannelTelegram, "42", "0xa"); err != nil {
				t.Errorf("watch: %v", err)
			}
		}()
	}
	wg.Wait()

	if f.repo.CountWatchers() != 1 {
		t.Fatalf("expected 1 watcher, got %d", f.repo.CountWatchers())
	}
}

func TestUnwatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.custos.AddTopUp(ctx, request("0xa", "i", 1)); err != nil {
		t.Fatalf("add top-up: %v", err)
	}
	if err := f.custos.Watch(ctx, models.ChannelTelegram, "42", "0xa"); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := f.custos.Unwatch(ctx, models.ChannelTelegram, "42", "0xa"); err != nil {
		t.Fatalf("unwatch: %v", err)
	}

	watchers, _ := f.custos.WalletWatchers(ctx, "0xa")
	if len(watchers) != 0 {
		t.Fatalf("expected no watchers, got %+v", watchers)
	}
	// The watcher record survives.
	if f.repo.CountWatchers() != 1 {
		t.Fatalf("expected watcher to be kept, got %d", f.repo.CountWatchers())
	}
	if err := f.custos.Unwatch(ctx, models.ChannelTelegram, "42", "0xa"); !errors.Is(err, models.ErrNotWatchingThisWallet) {
		t.Fatalf("expected not watching, got %v", err)
	}
}

func TestUnwatchGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.custos.Unwatch(ctx, models.ChannelTelegram, "42", "0xnone"); !errors.Is(err, models.ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}

	for _, address := range []string{"0xa", "0xb"} {
		if _, err := f.custos.AddTopUp(ctx, request(address, "i", 1)); err != nil {
			t.Fatalf("add top-up: %v", err)
		}
	}
	if err := f.custos.Unwatch(ctx, models.ChannelTelegram, "42", "0xa"); !errors.Is(err, models.ErrNotAWatcher) {
		t.Fatalf("expected not a watcher, got %v", err)
	}

	if err := f.custos.Watch(ctx, models.ChannelTelegram, "42", "0xb"); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := f.custos.Unwatch(ctx, models.ChannelTelegram, "42", "0xa"); !errors.Is(err, models.ErrNotWatchingThisWallet) {
		t.Fatalf("expected not watching this wallet, got %v", err)
	}
}

func TestWatchRejectsUnknownChannel(t *testing.T) {
	f := newFixture(t)
	if err := f.custos.Watch(context.Background(), models.Channel("sms"), "42", "0xa"); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
