package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stroller-protocol/custos/internal/models"
)

func TestMemoryWalletUniqueness(t *testing.T) {
	db := NewMemoryDB()
	ctx := context.Background()

	if _, err := db.CreateWallet(ctx, "0xabc"); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if _, err := db.CreateWallet(ctx, "0xabc"); !errors.Is(err, models.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := db.FindWallet(ctx, "0xdef"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryTopUpLinking(t *testing.T) {
	db := NewMemoryDB()
	ctx := context.Background()

	if _, err := db.CreateWallet(ctx, "0xabc"); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	first := &models.TopUp{Index: "i1", NetID: 1}
	second := &models.TopUp{Index: "i2", NetID: 1}
	for _, topUp := range []*models.TopUp{first, second} {
		if err := db.AddTopUp(ctx, topUp); err != nil {
			t.Fatalf("add top-up: %v", err)
		}
		if err := db.AppendTopUpToWallet(ctx, "0xabc", topUp.ID); err != nil {
			t.Fatalf("append top-up: %v", err)
		}
	}

	wallet, err := db.FindWallet(ctx, "0xabc")
	if err != nil {
		t.Fatalf("find wallet: %v", err)
	}
	if len(wallet.TopUps) != 2 || wallet.TopUps[0].Index != "i1" || wallet.TopUps[1].Index != "i2" {
		t.Fatalf("unexpected top-ups %+v", wallet.TopUps)
	}
	if wallet.TopUps[0].WalletAddress == nil || *wallet.TopUps[0].WalletAddress != "0xabc" {
		t.Fatalf("expected top-up to be linked to the wallet")
	}

	if _, err := db.FindWalletTopUp(ctx, "0xabc", "i2", 2); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected network mismatch to miss, got %v", err)
	}

	if err := db.RemoveTopUpFromWallet(ctx, "0xabc", first.ID); err != nil {
		t.Fatalf("remove top-up: %v", err)
	}
	if err := db.DeleteTopUp(ctx, first.ID); err != nil {
		t.Fatalf("delete top-up: %v", err)
	}
	if err := db.DeleteTopUp(ctx, first.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := db.FindTopUp(ctx, "i1", nil); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected deleted top-up to be gone, got %v", err)
	}
}

func TestMemoryWatcherSetSemantics(t *testing.T) {
	db := NewMemoryDB()
	ctx := context.Background()

	if _, err := db.CreateWallet(ctx, "0xabc"); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	watcher, err := db.CreateWatcher(ctx, models.ChannelTelegram, "42")
	if err != nil {
		t.Fatalf("create watcher: %v", err)
	}
	if _, err := db.CreateWatcher(ctx, models.ChannelTelegram, "42"); !errors.Is(err, models.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := db.AppendWatcherToWallet(ctx, "0xabc", watcher.ID); err != nil {
			t.Fatalf("append watcher: %v", err)
		}
	}
	wallet, err := db.FindWallet(ctx, "0xabc")
	if err != nil {
		t.Fatalf("find wallet: %v", err)
	}
	if len(wallet.Watchers) != 1 {
		t.Fatalf("expected one watcher link, got %d", len(wallet.Watchers))
	}

	ok, err := db.IsWatcherOfWallet(ctx, "0xabc", watcher.ID)
	if err != nil || !ok {
		t.Fatalf("expected watcher of wallet, got %v %v", ok, err)
	}
	if err := db.RemoveWatcherFromWallet(ctx, "0xabc", watcher.ID); err != nil {
		t.Fatalf("remove watcher: %v", err)
	}
	ok, _ = db.IsWatcherOfWallet(ctx, "0xabc", watcher.ID)
	if ok {
		t.Fatalf("expected watcher to be removed")
	}
	exists, _ := db.WatcherExists(ctx, models.ChannelTelegram, "42")
	if !exists {
		t.Fatalf("watcher record must survive unlinking")
	}
}

func TestMemoryWithTxRollsBack(t *testing.T) {
	db := NewMemoryDB()
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(ctx context.Context, repo models.Repository) error {
		if err := repo.AddTopUp(ctx, &models.TopUp{Index: "i1", NetID: 1}); err != nil {
			return err
		}
		if _, err := repo.CreateWallet(ctx, "0xabc"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if db.CountTopUps() != 0 {
		t.Fatalf("expected rollback of the top-up")
	}
	if exists, _ := db.WalletExists(ctx, "0xabc"); exists {
		t.Fatalf("expected rollback of the wallet")
	}
}

func TestMemoryRollbackKeepsConcurrentWrites(t *testing.T) {
	db := NewMemoryDB()
	ctx := context.Background()
	if _, err := db.CreateWallet(ctx, "0xabc"); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	boom := errors.New("boom")

	started := make(chan struct{})
	done := make(chan error, 1)
	err := db.WithTx(ctx, func(ctx context.Context, repo models.Repository) error {
		go func() {
			close(started)
			watcher, err := db.CreateWatcher(ctx, models.ChannelTelegram, "42")
			if err != nil {
				done <- err
				return
			}
			done <- db.AppendWatcherToWallet(ctx, "0xabc", watcher.ID)
		}()
		<-started
		if err := repo.AddTopUp(ctx, &models.TopUp{Index: "i1", NetID: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("concurrent write: %v", err)
	}

	if db.CountTopUps() != 0 {
		t.Fatalf("expected rollback of the top-up")
	}
	if db.CountWatchers() != 1 {
		t.Fatalf("expected the concurrent watcher to survive the rollback, got %d", db.CountWatchers())
	}
	wallet, err := db.FindWallet(ctx, "0xabc")
	if err != nil || len(wallet.Watchers) != 1 {
		t.Fatalf("expected watcher link to survive, got %+v %v", wallet, err)
	}
}
