package notificator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/stroller-protocol/custos/internal/metrics"
	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/internal/repository"
	"github.com/stroller-protocol/custos/pkg/logger"
)

type fakeMessenger struct {
	mu    sync.Mutex
	sent  map[string][]string
	fail  map[string]error
	panic bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{sent: map[string][]string{}, fail: map[string]error{}}
}

func (f *fakeMessenger) Send(_ context.Context, subscriberID, text string) error {
	if f.panic {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[subscriberID]; err != nil {
		return err
	}
	f.sent[subscriberID] = append(f.sent[subscriberID], text)
	return nil
}

func watchedWallet(t *testing.T, repo *repository.MemoryDB, address string, subscribers ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := repo.CreateWallet(ctx, address); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	for _, sub := range subscribers {
		w, err := repo.FindWatcher(ctx, models.ChannelTelegram, sub)
		if errors.Is(err, models.ErrNotFound) {
			w, err = repo.CreateWatcher(ctx, models.ChannelTelegram, sub)
		}
		if err != nil {
			t.Fatalf("watcher: %v", err)
		}
		if err := repo.AppendWatcherToWallet(ctx, address, w.ID); err != nil {
			t.Fatalf("link watcher: %v", err)
		}
	}
}

func TestNotifyWalletFansOut(t *testing.T) {
	repo := repository.NewMemoryDB()
	watchedWallet(t, repo, "0xa", "1", "2")
	watchedWallet(t, repo, "0xb", "3")

	messenger := newFakeMessenger()
	m := metrics.New()
	n := NewNotificator(logger.NewNop(), repo, m)
	n.Register(models.ChannelTelegram, messenger)

	if err := n.NotifyWallet(context.Background(), "0xa", "topup-expired", "expired"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(messenger.sent["1"]) != 1 || len(messenger.sent["2"]) != 1 || len(messenger.sent["3"]) != 0 {
		t.Fatalf("unexpected deliveries: %+v", messenger.sent)
	}
	log := repo.Notifications("0xa")
	if len(log) != 1 || log[0].Label != "topup-expired" || log[0].Message != "expired" {
		t.Fatalf("unexpected notification log: %+v", log)
	}
	if got := testutil.ToFloat64(m.Notifications.WithLabelValues("telegram", "sent")); got != 2 {
		t.Fatalf("expected 2 sent, got %v", got)
	}
}

func TestNotifyWalletReportsDeliveryFailures(t *testing.T) {
	repo := repository.NewMemoryDB()
	watchedWallet(t, repo, "0xa", "1", "2")

	messenger := newFakeMessenger()
	messenger.fail["1"] = errors.New("chat not found")
	n := NewNotificator(logger.NewNop(), repo, nil)
	n.Register(models.ChannelTelegram, messenger)

	err := n.NotifyWallet(context.Background(), "0xa", "l", "m")
	if !errors.Is(err, models.ErrDelivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if len(messenger.sent["2"]) != 1 {
		t.Fatal("remaining watchers must still be notified")
	}
	if len(repo.Notifications("0xa")) != 1 {
		t.Fatal("notification must be logged")
	}
}

func TestNotifyUnknownWallet(t *testing.T) {
	n := NewNotificator(logger.NewNop(), repository.NewMemoryDB(), nil)
	if err := n.NotifyWallet(context.Background(), "0xnone", "l", "m"); !errors.Is(err, models.ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

func TestSendRecoversFromPanic(t *testing.T) {
	messenger := newFakeMessenger()
	messenger.panic = true
	n := NewNotificator(logger.NewNop(), repository.NewMemoryDB(), nil)
	n.Register(models.ChannelTelegram, messenger)

	if err := n.Send(context.Background(), models.ChannelTelegram, "1", "hi"); !errors.Is(err, models.ErrDelivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}
}

func TestSendWithoutMessenger(t *testing.T) {
	n := NewNotificator(logger.NewNop(), repository.NewMemoryDB(), nil)
	if err := n.Send(context.Background(), models.ChannelTelegram, "1", "hi"); !errors.Is(err, models.ErrDelivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}
}
