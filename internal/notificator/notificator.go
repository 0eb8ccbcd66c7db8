package notificator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/stroller-protocol/custos/internal/metrics"
	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/pkg/logger"
)

// Notificator delivers messages through the messenger of each channel and
// keeps the notification log of a wallet.
type Notificator struct {
	logger  *logger.Logger
	db      models.Repository
	metrics *metrics.Metrics

	mu         sync.RWMutex
	messengers map[models.Channel]models.Messenger
}

func NewNotificator(logger *logger.Logger, db models.Repository, metrics *metrics.Metrics) *Notificator {
	return &Notificator{
		logger:     logger,
		db:         db,
		metrics:    metrics,
		messengers: make(map[models.Channel]models.Messenger),
	}
}

var _ models.NotificationService = (*Notificator)(nil)

// Register sets the messenger used for channel.
func (n *Notificator) Register(channel models.Channel, messenger models.Messenger) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messengers[channel] = messenger
}

func (n *Notificator) messenger(channel models.Channel) (models.Messenger, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m, ok := n.messengers[channel]
	return m, ok
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func() error, context string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("panic in %s: %v", context, r)
		}
	}()
	return fn()
}

// Send delivers text to a single subscriber of channel.
func (n *Notificator) Send(ctx context.Context, channel models.Channel, subscriberID, text string) error {
	m, ok := n.messenger(channel)
	if !ok {
		n.metrics.Notification(string(channel), "unsupported")
		return fmt.Errorf("%w: no messenger for channel %s", models.ErrDelivery, channel)
	}

	err := n.safeCall(func() error { return m.Send(ctx, subscriberID, text) }, string(channel)+"Notification")
	if err != nil {
		n.metrics.Notification(string(channel), "error")
		if errors.Is(err, models.ErrDelivery) {
			return err
		}
		return fmt.Errorf("%w: %w", models.ErrDelivery, err)
	}
	n.metrics.Notification(string(channel), "sent")
	return nil
}

// NotifyWallet sends message to every watcher of the wallet and appends it
// to the wallet's notification log. Delivery is best effort: every watcher
// is tried and the failures are returned together.
func (n *Notificator) NotifyWallet(ctx context.Context, address, label, message string) error {
	wallet, err := n.db.FindWallet(ctx, address)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrWalletNotFound
	}
	if err != nil {
		return err
	}

	var failures []error
	for _, watcher := range wallet.Watchers {
		if err := n.Send(ctx, watcher.Channel, watcher.SubscriberID, message); err != nil {
			n.logger.Warn("Failed to send notification", "address", address, "watcher", watcher.String(), "error", err)
			failures = append(failures, err)
		}
	}

	if err := n.db.AddNotification(ctx, &models.Notification{
		WalletAddress: address,
		Message:       message,
		Label:         label,
		CreatedAt:     time.Now().Unix(),
	}); err != nil {
		n.logger.Error("Failed to store notification", "address", address, "label", label, "error", err)
	}

	n.logger.Info("Wallet notified", "address", address, "label", label, "watchers", len(wallet.Watchers), "failed", len(failures))
	return errors.Join(failures...)
}
