package custos

import (
	"context"
	"errors"
	"strings"

	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/pkg/validation"
)

// Watch subscribes the watcher identified by (channel, subscriberID) to
// the wallet. The wallet must already have a top-up. Watching a wallet
// twice keeps a single subscription.
func (c *Custos) Watch(ctx context.Context, channel models.Channel, subscriberID, address string) error {
	if !channel.Valid() || strings.TrimSpace(subscriberID) == "" {
		return models.ErrInvalidInput
	}
	address = validation.CanonicalAddress(address)

	exists, err := c.repo.WalletExists(ctx, address)
	if err != nil {
		return err
	}
	if !exists {
		return models.ErrWalletNotFound
	}

	watcher, err := c.resolveWatcher(ctx, channel, subscriberID)
	if err != nil {
		return err
	}
	if err := c.repo.AppendWatcherToWallet(ctx, address, watcher.ID); err != nil {
		return err
	}

	c.logger.Info("Watcher added", "address", address, "watcher", watcher.String())
	return nil
}

// resolveWatcher returns the watcher of the subscriber, creating it on
// first use.
func (c *Custos) resolveWatcher(ctx context.Context, channel models.Channel, subscriberID string) (*models.Watcher, error) {
	watcher, err := c.repo.FindWatcher(ctx, channel, subscriberID)
	if err == nil {
		return watcher, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	watcher, err = c.repo.CreateWatcher(ctx, channel, subscriberID)
	if errors.Is(err, models.ErrAlreadyExists) {
		// Lost the creation race; the stored watcher wins.
		return c.repo.FindWatcher(ctx, channel, subscriberID)
	}
	return watcher, err
}

// Unwatch removes the subscription of the watcher to the wallet. The
// watcher record itself is kept.
func (c *Custos) Unwatch(ctx context.Context, channel models.Channel, subscriberID, address string) error {
	if !channel.Valid() || strings.TrimSpace(subscriberID) == "" {
		return models.ErrInvalidInput
	}
	address = validation.CanonicalAddress(address)

	exists, err := c.repo.WalletExists(ctx, address)
	if err != nil {
		return err
	}
	if !exists {
		return models.ErrWalletNotFound
	}

	watcher, err := c.repo.FindWatcher(ctx, channel, subscriberID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrNotAWatcher
	}
	if err != nil {
		return err
	}

	watching, err := c.repo.IsWatcherOfWallet(ctx, address, watcher.ID)
	if err != nil {
		return err
	}
	if !watching {
		return models.ErrNotWatchingThisWallet
	}

	if err := c.repo.RemoveWatcherFromWallet(ctx, address, watcher.ID); err != nil {
		return err
	}

	c.logger.Info("Watcher removed", "address", address, "watcher", watcher.String())
	return nil
}

// WalletWatchers lists the subscribers of the wallet.
func (c *Custos) WalletWatchers(ctx context.Context, address string) ([]models.Watcher, error) {
	wallet, err := c.repo.FindWallet(ctx, validation.CanonicalAddress(address))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return wallet.Watchers, nil
}
