package custos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/pkg/validation"
)

// errDuplicateTopUp rolls back a write that lost a race against an
// identical top-up.
var errDuplicateTopUp = errors.New("duplicate top-up")

// AddTopUp registers a top-up for the wallet and creates the wallet on its
// first top-up. Registering an existing (index, netId) pair again is a
// successful no-op and reports false.
func (c *Custos) AddTopUp(ctx context.Context, req models.TopUpRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		c.metrics.TopUp("add", "invalid")
		return false, err
	}
	address := validation.CanonicalAddress(req.Address)
	index := strings.TrimSpace(req.Index)

	created, err := c.addTopUp(ctx, address, index, *req.NetID)
	if errors.Is(err, models.ErrAlreadyExists) {
		// Another request created the wallet first.
		c.logger.Debug("Wallet created concurrently, retrying", "address", address)
		created, err = c.addTopUp(ctx, address, index, *req.NetID)
	}

	switch {
	case err != nil:
		c.metrics.TopUp("add", "error")
		c.logger.Error("Failed to add top-up", "address", address, "index", index, "netId", *req.NetID, "error", err)
	case created:
		c.metrics.TopUp("add", "created")
		c.logger.Info("Added a new top-up", "address", address, "index", index, "netId", *req.NetID)
	default:
		c.metrics.TopUp("add", "duplicate")
		c.logger.Info("Top-up already exists", "address", address, "index", index, "netId", *req.NetID)
	}
	return created, err
}

func (c *Custos) addTopUp(ctx context.Context, address, index string, netID int64) (bool, error) {
	exists, err := c.repo.WalletExists(ctx, address)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAppendTopUp, err)
	}
	if !exists {
		return true, c.createWalletWithTopUp(ctx, address, index, netID)
	}

	if _, err := c.repo.FindWalletTopUp(ctx, address, index, netID); err == nil {
		return false, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return false, fmt.Errorf("%w: %w", ErrAppendTopUp, err)
	}

	err = c.repo.WithTx(ctx, func(ctx context.Context, repo models.Repository) error {
		topUp := &models.TopUp{Index: index, NetID: netID}
		if err := repo.AddTopUp(ctx, topUp); err != nil {
			return err
		}
		if err := repo.AppendTopUpToWallet(ctx, address, topUp.ID); err != nil {
			// Needed for stores running without transactions.
			_ = repo.DeleteTopUp(ctx, topUp.ID)
			if errors.Is(err, models.ErrAlreadyExists) {
				return errDuplicateTopUp
			}
			return err
		}
		return nil
	})
	if errors.Is(err, errDuplicateTopUp) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAppendTopUp, err)
	}
	return true, nil
}

// createWalletWithTopUp stores the top-up before the wallet that references
// it. A wallet that already exists surfaces as models.ErrAlreadyExists.
func (c *Custos) createWalletWithTopUp(ctx context.Context, address, index string, netID int64) error {
	err := c.repo.WithTx(ctx, func(ctx context.Context, repo models.Repository) error {
		topUp := &models.TopUp{Index: index, NetID: netID}
		if err := repo.AddTopUp(ctx, topUp); err != nil {
			return err
		}
		if _, err := repo.CreateWallet(ctx, address); err != nil {
			// Needed for stores running without transactions.
			_ = repo.DeleteTopUp(ctx, topUp.ID)
			return err
		}
		return repo.AppendTopUpToWallet(ctx, address, topUp.ID)
	})
	if err == nil || errors.Is(err, models.ErrAlreadyExists) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCreateWallet, err)
}

// DeleteTopUp removes the wallet's top-up with the given (index, netId)
// together with its reference from the wallet.
func (c *Custos) DeleteTopUp(ctx context.Context, req models.TopUpRequest) error {
	if err := req.Validate(); err != nil {
		c.metrics.TopUp("delete", "invalid")
		return err
	}
	address := validation.CanonicalAddress(req.Address)
	index := strings.TrimSpace(req.Index)

	err := c.deleteTopUp(ctx, address, index, *req.NetID)
	switch {
	case errors.Is(err, models.ErrWalletNotFound), errors.Is(err, models.ErrTopUpNotFound):
		c.metrics.TopUp("delete", "not_found")
		c.logger.Info("Top-up not deleted", "address", address, "index", index, "netId", *req.NetID, "reason", err)
	case err != nil:
		c.metrics.TopUp("delete", "error")
		c.logger.Error("Failed to delete top-up", "address", address, "index", index, "error", err)
	default:
		c.metrics.TopUp("delete", "deleted")
		c.logger.Info("Top-up deleted", "address", address, "index", index, "netId", *req.NetID)
	}
	return err
}

func (c *Custos) deleteTopUp(ctx context.Context, address, index string, netID int64) error {
	exists, err := c.repo.WalletExists(ctx, address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoveTopUp, err)
	}
	if !exists {
		return models.ErrWalletNotFound
	}

	topUp, err := c.repo.FindWalletTopUp(ctx, address, index, netID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrTopUpNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoveTopUp, err)
	}

	err = c.repo.WithTx(ctx, func(ctx context.Context, repo models.Repository) error {
		if err := repo.RemoveTopUpFromWallet(ctx, address, topUp.ID); err != nil {
			return err
		}
		return repo.DeleteTopUp(ctx, topUp.ID)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoveTopUp, err)
	}

	c.forgetState(topUp.ID)
	return nil
}
