package custos

import (
	"context"
	"errors"
	"fmt"

	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/pkg/validation"
)

const (
	LabelTopUpExpired = "topup-expired"
	LabelTopUpMissing = "topup-missing"
)

// CheckWallet queries the on-chain state of every top-up of the wallet.
// Watchers are notified when a top-up turns expired or missing. Unless
// configured otherwise the check stops at the first failing top-up.
func (c *Custos) CheckWallet(ctx context.Context, address string) ([]models.CheckResult, error) {
	_, results, err := c.checkWallet(ctx, address)
	return results, err
}

func (c *Custos) checkWallet(ctx context.Context, address string) (*models.Wallet, []models.CheckResult, error) {
	address = validation.CanonicalAddress(address)
	wallet, err := c.repo.FindWallet(ctx, address)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil, models.ErrWalletNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	c.logger.Debug("Checking wallet", "address", address, "topUps", len(wallet.TopUps))

	results := make([]models.CheckResult, 0, len(wallet.TopUps))
	var failures []error
	probed := make(map[int64]bool)
	for _, topUp := range wallet.TopUps {
		result := c.checkTopUp(ctx, topUp, probed)
		results = append(results, result)

		if !result.OK() {
			c.metrics.RuleCheck("error")
			c.logger.Error("Error while getting top-up by index", "address", address, "index", topUp.Index, "netId", topUp.NetID, "error", result.Err)
			failures = append(failures, fmt.Errorf("top-up %s on network %d: %w", topUp.Index, topUp.NetID, result.Err))
			if c.config.RulesStopOnFirstFailure {
				break
			}
			continue
		}

		c.metrics.RuleCheck(string(result.State))
		c.logger.Debug("Top-up checked", "address", address, "index", topUp.Index, "state", result.State)
		if c.transitioned(topUp.ID, result.State) {
			c.notifyState(ctx, address, topUp, result.State)
		}
	}

	if len(failures) > 0 {
		return wallet, results, errors.Join(failures...)
	}
	return wallet, results, nil
}

func (c *Custos) checkTopUp(ctx context.Context, topUp models.TopUp, probed map[int64]bool) models.CheckResult {
	result := models.CheckResult{Index: topUp.Index, NetID: topUp.NetID}

	chain, err := c.chains.For(topUp.NetID)
	if err != nil {
		result.Err = err
		return result
	}

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	if !probed[topUp.NetID] {
		probed[topUp.NetID] = true
		if minLower, err := chain.MinLower(callCtx); err != nil {
			c.logger.Debug("Failed to read minLower", "netId", topUp.NetID, "error", err)
		} else {
			c.logger.Debug("minLower", "netId", topUp.NetID, "value", minLower.String())
		}
	}

	status, err := chain.GetTopUpByIndex(callCtx, topUp.Index)
	if err != nil {
		result.Err = err
		return result
	}

	result.Status = status
	result.State = status.State(c.now())
	return result
}

// transitioned records the state and reports whether it is a new
// non-active state for the top-up.
func (c *Custos) transitioned(topUpID string, state models.TopUpState) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	previous, seen := c.lastState[topUpID]
	c.lastState[topUpID] = state
	if state == models.TopUpActive {
		return false
	}
	return !seen || previous != state
}

func (c *Custos) forgetState(topUpID string) {
	c.stateMu.Lock()
	delete(c.lastState, topUpID)
	c.stateMu.Unlock()
}

func (c *Custos) trackedTopUps() map[string]bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	ids := make(map[string]bool, len(c.lastState))
	for id := range c.lastState {
		ids[id] = true
	}
	return ids
}

// pruneState drops the remembered state of the given top-ups unless they
// are still live.
func (c *Custos) pruneState(tracked, live map[string]bool) int {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	pruned := 0
	for id := range tracked {
		if !live[id] {
			delete(c.lastState, id)
			pruned++
		}
	}
	return pruned
}

func (c *Custos) notifyState(ctx context.Context, address string, topUp models.TopUp, state models.TopUpState) {
	if c.notificator == nil {
		return
	}

	var label, message string
	switch state {
	case models.TopUpExpired:
		label = LabelTopUpExpired
		message = fmt.Sprintf("Top-up %s of %s on network %d has expired.", topUp.Index, address, topUp.NetID)
	case models.TopUpMissing:
		label = LabelTopUpMissing
		message = fmt.Sprintf("Top-up %s of %s on network %d was not found on chain.", topUp.Index, address, topUp.NetID)
	default:
		return
	}

	if err := c.notificator.NotifyWallet(ctx, address, label, message); err != nil {
		c.logger.Warn("Failed to notify watchers", "address", address, "label", label, "error", err)
	}
}
