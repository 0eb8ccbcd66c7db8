package models

import (
	"context"
	"math/big"
	"time"
)

// BlockchainService reads top-up state from the StrollManager contract of
// a single network.
type BlockchainService interface {
	NetworkID() int64
	GetTopUpByIndex(ctx context.Context, index string) (*TopUpStatus, error)
	MinLower(ctx context.Context) (*big.Int, error)
}

// TopUpState is the outcome of checking a single top-up.
type TopUpState string

const (
	TopUpActive  TopUpState = "active"
	TopUpExpired TopUpState = "expired"
	TopUpMissing TopUpState = "missing"
)

// TopUpStatus is the on-chain view of a top-up.
type TopUpStatus struct {
	User           string   `json:"user"`
	SuperToken     string   `json:"super_token"`
	LiquidityToken string   `json:"liquidity_token"`
	Expiry         *big.Int `json:"expiry"`
	Time           *big.Int `json:"time"`
	LowerLimit     *big.Int `json:"lower_limit"`
	UpperLimit     *big.Int `json:"upper_limit"`
	// Exists is false when the contract returned an empty record.
	Exists bool `json:"exists"`
}

// State evaluates the status at the given moment.
func (s *TopUpStatus) State(now time.Time) TopUpState {
	if s == nil || !s.Exists {
		return TopUpMissing
	}
	if s.Expiry != nil && s.Expiry.Sign() > 0 && s.Expiry.Cmp(big.NewInt(now.Unix())) < 0 {
		return TopUpExpired
	}
	return TopUpActive
}

// CheckResult is the per top-up outcome of a rules check.
type CheckResult struct {
	Index  string       `json:"index"`
	NetID  int64        `json:"netId"`
	State  TopUpState   `json:"state,omitempty"`
	Status *TopUpStatus `json:"status,omitempty"`
	Err    error        `json:"-"`
}

// OK reports whether the top-up could be checked.
func (r CheckResult) OK() bool {
	return r.Err == nil
}
