package models

import "context"

// CustosI is the application surface used by the transports.
type CustosI interface {
	// AddTopUp registers a top-up, creating the wallet on first use. It
	// reports whether a new record was stored.
	AddTopUp(ctx context.Context, req TopUpRequest) (bool, error)
	// DeleteTopUp removes a top-up and its reference from the wallet.
	DeleteTopUp(ctx context.Context, req TopUpRequest) error

	// Watch subscribes the watcher to notifications about the wallet.
	Watch(ctx context.Context, channel Channel, subscriberID, address string) error
	// Unwatch removes the subscription.
	Unwatch(ctx context.Context, channel Channel, subscriberID, address string) error

	// CheckWallet cross-checks every top-up of the wallet against the chain.
	CheckWallet(ctx context.Context, address string) ([]CheckResult, error)
}
