package models

import "context"

// Repository persists wallets, top-ups, watchers and the notification log.
// Lookups return ErrNotFound when nothing matches and creations return
// ErrAlreadyExists when a uniqueness constraint is violated. Any other
// failure wraps ErrUpstream.
type Repository interface {
	WalletExists(ctx context.Context, address string) (bool, error)
	CreateWallet(ctx context.Context, address string) (*Wallet, error)
	// FindWallet returns the wallet with its top-ups (in registration
	// order) and watchers loaded.
	FindWallet(ctx context.Context, address string) (*Wallet, error)
	ListWalletAddresses(ctx context.Context) ([]string, error)

	// AddTopUp stores an unlinked top-up and assigns its ID.
	AddTopUp(ctx context.Context, topUp *TopUp) error
	// FindTopUp looks a top-up up by index, and by network when netID is set.
	FindTopUp(ctx context.Context, index string, netID *int64) (*TopUp, error)
	FindWalletTopUp(ctx context.Context, address, index string, netID int64) (*TopUp, error)
	DeleteTopUp(ctx context.Context, topUpID string) error
	AppendTopUpToWallet(ctx context.Context, address, topUpID string) error
	RemoveTopUpFromWallet(ctx context.Context, address, topUpID string) error

	WatcherExists(ctx context.Context, channel Channel, subscriberID string) (bool, error)
	FindWatcher(ctx context.Context, channel Channel, subscriberID string) (*Watcher, error)
	CreateWatcher(ctx context.Context, channel Channel, subscriberID string) (*Watcher, error)
	// AppendWatcherToWallet links the watcher to the wallet. Linking an
	// already linked watcher is a no-op.
	AppendWatcherToWallet(ctx context.Context, address, watcherID string) error
	RemoveWatcherFromWallet(ctx context.Context, address, watcherID string) error
	IsWatcherOfWallet(ctx context.Context, address, watcherID string) (bool, error)

	AddNotification(ctx context.Context, notification *Notification) error

	// WithTx runs fn against a transactional view of the repository. The
	// writes made through the view are committed only if fn returns nil.
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	Close() error
}
