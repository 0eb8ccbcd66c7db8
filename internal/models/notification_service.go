package models

import "context"

// Messenger delivers a text message to a subscriber of one channel.
type Messenger interface {
	Send(ctx context.Context, subscriberID, text string) error
}

// NotificationService fans a message out to every watcher of a wallet.
type NotificationService interface {
	NotifyWallet(ctx context.Context, address, label, message string) error
}
