package models

import "fmt"

// Channel is a notification delivery medium a subscriber id is scoped to.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelTelegram}

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	for _, known := range Channels {
		if c == known {
			return true
		}
	}
	return false
}

// Watcher is a notification subscriber. One watcher exists per
// (channel, subscriber id) and is shared by every wallet it watches.
type Watcher struct {
	// ID is the storage identifier (uuid).
	ID string `json:"id" gorm:"column:id;primaryKey;size:36"`
	// Channel is the delivery medium, e.g. telegram.
	Channel Channel `json:"channel" gorm:"column:channel;not null;uniqueIndex:idx_watcher_identity"`
	// SubscriberID is the channel specific id, e.g. a telegram chat id.
	SubscriberID string `json:"subscriber_id" gorm:"column:subscriber_id;not null;uniqueIndex:idx_watcher_identity"`
	// CreatedAt is the unix time the watcher was first seen.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at"`
}

func (w Watcher) String() string {
	return fmt.Sprintf("%s:%s", w.Channel, w.SubscriberID)
}

// WalletWatcher links a watcher to a wallet. The pair is unique.
type WalletWatcher struct {
	WalletAddress string `gorm:"column:wallet_address;primaryKey"`
	WatcherID     string `gorm:"column:watcher_id;primaryKey;size:36"`
	CreatedAt     int64  `gorm:"column:created_at"`
}

// Notification is an entry of the log of messages sent about a wallet.
type Notification struct {
	// ID is the storage identifier (uuid).
	ID string `json:"id" gorm:"column:id;primaryKey;size:36"`
	// WalletAddress is the wallet the message was about.
	WalletAddress string `json:"wallet_address" gorm:"column:wallet_address;index"`
	Message       string `json:"message" gorm:"column:message;not null"`
	Label         string `json:"label" gorm:"column:label"`
	CreatedAt     int64  `json:"created_at" gorm:"column:created_at"`
}
