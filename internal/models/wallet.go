package models

import "strings"

// Wallet represents a wallet in the system.
type Wallet struct {
	// Address is the chain address of the wallet, stored in canonical form.
	Address string `json:"address" gorm:"column:address;primaryKey"`
	// CreatedAt is the unix time of the first top-up registration.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;index"`
	// TopUps are the registered top-ups in registration order.
	TopUps []TopUp `json:"top_ups" gorm:"foreignKey:WalletAddress;references:Address;constraint:OnDelete:CASCADE"`
	// Watchers are the subscribers notified about this wallet.
	Watchers []Watcher `json:"watchers" gorm:"-"`
}

// TopUp is a funding registration queryable against the on-chain contract.
type TopUp struct {
	// ID is the storage identifier (uuid).
	ID string `json:"id" gorm:"column:id;primaryKey;size:36"`
	// WalletAddress is the owning wallet. It is nil until the top-up is linked.
	WalletAddress *string `json:"wallet_address,omitempty" gorm:"column:wallet_address;uniqueIndex:idx_top_up_identity"`
	// Index is the opaque top-up index understood by the contract.
	Index string `json:"index" gorm:"column:top_up_index;not null;uniqueIndex:idx_top_up_identity"`
	// NetID is the network the index belongs to.
	NetID int64 `json:"netId" gorm:"column:net_id;uniqueIndex:idx_top_up_identity"`
	// CreatedAt is in unix nanoseconds and orders top-ups inside a wallet.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;index"`
}

// Matches reports whether the top-up has the given identity.
func (t TopUp) Matches(index string, netID int64) bool {
	return t.Index == index && t.NetID == netID
}

// TopUpRequest is the payload of the top-up management API.
type TopUpRequest struct {
	Address string `json:"address" binding:"required"`
	Index   string `json:"index" binding:"required"`
	NetID   *int64 `json:"netId" binding:"required"`
}

// Validate checks that every field is present. Blank strings count as
// missing.
func (r TopUpRequest) Validate() error {
	if strings.TrimSpace(r.Address) == "" || strings.TrimSpace(r.Index) == "" || r.NetID == nil {
		return ErrInvalidInput
	}
	return nil
}
