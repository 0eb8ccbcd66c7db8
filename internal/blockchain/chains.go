package blockchain

import (
	"fmt"
	"sort"

	"github.com/stroller-protocol/custos/internal/models"
)

// Chains routes a network id to the backend serving it.
type Chains struct {
	backends map[int64]models.BlockchainService
}

func NewChains(backends ...models.BlockchainService) *Chains {
	c := &Chains{backends: make(map[int64]models.BlockchainService, len(backends))}
	for _, b := range backends {
		c.backends[b.NetworkID()] = b
	}
	return c
}

// For returns the backend of the given network.
func (c *Chains) For(netID int64) (models.BlockchainService, error) {
	b, ok := c.backends[netID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrUnsupportedNetwork, netID)
	}
	return b, nil
}

// NetworkIDs lists the configured networks in ascending order.
func (c *Chains) NetworkIDs() []int64 {
	ids := make([]int64, 0, len(c.backends))
	for id := range c.backends {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
