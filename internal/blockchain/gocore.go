package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/core-coin/go-core/v2/accounts/abi"
	"github.com/core-coin/go-core/v2/accounts/abi/bind"
	"github.com/core-coin/go-core/v2/common"
	"github.com/core-coin/go-core/v2/xcbclient"

	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/pkg/logger"
)

// Gocore reads the StrollManager contract deployed on the Core blockchain.
type Gocore struct {
	logger          *logger.Logger
	apiURL          string
	networkID       int64
	contractAddress string

	client   *xcbclient.Client
	contract *bind.BoundContract
}

// NewGocore creates a new Gocore instance.
func NewGocore(apiURL, contractAddress string, networkID int64, logger *logger.Logger) *Gocore {
	return &Gocore{
		apiURL:          apiURL,
		contractAddress: contractAddress,
		networkID:       networkID,
		logger:          logger.With("network", networkID),
	}
}

func (g *Gocore) Run() error {
	err := g.ConnectToRPC()
	if err != nil {
		return fmt.Errorf("failed to connect to the core RPC server: %w", err)
	}
	err = g.BuildBindings()
	if err != nil {
		return fmt.Errorf("failed to build bindings: %w", err)
	}
	return nil
}

func (g *Gocore) ConnectToRPC() error {
	client, err := xcbclient.Dial(g.apiURL)
	if err != nil {
		return fmt.Errorf("failed to connect to the core RPC server: %w", err)
	}
	g.client = client
	return nil
}

func (g *Gocore) BuildBindings() error {
	contractAddress, err := common.HexToAddress(g.contractAddress)
	if err != nil {
		return fmt.Errorf("failed to parse StrollManager contract address: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(StrollManagerABI))
	if err != nil {
		return fmt.Errorf("failed to parse StrollManager ABI: %w", err)
	}

	g.contract = bind.NewBoundContract(contractAddress, parsedABI, g.client, g.client, g.client)
	return nil
}

func (g *Gocore) NetworkID() int64 {
	return g.networkID
}

func (g *Gocore) GetTopUpByIndex(ctx context.Context, index string) (*models.TopUpStatus, error) {
	idx, err := ParseIndex(index)
	if err != nil {
		return nil, err
	}
	results := []interface{}{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx}, &results, getTopUpByIndex, idx); err != nil {
		return nil, fmt.Errorf("failed to get top-up by index: %w: %w", models.ErrUpstream, err)
	}
	return decodeTopUpStatus(results)
}

func (g *Gocore) MinLower(ctx context.Context) (*big.Int, error) {
	results := []interface{}{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx}, &results, minLower); err != nil {
		return nil, fmt.Errorf("failed to get minLower: %w: %w", models.ErrUpstream, err)
	}
	return decodeUint(results)
}

func (g *Gocore) Close() error {
	if g.client != nil {
		g.client.Close()
	}
	return nil
}
