package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/pkg/logger"
)

// EVM reads the StrollManager contract on an Ethereum compatible network.
type EVM struct {
	logger          *logger.Logger
	apiURL          string
	networkID       int64
	contractAddress string

	client   *ethclient.Client
	contract *bind.BoundContract
}

// NewEVM creates a new EVM instance. Run must be called before use.
func NewEVM(apiURL, contractAddress string, networkID int64, logger *logger.Logger) *EVM {
	return &EVM{
		apiURL:          apiURL,
		contractAddress: contractAddress,
		networkID:       networkID,
		logger:          logger.With("network", networkID),
	}
}

func (e *EVM) Run(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, e.apiURL)
	if err != nil {
		return fmt.Errorf("failed to connect to the RPC server: %w", err)
	}
	e.client = client

	chainID, err := client.ChainID(ctx)
	if err != nil {
		e.logger.Warn("Failed to read chain id", "error", err)
	} else if chainID.Cmp(big.NewInt(e.networkID)) != 0 {
		e.logger.Warn("RPC chain id differs from configured network id", "chain_id", chainID)
	}

	return e.BuildBindings()
}

func (e *EVM) BuildBindings() error {
	if !common.IsHexAddress(e.contractAddress) {
		return fmt.Errorf("failed to parse StrollManager contract address %q", e.contractAddress)
	}
	parsedABI, err := abi.JSON(strings.NewReader(StrollManagerABI))
	if err != nil {
		return fmt.Errorf("failed to parse StrollManager ABI: %w", err)
	}
	e.contract = bind.NewBoundContract(common.HexToAddress(e.contractAddress), parsedABI, e.client, e.client, e.client)
	return nil
}

func (e *EVM) NetworkID() int64 {
	return e.networkID
}

func (e *EVM) GetTopUpByIndex(ctx context.Context, index string) (*models.TopUpStatus, error) {
	idx, err := ParseIndex(index)
	if err != nil {
		return nil, err
	}
	results := []interface{}{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &results, getTopUpByIndex, idx); err != nil {
		return nil, fmt.Errorf("failed to get top-up by index: %w: %w", models.ErrUpstream, err)
	}
	return decodeTopUpStatus(results)
}

func (e *EVM) MinLower(ctx context.Context) (*big.Int, error) {
	results := []interface{}{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &results, minLower); err != nil {
		return nil, fmt.Errorf("failed to get minLower: %w: %w", models.ErrUpstream, err)
	}
	return decodeUint(results)
}

func (e *EVM) Close() error {
	if e.client != nil {
		e.client.Close()
	}
	return nil
}
