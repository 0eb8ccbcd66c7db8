package blockchain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/stroller-protocol/custos/internal/models"
)

// StrollManagerABI is the read-only subset of the StrollManager contract.
const StrollManagerABI = `[{"inputs":[{"internalType":"bytes32","name":"_index","type":"bytes32"}],"name":"getTopUpByIndex","outputs":[{"internalType":"address","name":"user","type":"address"},{"internalType":"address","name":"superToken","type":"address"},{"internalType":"address","name":"liquidityToken","type":"address"},{"internalType":"uint256","name":"expiry","type":"uint256"},{"internalType":"uint256","name":"time","type":"uint256"},{"internalType":"uint256","name":"lowerLimit","type":"uint256"},{"internalType":"uint256","name":"upperLimit","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"minLower","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

const (
	getTopUpByIndex = "getTopUpByIndex"
	minLower        = "minLower"
)

// address is satisfied by the address types of both chain libraries.
type address interface {
	Hex() string
	Bytes() []byte
}

// ParseIndex decodes a hex encoded bytes32 top-up index.
func ParseIndex(index string) ([32]byte, error) {
	var out [32]byte
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(index), "0x"), "0X")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return out, fmt.Errorf("%w: top-up index is not hex: %v", models.ErrInvalidInput, err)
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("%w: top-up index must be 32 bytes, got %d", models.ErrInvalidInput, len(b))
	}
	copy(out[:], b)
	return out, nil
}

func decodeTopUpStatus(results []interface{}) (*models.TopUpStatus, error) {
	if len(results) != 7 {
		return nil, fmt.Errorf("unexpected number of results: %d", len(results))
	}
	var addrs [3]address
	for i := range addrs {
		a, ok := results[i].(address)
		if !ok {
			return nil, fmt.Errorf("unexpected type %T for result %d", results[i], i)
		}
		addrs[i] = a
	}
	var ints [4]*big.Int
	for i := range ints {
		v, ok := results[3+i].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected type %T for result %d", results[3+i], 3+i)
		}
		ints[i] = v
	}
	return &models.TopUpStatus{
		User:           addrs[0].Hex(),
		SuperToken:     addrs[1].Hex(),
		LiquidityToken: addrs[2].Hex(),
		Expiry:         ints[0],
		Time:           ints[1],
		LowerLimit:     ints[2],
		UpperLimit:     ints[3],
		Exists:         !isZero(addrs[0].Bytes()),
	}, nil
}

func decodeUint(results []interface{}) (*big.Int, error) {
	if len(results) != 1 {
		return nil, fmt.Errorf("unexpected number of results: %d", len(results))
	}
	v, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", results[0])
	}
	return v, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
