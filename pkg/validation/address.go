package validation

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	corecommon "github.com/core-coin/go-core/v2/common"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrEmptyAddress   = errors.New("address cannot be empty")
	ErrInvalidAddress = errors.New("invalid address")
)

// coreAddressLength is the hex length of a Core (ICAN) address without 0x.
const coreAddressLength = 44

// ValidateAddress validates a blockchain address format. Both EVM
// (20 byte, EIP-55) and Core (22 byte, ICAN) addresses are accepted.
func ValidateAddress(addr string) error {
	_, err := NormalizeAddress(addr)
	return err
}

// NormalizeAddress returns the canonical checksum form of a valid address.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", ErrEmptyAddress
	}

	if common.IsHexAddress(addr) {
		canonical := common.HexToAddress(addr).Hex()
		// Mixed case input carries an EIP-55 checksum which must match.
		if hasMixedCase(addr) && strip0x(canonical) != strip0x(addr) {
			return "", fmt.Errorf("%w: bad checksum", ErrInvalidAddress)
		}
		return canonical, nil
	}

	normalized := strip0x(addr)
	if len(normalized) != coreAddressLength {
		return "", fmt.Errorf("%w: unexpected length %d", ErrInvalidAddress, len(normalized))
	}
	if _, err := hex.DecodeString(normalized); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	coreAddr, err := corecommon.HexToAddress(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return coreAddr.Hex(), nil
}

// CanonicalAddress returns the checksum form of addr when it is a valid
// chain address and the trimmed input otherwise. Storage keys go through
// this so that the API and the bot agree on the wallet identity.
func CanonicalAddress(addr string) string {
	if normalized, err := NormalizeAddress(addr); err == nil {
		return normalized
	}
	return strings.TrimSpace(addr)
}

func strip0x(addr string) string {
	addr = strings.TrimPrefix(addr, "0x")
	return strings.TrimPrefix(addr, "0X")
}

func hasMixedCase(addr string) bool {
	body := strip0x(addr)
	return strings.ToLower(body) != body && strings.ToUpper(body) != body
}
