package core

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress validates a hex ethereum address and returns its
// lower-cased 0x form.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	hasPrefix := strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X")
	if !hasPrefix || !common.IsHexAddress(address) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}

