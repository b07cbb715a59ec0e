package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema. Balances are prefix-scannable per asset so the
// whole ledger can be reloaded on startup with two range scans.

const (
	prefixBalBase  = "bal:base:"
	prefixBalQuote = "bal:quote:"
)

// balanceKey returns the key for one account's balance of one asset.
// Format: "bal:{asset}:{address}"
func balanceKey(asset Asset, addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", balancePrefix(asset), addr.Hex()))
}

func balancePrefix(asset Asset) string {
	if asset == AssetBase {
		return prefixBalBase
	}
	return prefixBalQuote
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// addrFromKey strips the prefix and parses the address portion.
func addrFromKey(key []byte, prefix string) (common.Address, error) {
	if len(key) < len(prefix)+42 { // 42 = "0x" + 40 hex chars
		return common.Address{}, fmt.Errorf("invalid balance key length: %d", len(key))
	}
	addrHex := string(key[len(prefix):])
	if !common.IsHexAddress(addrHex) {
		return common.Address{}, fmt.Errorf("invalid address in key: %s", addrHex)
	}
	return common.HexToAddress(addrHex), nil
}
