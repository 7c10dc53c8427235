package events

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func withTxHash(attrs map[string]string, hash common.Hash) {
	if hash != (common.Hash{}) {
		attrs["txHash"] = hash.Hex()
	}
}
