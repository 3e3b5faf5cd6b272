package sentinel

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// MempoolConfig tunes MempoolPreFilter (§4.3, §6.4 [sentinel.mempool]).
type MempoolConfig struct {
	Enabled     bool
	MinValue    *uint256.Int
	MinGasLimit uint64
}

// DefaultMempoolConfig mirrors SentinelConfig's high-value threshold
// and a 500k gas-limit cutoff per §4.3 heuristic #3.
func DefaultMempoolConfig() MempoolConfig {
	return MempoolConfig{
		Enabled:     true,
		MinValue:    oneEther(),
		MinGasLimit: 500_000,
	}
}

const maxInitCodeSize = 10 * 1024 // heuristic #4 threshold (§4.3)

// MempoolPreFilter is an inline-only scanner over pending calldata and
// the transaction envelope (§4.3). It runs synchronously on the mempool
// hot path, so every heuristic here is O(1) in calldata size beyond a
// constant-size prefix read; it never recursively parses calldata
// (explicit policy for the multicall heuristic).
type MempoolPreFilter struct {
	cfg      MempoolConfig
	registry *Registry
}

func NewMempoolPreFilter(cfg MempoolConfig, registry *Registry) *MempoolPreFilter {
	return &MempoolPreFilter{cfg: cfg, registry: registry}
}

// Scan evaluates the §4.3 heuristics against one pending transaction.
// Callers must budget this call at well under 100µs; it performs no
// I/O and allocates only the result.
func (f *MempoolPreFilter) Scan(tx *types.Transaction, sender common.Address, hash common.Hash) (MempoolAlert, bool) {
	if !f.cfg.Enabled {
		return MempoolAlert{}, false
	}
	var reasons []MempoolSuspicionReason
	data := tx.Data()
	to := tx.To()

	// Heuristic #1: known flash-loan selector on calldata prefix.
	if len(data) >= 4 {
		var sel [4]byte
		copy(sel[:], data[:4])
		if _, ok := f.registry.FlashLoanProvider(sel); ok {
			reasons = append(reasons, MempoolSuspicionReason{Kind: MempoolReasonFlashLoanSelector, Selector: sel})
		}
		// Heuristic #5: multicall(bytes[]) targeting a known router.
		if sel == MulticallSelector && to != nil && f.registry.IsKnownDeFi(*to) {
			reasons = append(reasons, MempoolSuspicionReason{Kind: MempoolReasonMulticallToRouter, Selector: sel})
		}
	}

	value, _ := uint256.FromBig(tx.Value())

	// Heuristic #2: high value to a known DeFi contract.
	if to != nil && value.Cmp(f.cfg.MinValue) > 0 && f.registry.IsKnownDeFi(*to) {
		reasons = append(reasons, MempoolSuspicionReason{Kind: MempoolReasonHighValueToDeFi})
	}

	// Heuristic #3: high gas limit to a known DeFi protocol.
	if to != nil && tx.Gas() > f.cfg.MinGasLimit && f.registry.IsKnownDeFi(*to) {
		reasons = append(reasons, MempoolSuspicionReason{Kind: MempoolReasonHighGasToDeFi})
	}

	// Heuristic #4: contract creation with oversized init code.
	if to == nil && len(data) > maxInitCodeSize {
		reasons = append(reasons, MempoolSuspicionReason{Kind: MempoolReasonLargeInitCode, CodeSize: len(data)})
	}

	if len(reasons) == 0 {
		return MempoolAlert{}, false
	}
	return MempoolAlert{
		TxHash:     hash,
		From:       sender,
		To:         to,
		Value:      value,
		Reasons:    reasons,
		ObservedAt: time.Now(),
	}, true
}
