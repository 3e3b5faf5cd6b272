package sentinel

import (
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// PreFilter is a stateless scanner over (Transaction, Receipt,
// BlockHeader) that produces a cheap suspicion score per transaction
// without ever replaying opcodes (§4.2). It never mutates its inputs
// and returns only owned verdicts (§3.2 invariant).
type PreFilter struct {
	cfg      SentinelConfig
	registry *Registry
	metrics  *Metrics
}

// NewPreFilter builds a PreFilter. metrics may be nil, in which case
// per-tx scan latency is not recorded.
func NewPreFilter(cfg SentinelConfig, registry *Registry, metrics *Metrics) *PreFilter {
	return &PreFilter{cfg: cfg, registry: registry, metrics: metrics}
}

// ScanBlock scans every transaction in a block and returns the
// suspicious ones, ordered by tx index (§5 ordering guarantee: "Alerts
// from a given block are dispatched in the order PreFilter produces
// suspicious TX, sorted by tx_index").
func (f *PreFilter) ScanBlock(header *types.Header, txs []*types.Transaction, receipts []*types.Receipt) []SuspiciousTx {
	var out []SuspiciousTx
	n := len(txs)
	if len(receipts) < n {
		n = len(receipts)
	}
	for i := 0; i < n; i++ {
		if v, ok := f.ScanTx(header, txs[i], receipts[i], i); ok {
			out = append(out, v)
		}
	}
	return out
}

// ScanTx evaluates the §4.2 heuristic table against one transaction and
// its receipt, returning a SuspiciousTx iff the summed score clears the
// Medium threshold (0.3).
func (f *PreFilter) ScanTx(header *types.Header, tx *types.Transaction, receipt *types.Receipt, txIndex int) (SuspiciousTx, bool) {
	if f.metrics != nil {
		start := time.Now()
		defer func() { f.metrics.PrefilterLatencyUs.Update(time.Since(start).Microseconds()) }()
	}

	var score float64
	var reasons []SuspicionReason

	erc20Transfers := 0
	touchesKnown := false
	touchesOracle := false
	touchesDEX := false
	selfDestruct := false

	for _, lg := range receipt.Logs {
		if len(lg.Topics) == 0 {
			continue
		}
		sel := topicToSelector(lg.Topics[0])
		if provider, ok := f.registry.FlashLoanProvider(sel); ok {
			score += 0.4
			reasons = append(reasons, SuspicionReason{Kind: ReasonFlashLoanSignature, Score: 0.4, Provider: provider})
		}
		if lg.Topics[0] == ERC20TransferTopic {
			erc20Transfers++
		}
		if f.registry.IsKnownDeFi(lg.Address) {
			touchesKnown = true
		}
		if f.registry.IsKnownOracle(lg.Address) {
			touchesOracle = true
		}
		if f.registry.IsKnownDEX(lg.Address) {
			touchesDEX = true
		}
	}
	if tx.To() != nil && f.registry.IsKnownDeFi(*tx.To()) {
		touchesKnown = true
	}

	// Heuristic #2: reverted + high gas + (high value OR large ERC-20 transfer)
	reverted := receipt.Status == types.ReceiptStatusFailed
	value, _ := uint256.FromBig(tx.Value())
	hasLargeTransfer := erc20Transfers > 0
	if reverted && receipt.GasUsed > f.cfg.MinGasUsed && (value.Cmp(f.cfg.MinValueWei) >= 0 || hasLargeTransfer) {
		score += 0.3
		reasons = append(reasons, SuspicionReason{Kind: ReasonHighGasWithRevert, Score: 0.3, Gas: receipt.GasUsed})
	}

	// Heuristic #3: ERC-20 transfer count
	minTransfers := int(f.cfg.MinErc20Transfers)
	if erc20Transfers >= minTransfers && erc20Transfers <= minTransfers*2 {
		score += 0.2
		reasons = append(reasons, SuspicionReason{Kind: ReasonMultipleErc20Transfers, Score: 0.2, N: uint32(erc20Transfers)})
	} else if erc20Transfers > minTransfers*2 {
		score += 0.4
		reasons = append(reasons, SuspicionReason{Kind: ReasonMultipleErc20Transfers, Score: 0.4, N: uint32(erc20Transfers)})
	}

	// Heuristic #4: known-address amplifier
	if touchesKnown {
		score += 0.1
		reasons = append(reasons, SuspicionReason{Kind: ReasonKnownExploitSelector, Score: 0.1})
	}

	// Heuristic #1's high-value companion, also covered directly here
	// per §3.1's HighValueTransfer reason: a plain high-value transfer
	// on its own is recorded as evidence even without a flash-loan log.
	if value.Cmp(f.cfg.MinValueWei) >= 0 {
		reasons = append(reasons, SuspicionReason{Kind: ReasonHighValueTransfer, Score: 0, Value: value})
	}

	// Heuristic #5: tight gas budgeting — ratio of gas used to the
	// transaction's own declared gas limit, not the block's (a tx using
	// over 95% of its own budget, the default GasRatioThreshold, is
	// notable; the same usage is noise against a ~30M block limit).
	if tx.Gas() > 0 {
		ratio := float64(receipt.GasUsed) / float64(tx.Gas())
		if ratio > f.cfg.GasRatioThreshold && receipt.GasUsed > 500_000 {
			score += 0.15
			reasons = append(reasons, SuspicionReason{Kind: ReasonUnusualCallDepth, Score: 0.15})
		}
	}

	// Heuristic #6: self-destruct indicator. go-ethereum does not emit a
	// dedicated log for SELFDESTRUCT, and code emptying is not visible at
	// the receipt level, so this heuristic is approximated by a large log
	// count alone (more than 20 logs).
	if len(receipt.Logs) > 20 {
		selfDestruct = true
		score += 0.3
		reasons = append(reasons, SuspicionReason{Kind: ReasonSelfDestruct, Score: 0.3})
	}
	_ = selfDestruct

	// Heuristic #3 companion: raw large log count.
	if len(receipt.Logs) > 10 {
		reasons = append(reasons, SuspicionReason{Kind: ReasonLargeLogCount, Score: 0, N: uint32(len(receipt.Logs))})
	}

	// Heuristic #7: single TX touches both a known oracle and a known DEX.
	if touchesOracle && touchesDEX {
		score += 0.2
		reasons = append(reasons, SuspicionReason{Kind: ReasonPriceOracleInteraction, Score: 0.2})
	}

	priority := PriorityForScore(score)
	if priority == PriorityNone {
		return SuspiciousTx{}, false
	}
	return SuspiciousTx{
		TxHash:         tx.Hash(),
		TxIndex:        txIndex,
		SuspicionScore: score,
		Reasons:        reasons,
		Priority:       priority,
	}, true
}
