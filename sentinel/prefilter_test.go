package sentinel

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func testHeader() *types.Header {
	return &types.Header{Number: big.NewInt(100), GasLimit: 30_000_000}
}

func legacyTx(gas uint64, value int64, data []byte) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    0,
		Gas:      gas,
		GasPrice: big.NewInt(1),
		Value:    big.NewInt(value),
		Data:     data,
	})
}

func TestScanTxGasRatioUsesTxOwnGasLimitNotBlockLimit(t *testing.T) {
	registry := NewRegistry(nil, nil, nil, nil)
	cfg := DefaultSentinelConfig()
	cfg.GasRatioThreshold = 0.95
	f := NewPreFilter(cfg, registry, nil)

	// 960k/1M gas used/limit clears the 0.95 ratio against the tx's own
	// gas limit; against the ~30M block limit the same usage would never
	// have crossed the threshold, which was the bug under review. A
	// reverted high-value companion heuristic pushes the total score
	// over the reporting threshold so the fix is observable via `flagged`.
	tx := legacyTx(1_000_000, 2_000_000_000_000_000_000, nil)
	receipt := &types.Receipt{Status: types.ReceiptStatusFailed, GasUsed: 960_000}

	sx, flagged := f.ScanTx(testHeader(), tx, receipt, 0)
	require.True(t, flagged)
	require.Contains(t, reasonKinds(sx.Reasons), ReasonUnusualCallDepth, "tight gas budgeting heuristic must fire off the tx's own gas limit")
}

func TestScanTxGasRatioDoesNotFireBelowThreshold(t *testing.T) {
	registry := NewRegistry(nil, nil, nil, nil)
	cfg := DefaultSentinelConfig()
	f := NewPreFilter(cfg, registry, nil)

	tx := legacyTx(1_000_000, 0, nil)
	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 600_000}

	_, flagged := f.ScanTx(testHeader(), tx, receipt, 0)
	require.False(t, flagged)
}

func TestScanTxRevertedHighGasUsesConfiguredMinGasUsed(t *testing.T) {
	registry := NewRegistry(nil, nil, nil, nil)
	cfg := DefaultSentinelConfig()
	cfg.MinGasUsed = 200_000
	cfg.MinValueWei = uint256.NewInt(0)
	f := NewPreFilter(cfg, registry, nil)

	to := common.HexToAddress("0xaaaa")
	tx := types.NewTx(&types.LegacyTx{Gas: 1_000_000, GasPrice: big.NewInt(1), To: &to, Value: big.NewInt(0)})

	// Below the configured floor: must not fire heuristic #2 even though
	// it would have with the old hardcoded 100_000 threshold.
	below := &types.Receipt{Status: types.ReceiptStatusFailed, GasUsed: 150_000}
	_, flagged := f.ScanTx(testHeader(), tx, below, 0)
	require.False(t, flagged, "gas used below the configured min_gas_used must not trigger heuristic #2")

	above := &types.Receipt{Status: types.ReceiptStatusFailed, GasUsed: 250_000}
	_, flagged = f.ScanTx(testHeader(), tx, above, 0)
	require.True(t, flagged, "gas used above the configured min_gas_used with a high-value companion must trigger heuristic #2")
}

func TestScanTxErc20TransferCountUsesConfiguredMinimum(t *testing.T) {
	registry := NewRegistry(nil, nil, nil, nil)
	cfg := DefaultSentinelConfig()
	cfg.MinErc20Transfers = 3 // lower than the default 5, so >6 transfers is the "large" band
	f := NewPreFilter(cfg, registry, nil)

	tx := legacyTx(21000, 0, nil)
	receipt := &types.Receipt{
		Status:  types.ReceiptStatusSuccessful,
		GasUsed: 21000,
		Logs:    erc20TransferLogs(7),
	}

	sx, flagged := f.ScanTx(testHeader(), tx, receipt, 0)
	require.True(t, flagged)
	require.Contains(t, reasonKinds(sx.Reasons), ReasonMultipleErc20Transfers)
}

func erc20TransferLogs(n int) []*types.Log {
	from := common.HexToHash("0x01")
	to := common.HexToHash("0x02")
	logs := make([]*types.Log, n)
	for i := range logs {
		logs[i] = &types.Log{Topics: []common.Hash{ERC20TransferTopic, from, to}}
	}
	return logs
}

func reasonKinds(reasons []SuspicionReason) []SuspicionReasonKind {
	kinds := make([]SuspicionReasonKind, len(reasons))
	for i, r := range reasons {
		kinds[i] = r.Kind
	}
	return kinds
}

func TestScanBlockOrdersSuspectsByTxIndex(t *testing.T) {
	registry := NewRegistry(nil, nil, nil, nil)
	cfg := DefaultSentinelConfig()
	cfg.MinErc20Transfers = 1
	f := NewPreFilter(cfg, registry, nil)

	txs := []*types.Transaction{legacyTx(21000, 0, nil), legacyTx(21000, 0, nil)}
	receipts := []*types.Receipt{
		{Status: types.ReceiptStatusSuccessful, Logs: erc20TransferLogs(3)},
		{Status: types.ReceiptStatusSuccessful, Logs: erc20TransferLogs(3)},
	}

	out := f.ScanBlock(testHeader(), txs, receipts)
	require.Len(t, out, 2)
	require.Equal(t, 0, out[0].TxIndex)
	require.Equal(t, 1, out[1].TxIndex)
}
