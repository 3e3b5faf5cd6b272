package sentinel

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BlockObserver is the capability boundary between the node's block
// pipeline and Sentinel (§5.1): the node calls OnBlockCommitted once
// per imported block with its header, transactions and receipts, never
// blocking on Sentinel's own processing.
type BlockObserver interface {
	OnBlockCommitted(header *types.Header, txs []*types.Transaction, receipts []*types.Receipt)
}

// MempoolObserver is the equivalent boundary for pending transactions
// (§5.1, §4.3): the node calls OnMempoolTransaction as transactions
// enter the local mempool, passing the transaction plus its sender and
// hash per §6.1's mempool add hook contract.
type MempoolObserver interface {
	OnMempoolTransaction(tx *types.Transaction, sender common.Address, hash common.Hash)
}

// BlockCommitted and MempoolTransaction are the two inbound message
// shapes the worker loop consumes (§4.10); Shutdown is a zero-value
// sentinel signaling a clean stop.
type blockCommittedMsg struct {
	Header   *types.Header
	Txs      []*types.Transaction
	Receipts []*types.Receipt
}

type mempoolTxMsg struct {
	Alert MempoolAlert
}

// workMsg is the tagged union pushed through SentinelService's internal
// channel; exactly one field is non-nil (or shutdown is true).
type workMsg struct {
	block    *blockCommittedMsg
	mempool  *mempoolTxMsg
	shutdown bool
}
