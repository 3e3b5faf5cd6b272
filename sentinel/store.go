package sentinel

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Account is the read-only account snapshot §6.1 requires the state
// database to serve.
type Account struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash common.Hash
}

// Store is the read-only state-database capability consumed from the
// node layer (§6.1). It is keyed by (block_hash, address) and never
// mutated by Sentinel; DeepAnalyzer replays strictly against the
// parent state of the target transaction (§3.2 invariant).
type Store interface {
	// HeaderByHash loads a block header, used by the Replay Engine to
	// find the parent block.
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)

	// AccountAt loads the account snapshot for addr as of blockHash.
	AccountAt(ctx context.Context, blockHash common.Hash, addr common.Address) (Account, error)

	// StorageAt loads one storage slot for addr as of blockHash.
	StorageAt(ctx context.Context, blockHash common.Hash, addr common.Address, slot common.Hash) (common.Hash, error)

	// CodeAt loads the deployed code for addr as of blockHash.
	CodeAt(ctx context.Context, blockHash common.Hash, addr common.Address) ([]byte, error)
}

// StepRecord is captured per opcode during replay (§3.1).
type StepRecord struct {
	PC           uint64
	Opcode       byte
	OpcodeName   string
	Depth        int
	GasRemaining uint64
	StackTopN    []common.Hash // bounded to a small fixed window, deepest-first
	MemorySize   uint64
	CodeAddress  common.Address

	// Enrichments, populated only for the opcodes that produce them.
	CallValue     *uint256.Int // CALL/CREATE
	LogTopics     []common.Hash // LOG0-4, up to 4 topics
	LogData       []byte
	StorageSlot   *common.Hash // SSTORE
	StorageOld    *common.Hash
	StorageNew    *common.Hash
}

// ReplayResult is the output of the Replay Engine: the full step
// sequence captured while executing the target transaction, plus the
// receipt produced so PreFilter-derived context (gas used, success) can
// be cross-checked.
type ReplayResult struct {
	TxHash  common.Hash
	Steps   []StepRecord
	Success bool
	GasUsed uint64
}

// StepRecorder receives one callback per executed opcode. It is the
// narrow interface the node-supplied interpreter drives; Sentinel never
// implements or forks an interpreter itself (§1 Out of scope). An
// implementation is expected to bound memory by capping retained
// StackTopN entries and by stopping after AnalysisConfig.MaxSteps.
type StepRecorder interface {
	OnStep(step StepRecord)
}

// ExecutionResult is what the node's interpreter returns for one
// transaction execution, mirroring the fields the Replay Engine needs
// out of a geth core.ExecutionResult without binding to its exact type
// (which changes across go-ethereum releases).
type ExecutionResult struct {
	Success bool
	GasUsed uint64
	Logs    []*types.Log
}

// StateOverlay accumulates the effects of transactions replayed ahead
// of the target transaction (§4.4 step 2), so that each subsequent
// TxExecutor Apply or Replay call observes their results without touching persistent
// storage. The concrete overlay is owned by the TxExecutor
// implementation; Sentinel only threads the opaque handle through.
type StateOverlay interface {
	// Discard releases the overlay without persisting anything,
	// satisfying the "read-only with respect to persistent storage"
	// guarantee of §4.4.
	Discard()
}

// TxExecutor is the narrow capability boundary around the node's EVM
// interpreter (§1 Out of scope: "EVM interpreter internals... consumed
// only through narrow interfaces"). The Replay Engine uses it both to
// apply preceding transactions to a StateOverlay and to execute the
// target transaction with a StepRecorder attached. Implementations are
// expected to be deterministic: identical (parent, overlay, tx) inputs
// must yield identical StepRecorder callbacks (§3.2, §8.2).
type TxExecutor interface {
	// NewOverlay opens a state view bound to parent's post-state,
	// ready to receive sequentially-applied transactions.
	NewOverlay(ctx context.Context, store Store, parent *types.Header) (StateOverlay, error)

	// Apply executes tx against overlay and folds its effects into the
	// overlay, without attaching any recorder. Used for the
	// transactions preceding the replay target.
	Apply(ctx context.Context, overlay StateOverlay, header *types.Header, tx *types.Transaction) (*ExecutionResult, error)

	// Replay executes tx against overlay with rec attached, capturing
	// every opcode step. Used for the replay target itself.
	Replay(ctx context.Context, overlay StateOverlay, header *types.Header, tx *types.Transaction, rec StepRecorder, maxSteps uint32) (*ExecutionResult, error)
}
