package sentinel

import (
	"context"
	"errors"
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const stackTopWindow = 4 // bounded stack-top capture window per StepRecord (§3.1)

// replayCacheBytes sizes the fastcache instance backing ReplayEngine's
// result cache. 32 MiB comfortably holds several thousand trimmed
// ReplayResults without needing its own eviction bookkeeping.
const replayCacheBytes = 32 * 1024 * 1024

// ReplayEngine reconstructs the pre-transaction state and drives the
// node's interpreter (via TxExecutor) to capture an opcode-level trace
// of one target transaction (§4.4).
type ReplayEngine struct {
	store    Store
	executor TxExecutor
	cache    *fastcache.Cache
}

// NewReplayEngine builds a Replay Engine bound to a state store and the
// node-supplied executor capability.
func NewReplayEngine(store Store, executor TxExecutor) *ReplayEngine {
	return &ReplayEngine{
		store:    store,
		executor: executor,
		cache:    fastcache.New(replayCacheBytes),
	}
}

// boundedRecorder caps retained steps at maxSteps and trims each
// StackTopN to stackTopWindow entries, bounding per-transaction memory
// regardless of how deep a pathological trace goes.
type boundedRecorder struct {
	steps    []StepRecord
	maxSteps uint32
}

func newBoundedRecorder(maxSteps uint32) *boundedRecorder {
	return &boundedRecorder{maxSteps: maxSteps}
}

func (r *boundedRecorder) OnStep(step StepRecord) {
	if uint32(len(r.steps)) >= r.maxSteps {
		return
	}
	if len(step.StackTopN) > stackTopWindow {
		step.StackTopN = step.StackTopN[:stackTopWindow]
	}
	r.steps = append(r.steps, step)
}

// Replay reconstructs the parent state of block at txIndex and executes
// that transaction with a recorder attached, per §4.4's algorithm:
//  1. load the parent header
//  2. sequentially apply the preceding transactions to an overlay
//  3. attach a recorder and execute the target transaction
//
// A *SentinelError wrapping ErrStateMissing is returned if the parent
// state has been pruned, and ErrReplayFailure on any interpreter error;
// both are treated by callers as "analysis skipped", never fatal
// (§4.4 Failure modes).
func (e *ReplayEngine) Replay(ctx context.Context, parentHash common.Hash, header *types.Header, txs []*types.Transaction, targetIndex int, cfg AnalysisConfig) (*ReplayResult, error) {
	if targetIndex < 0 || targetIndex >= len(txs) {
		return nil, newErr(ErrReplayFailure, fmt.Errorf("tx index %d out of range (%d txs)", targetIndex, len(txs)))
	}
	target := txs[targetIndex]

	if cached, ok := e.lookupCache(target.Hash()); ok {
		return cached, nil
	}

	parent, err := e.store.HeaderByHash(ctx, parentHash)
	if err != nil {
		return nil, newErr(ErrStateMissing, err)
	}

	overlay, err := e.executor.NewOverlay(ctx, e.store, parent)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newErr(ErrPipelineTimeout, err)
		}
		return nil, newErr(ErrStateMissing, err)
	}
	defer overlay.Discard()

	for i := 0; i < targetIndex; i++ {
		if _, err := e.executor.Apply(ctx, overlay, header, txs[i]); err != nil {
			return nil, newErr(ErrReplayFailure, fmt.Errorf("applying preceding tx %d: %w", i, err))
		}
	}

	rec := newBoundedRecorder(cfg.MaxSteps)
	result, err := e.executor.Replay(ctx, overlay, header, target, rec, cfg.MaxSteps)
	if err != nil {
		return nil, newErr(ErrReplayFailure, err)
	}

	rr := &ReplayResult{
		TxHash:  target.Hash(),
		Steps:   rec.steps,
		Success: result.Success,
		GasUsed: result.GasUsed,
	}
	e.storeCache(rr)
	return rr, nil
}

// lookupCache returns a cached ReplayResult for txHash if the pipeline
// re-added the TraceAnalyzer step (AddSteps semantics, §4.7) and it has
// already replayed this transaction once this process's lifetime.
func (e *ReplayEngine) lookupCache(txHash common.Hash) (*ReplayResult, bool) {
	raw, ok := e.cache.HasGet(nil, txHash[:])
	if !ok {
		return nil, false
	}
	rr, err := decodeReplayResult(raw)
	if err != nil {
		return nil, false
	}
	return rr, true
}

func (e *ReplayEngine) storeCache(rr *ReplayResult) {
	raw, err := encodeReplayResult(rr)
	if err != nil {
		return
	}
	e.cache.Set(rr.TxHash[:], raw)
}
