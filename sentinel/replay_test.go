package sentinel

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

type fakeOverlay struct{ discarded bool }

func (o *fakeOverlay) Discard() { o.discarded = true }

type fakeStore struct {
	headers map[common.Hash]*types.Header
}

func (s *fakeStore) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	h, ok := s.headers[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return h, nil
}
func (s *fakeStore) AccountAt(ctx context.Context, blockHash common.Hash, addr common.Address) (Account, error) {
	return Account{}, nil
}
func (s *fakeStore) StorageAt(ctx context.Context, blockHash common.Hash, addr common.Address, slot common.Hash) (common.Hash, error) {
	return common.Hash{}, nil
}
func (s *fakeStore) CodeAt(ctx context.Context, blockHash common.Hash, addr common.Address) ([]byte, error) {
	return nil, nil
}

type fakeExecutor struct {
	applyCalls  int
	replayCalls int
	applyErr    error
	replayErr   error
	steps       []StepRecord
}

func (e *fakeExecutor) NewOverlay(ctx context.Context, store Store, parent *types.Header) (StateOverlay, error) {
	return &fakeOverlay{}, nil
}

func (e *fakeExecutor) Apply(ctx context.Context, overlay StateOverlay, header *types.Header, tx *types.Transaction) (*ExecutionResult, error) {
	e.applyCalls++
	if e.applyErr != nil {
		return nil, e.applyErr
	}
	return &ExecutionResult{Success: true}, nil
}

func (e *fakeExecutor) Replay(ctx context.Context, overlay StateOverlay, header *types.Header, tx *types.Transaction, rec StepRecorder, maxSteps uint32) (*ExecutionResult, error) {
	e.replayCalls++
	if e.replayErr != nil {
		return nil, e.replayErr
	}
	for _, s := range e.steps {
		rec.OnStep(s)
	}
	return &ExecutionResult{Success: true, GasUsed: 21000}, nil
}

func testTxs(n int) []*types.Transaction {
	txs := make([]*types.Transaction, n)
	for i := range txs {
		txs[i] = types.NewTx(&types.LegacyTx{Nonce: uint64(i), Gas: 21000, GasPrice: big.NewInt(1)})
	}
	return txs
}

func TestReplayAppliesPrecedingTxsThenReplaysTarget(t *testing.T) {
	parentHash := common.HexToHash("0xparent")
	parent := &types.Header{Number: big.NewInt(9)}
	store := &fakeStore{headers: map[common.Hash]*types.Header{parentHash: parent}}
	exec := &fakeExecutor{steps: []StepRecord{{Opcode: opCALL}}}
	engine := NewReplayEngine(store, exec)

	txs := testTxs(3)
	header := &types.Header{Number: big.NewInt(10)}
	rr, err := engine.Replay(context.Background(), parentHash, header, txs, 2, DefaultAnalysisConfig())
	require.NoError(t, err)
	require.Equal(t, 2, exec.applyCalls, "must apply exactly the two preceding transactions")
	require.Equal(t, 1, exec.replayCalls)
	require.Equal(t, txs[2].Hash(), rr.TxHash)
	require.Len(t, rr.Steps, 1)
}

func TestReplayReturnsStateMissingWhenParentNotFound(t *testing.T) {
	store := &fakeStore{headers: map[common.Hash]*types.Header{}}
	exec := &fakeExecutor{}
	engine := NewReplayEngine(store, exec)

	_, err := engine.Replay(context.Background(), common.HexToHash("0xmissing"), &types.Header{Number: big.NewInt(1)}, testTxs(1), 0, DefaultAnalysisConfig())
	require.Error(t, err)
	var serr *SentinelError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, ErrStateMissing, serr.Kind)
}

func TestReplayRejectsOutOfRangeTargetIndex(t *testing.T) {
	store := &fakeStore{headers: map[common.Hash]*types.Header{}}
	exec := &fakeExecutor{}
	engine := NewReplayEngine(store, exec)

	_, err := engine.Replay(context.Background(), common.Hash{}, &types.Header{}, testTxs(2), 5, DefaultAnalysisConfig())
	require.Error(t, err)
	var serr *SentinelError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, ErrReplayFailure, serr.Kind)
}

func TestReplayWrapsApplyFailureAsReplayFailure(t *testing.T) {
	parentHash := common.HexToHash("0xparent")
	store := &fakeStore{headers: map[common.Hash]*types.Header{parentHash: {Number: big.NewInt(1)}}}
	exec := &fakeExecutor{applyErr: errors.New("boom")}
	engine := NewReplayEngine(store, exec)

	_, err := engine.Replay(context.Background(), parentHash, &types.Header{Number: big.NewInt(2)}, testTxs(2), 1, DefaultAnalysisConfig())
	require.Error(t, err)
	var serr *SentinelError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, ErrReplayFailure, serr.Kind)
}

func TestReplayCachesResultByTxHash(t *testing.T) {
	parentHash := common.HexToHash("0xparent")
	store := &fakeStore{headers: map[common.Hash]*types.Header{parentHash: {Number: big.NewInt(1)}}}
	exec := &fakeExecutor{steps: []StepRecord{{Opcode: opCALL}}}
	engine := NewReplayEngine(store, exec)

	txs := testTxs(1)
	header := &types.Header{Number: big.NewInt(2)}
	cfg := DefaultAnalysisConfig()

	_, err := engine.Replay(context.Background(), parentHash, header, txs, 0, cfg)
	require.NoError(t, err)
	_, err = engine.Replay(context.Background(), parentHash, header, txs, 0, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, exec.replayCalls, "second Replay of the same tx must hit the cache")
}

func TestBoundedRecorderCapsStepsAndStackWindow(t *testing.T) {
	rec := newBoundedRecorder(2)
	deep := make([]common.Hash, stackTopWindow+3)
	rec.OnStep(StepRecord{StackTopN: deep})
	rec.OnStep(StepRecord{})
	rec.OnStep(StepRecord{}) // exceeds maxSteps, dropped
	require.Len(t, rec.steps, 2)
	require.Len(t, rec.steps[0].StackTopN, stackTopWindow)
}
