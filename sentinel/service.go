package sentinel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// channelCapacity is the worker channel's suggested head-room (§5.4):
// roughly 16 blocks of backlog before back-pressure starts dropping the
// oldest queued work.
const channelCapacity = 16

// SentinelService owns the dedicated worker goroutine that consumes
// BlockCommitted/MempoolTransaction/Shutdown messages off a bounded
// channel (§3.3, §4.10). It is the non-blocking side of the
// BlockObserver/MempoolObserver boundary: On* methods never block the
// node's hot path, using try-send-with-drop-oldest semantics instead.
type SentinelService struct {
	prefilter *PreFilter
	mempool   *MempoolPreFilter
	analyzer  *DeepAnalyzer
	store     Store
	handler   AlertHandler
	pause     *PauseController
	metrics   *Metrics
	cfg       AnalysisConfig

	mu   sync.Mutex
	ch   chan workMsg
	done chan struct{}
	wg   sync.WaitGroup

	currentBlock uint64
}

// NewSentinelService wires the full pipeline described by §2's
// data/control-flow diagram: PreFilter -> DeepAnalyzer -> AlertHandler,
// plus the mempool fast path that skips straight to AlertHandler.
func NewSentinelService(prefilter *PreFilter, mempool *MempoolPreFilter, analyzer *DeepAnalyzer, store Store, handler AlertHandler, pause *PauseController, metrics *Metrics, cfg AnalysisConfig) *SentinelService {
	return &SentinelService{
		prefilter: prefilter,
		mempool:   mempool,
		analyzer:  analyzer,
		store:     store,
		handler:   handler,
		pause:     pause,
		metrics:   metrics,
		cfg:       cfg,
		ch:        make(chan workMsg, channelCapacity),
		done:      make(chan struct{}),
	}
}

// Start spawns the dedicated worker goroutine. Replay is a synchronous
// computation over a synchronous state view (§9's "Replay requires
// synchronous state access"); it runs on its own goroutine rather than
// a shared pool so a slow replay never starves unrelated work.
func (s *SentinelService) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop sends a Shutdown message and joins the worker, matching §3.3's
// "on drop sends Shutdown, then joins" lifecycle.
func (s *SentinelService) Stop() {
	select {
	case s.ch <- workMsg{shutdown: true}:
	case <-s.done:
	}
	s.wg.Wait()
}

// OnBlockCommitted implements BlockObserver. The send is a try-send: a
// full channel drops the oldest queued message and increments
// dropped_blocks rather than blocking the node's block pipeline (§5.4).
func (s *SentinelService) OnBlockCommitted(header *types.Header, txs []*types.Transaction, receipts []*types.Receipt) {
	msg := workMsg{block: &blockCommittedMsg{Header: header, Txs: txs, Receipts: receipts}}
	s.trySend(msg)
}

// OnMempoolTransaction implements MempoolObserver. MempoolPreFilter.Scan
// runs inline (§4.3: "<100µs") and only a flagged transaction is
// enqueued onto the same channel as block work.
func (s *SentinelService) OnMempoolTransaction(tx *types.Transaction, sender common.Address, hash common.Hash) {
	if s.mempool == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.MempoolTxsScanned.Inc(1)
	}
	alert, flagged := s.mempool.Scan(tx, sender, hash)
	if !flagged {
		return
	}
	s.trySend(workMsg{mempool: &mempoolTxMsg{Alert: alert}})
}

// trySend implements drop-oldest back-pressure: if the channel is full,
// the oldest queued message is discarded to make room, per §5.4.
func (s *SentinelService) trySend(msg workMsg) {
	select {
	case s.ch <- msg:
		return
	default:
	}
	select {
	case <-s.ch:
		if s.metrics != nil {
			s.metrics.DroppedBlocks.Inc(1)
		}
	default:
	}
	select {
	case s.ch <- msg:
	default:
		if s.metrics != nil {
			s.metrics.DroppedBlocks.Inc(1)
		}
	}
}

func (s *SentinelService) run() {
	defer s.wg.Done()
	defer close(s.done)
	ctx := context.Background()
	sweepTicker := time.NewTicker(time.Minute)
	defer sweepTicker.Stop()

	for {
		select {
		case msg := <-s.ch:
			if msg.shutdown {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						err := stepErr(ErrStepFailure, "worker", fmt.Errorf("panic: %v", r))
						if s.metrics != nil {
							s.metrics.AnalysisErrors.Inc(1)
						}
						log.Error("sentinel worker recovered from panic", "err", err)
					}
				}()
				if msg.block != nil {
					s.handleBlock(ctx, msg.block)
				}
				if msg.mempool != nil {
					s.handleMempool(ctx, msg.mempool)
				}
			}()
		case <-sweepTicker.C:
			if dedup := findDeduplicator(s.handler); dedup != nil {
				dedup.Sweep()
				if err := dedup.CompactStore(); err != nil {
					log.Warn("sentinel dedupe store compaction failed", "err", err)
				}
			}
		}
	}
}

func (s *SentinelService) handleBlock(ctx context.Context, msg *blockCommittedMsg) {
	if s.metrics != nil {
		s.metrics.BlocksScanned.Inc(1)
		s.metrics.TxsScanned.Inc(int64(len(msg.Txs)))
	}
	s.mu.Lock()
	s.currentBlock = msg.Header.Number.Uint64()
	s.mu.Unlock()

	suspects := s.prefilter.ScanBlock(msg.Header, msg.Txs, msg.Receipts)
	for _, tx := range suspects {
		if s.metrics != nil {
			s.metrics.TxsFlagged.Inc(1)
		}
		alert, err := s.analyzer.Analyze(ctx, msg.Header, msg.Txs, tx, s.currentBlock, s.cfg)
		if err != nil {
			if s.metrics != nil {
				s.metrics.AnalysisErrors.Inc(1)
			}
			log.Warn("sentinel deep analysis failed", "txHash", tx.TxHash, "err", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.DeepAnalyses.Inc(1)
		}
		if alert == nil {
			continue
		}
		if err := s.handler.OnAlert(ctx, alert); err != nil {
			log.Warn("sentinel alert dispatch failed", "txHash", tx.TxHash, "err", err)
		}
	}
}

// findDeduplicator unwraps the §4.11 AlertRateLimiter(AlertDeduplicator(...))
// chain to locate the AlertDeduplicator the periodic sweep ticker needs,
// without the handler chain having to expose it directly.
func findDeduplicator(h AlertHandler) *AlertDeduplicator {
	switch v := h.(type) {
	case *AlertDeduplicator:
		return v
	case *AlertRateLimiter:
		return findDeduplicator(v.next)
	default:
		return nil
	}
}

func (s *SentinelService) handleMempool(ctx context.Context, msg *mempoolTxMsg) {
	if s.metrics != nil {
		s.metrics.MempoolTxsFlagged.Inc(1)
	}
	sa := mempoolAlertToSentinelAlert(msg.Alert)
	if err := s.handler.OnAlert(ctx, sa); err != nil {
		log.Warn("sentinel mempool alert dispatch failed", "txHash", msg.Alert.TxHash, "err", err)
		return
	}
	if s.metrics != nil {
		s.metrics.MempoolAlertsEmitted.Inc(1)
	}
}
