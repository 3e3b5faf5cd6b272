package sentinel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// PauseController is the §4.12 shared primitive that suspends block
// execution at block boundaries on high-confidence critical alerts. It
// is shared by reference among the node's execution loop (which calls
// WaitIfPaused between blocks), SentinelService's AutoPauseHandler
// (which calls Pause), and the admin RPC (which calls Resume) — exactly
// the three holders §9 describes, modelled here as a value shared by
// pointer rather than language-level reference counting.
type PauseController struct {
	paused          atomic.Bool
	autoResumeSecs  uint64 // 0 means no auto-resume

	mu       sync.Mutex
	cond     *sync.Cond
	pausedAt time.Time
	timer    *time.Timer
}

// NewPauseController constructs an idle controller. autoResumeSecs of 0
// disables auto-resume.
func NewPauseController(autoResumeSecs uint64) *PauseController {
	p := &PauseController{autoResumeSecs: autoResumeSecs}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Pause sets the flag, records paused_at, and returns immediately
// (§4.12). If an auto-resume duration is configured it arms a timer
// that calls Resume on expiry, logging the auto-resume per §4.12's
// wait_if_paused contract.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused.Store(true)
	p.pausedAt = time.Now()
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.autoResumeSecs > 0 {
		p.timer = time.AfterFunc(time.Duration(p.autoResumeSecs)*time.Second, func() {
			if p.Resume() {
				log.Info("sentinel auto-resume after pause timeout", "autoResumeSecs", p.autoResumeSecs)
			}
		})
	}
}

// Resume is idempotent (compare-exchange true->false), clears
// paused_at, and wakes every waiter (§4.12).
func (p *PauseController) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	transitioned := p.paused.CompareAndSwap(true, false)
	p.pausedAt = time.Time{}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.cond.Broadcast()
	return transitioned
}

// IsPaused is a non-blocking atomic load.
func (p *PauseController) IsPaused() bool {
	return p.paused.Load()
}

// WaitIfPaused is the block-execution checkpoint (§4.12): a fast atomic
// load when idle, falling back to a condvar wait when paused. The
// auto-resume bound is enforced independently by the timer armed in
// Pause, which calls Resume (and so Broadcasts this condvar) on expiry
// — wait_if_paused never needs its own deadline. Call only between
// block executions, never mid-block, per the §4.12 invariant.
func (p *PauseController) WaitIfPaused() {
	if !p.paused.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.paused.Load() {
		p.cond.Wait()
	}
}

// PauseStatus is the admin RPC's sentinel_status response shape
// (§4.14, §6.3).
type PauseStatus struct {
	Paused       bool  `json:"paused"`
	PausedForSec int64 `json:"pausedForSecs,omitempty"`
	AutoResumeIn int64 `json:"autoResumeIn,omitempty"`
}

// Status reports {paused, paused_for_secs, auto_resume_in} (§4.12).
func (p *PauseController) Status() PauseStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused.Load() {
		return PauseStatus{Paused: false}
	}
	pausedFor := int64(time.Since(p.pausedAt).Seconds())
	var autoResumeIn int64
	if p.autoResumeSecs > 0 {
		remaining := int64(p.autoResumeSecs) - pausedFor
		if remaining < 0 {
			remaining = 0
		}
		autoResumeIn = remaining
	}
	return PauseStatus{Paused: true, PausedForSec: pausedFor, AutoResumeIn: autoResumeIn}
}
