package config

import (
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fsnotify/fsnotify"
	"github.com/holiman/uint256"

	"github.com/sentinel-watch/sentinel/sentinel"
)

// Resolved is the File document translated into the concrete config
// structs sentinel's components consume.
type Resolved struct {
	Prefilter sentinel.SentinelConfig
	Analysis  sentinel.AnalysisConfig
	Mempool   sentinel.MempoolConfig
	AutoPause AutoPauseResolved
	Alert     AlertResolved
	Registry  []byte // reserved for a future registry-overrides document; unused today
}

// AlertResolved holds the parsed §6.4 [sentinel.alert] section.
type AlertResolved struct {
	RateLimitPerMin  float64
	DedupWindow      time.Duration
	DedupeStorePath  string // empty disables durable dedup persistence
}

// AutoPauseResolved holds the parsed §6.4 [sentinel.auto_pause] section.
type AutoPauseResolved struct {
	Enabled             bool
	ConfidenceThreshold float64
	PriorityThreshold   sentinel.AlertPriority
	AutoResumeSecs      uint64
}

func parseWei(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	bi, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount %q", s)
	}
	v, overflow := uint256.FromBig(bi)
	if overflow {
		return nil, fmt.Errorf("wei amount %q overflows uint256", s)
	}
	return v, nil
}

func parsePriority(s string) sentinel.AlertPriority {
	switch s {
	case "critical":
		return sentinel.PriorityCritical
	case "high":
		return sentinel.PriorityHigh
	case "medium":
		return sentinel.PriorityMedium
	default:
		return sentinel.PriorityNone
	}
}

// Resolve converts a parsed File into the concrete structs sentinel's
// constructors expect, validating the §3.2 scorer-weight invariant.
func Resolve(f File) (Resolved, error) {
	minValue, err := parseWei(f.Prefilter.MinValueWei)
	if err != nil {
		return Resolved{}, err
	}
	mempoolMinValue, err := parseWei(f.Mempool.MinValueWei)
	if err != nil {
		return Resolved{}, err
	}

	analysis := sentinel.AnalysisConfig{
		MaxSteps:             f.Analysis.MaxSteps,
		MinConfidence:        f.Analysis.MinConfidence,
		PatternWeight:        f.Analysis.PatternWeight,
		AnomalyWeight:        f.Analysis.AnomalyWeight,
		PrefilterWeight:      f.Analysis.PrefilterWeight,
		FundFlowWeight:       f.Analysis.FundFlowWeight,
		PerStepTimeout:       time.Duration(f.Analysis.PerStepTimeoutMs) * time.Millisecond,
		TotalPipelineBudget:  time.Duration(f.Analysis.TotalPipelineMs) * time.Millisecond,
		MaxAnalysisLagBlocks: f.Analysis.MaxAnalysisLagBlocks,
	}
	if err := analysis.Validate(); err != nil {
		return Resolved{}, err
	}

	return Resolved{
		Prefilter: sentinel.SentinelConfig{
			SuspicionThreshold: f.Prefilter.SuspicionThreshold,
			MinValueWei:        minValue,
			MinGasUsed:         f.Prefilter.MinGasUsed,
			MinErc20Transfers:  f.Prefilter.MinErc20Transfers,
			GasRatioThreshold:  f.Prefilter.GasRatioThreshold,
		},
		Analysis: analysis,
		Mempool: sentinel.MempoolConfig{
			Enabled:     f.Mempool.Enabled,
			MinValue:    mempoolMinValue,
			MinGasLimit: f.Mempool.MinGasLimit,
		},
		AutoPause: AutoPauseResolved{
			Enabled:             f.AutoPause.Enabled,
			ConfidenceThreshold: f.AutoPause.ConfidenceThreshold,
			PriorityThreshold:   parsePriority(f.AutoPause.PriorityThreshold),
			AutoResumeSecs:      f.AutoPause.AutoResumeSecs,
		},
		Alert: AlertResolved{
			RateLimitPerMin: f.Alert.RateLimitPerMin,
			DedupWindow:     time.Duration(float64(f.Alert.DedupWindowBlocks)*f.Alert.AvgBlockTimeSecs) * time.Second,
			DedupeStorePath: f.Alert.DedupeStorePath,
		},
	}, nil
}

// Manager watches a config file for changes and rebuilds the Registry
// and Resolved config on write, per SPEC_FULL.md's supplemented
// "registry hot-reload" feature (§3.3's "Compiled/cached state ...
// rebuilt only on config reload").
type Manager struct {
	path string

	mu       sync.RWMutex
	current  Resolved
	registry *sentinel.Registry

	watcher   *fsnotify.Watcher
	listeners []func(Resolved, *sentinel.Registry)
}

// NewManager loads path once synchronously and returns a Manager ready
// to watch it; call Watch to start hot-reload.
func NewManager(path string) (*Manager, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	resolved, err := Resolve(f)
	if err != nil {
		return nil, err
	}
	return &Manager{
		path:     path,
		current:  resolved,
		registry: sentinel.NewDefaultRegistry(),
	}, nil
}

// Current returns the most recently loaded Resolved config.
func (m *Manager) Current() Resolved {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Registry returns the most recently (re)built Registry.
func (m *Manager) Registry() *sentinel.Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry
}

// OnReload registers a callback invoked after every successful reload.
func (m *Manager) OnReload(fn func(Resolved, *sentinel.Registry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Watch starts an fsnotify watch on the config file's directory,
// reloading on any Write or Create event targeting the file itself. It returns
// once the watcher goroutine is running; call Close to stop it.
func (m *Manager) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		w.Close()
		return err
	}
	m.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				m.reload()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("sentinel config watcher error", "err", err)
			}
		}
	}()
	return nil
}

func (m *Manager) reload() {
	f, err := Load(m.path)
	if err != nil {
		log.Warn("sentinel config reload failed, keeping previous config", "err", err)
		return
	}
	resolved, err := Resolve(f)
	if err != nil {
		log.Warn("sentinel config reload rejected", "err", err)
		return
	}
	registry := sentinel.NewDefaultRegistry()

	m.mu.Lock()
	m.current = resolved
	m.registry = registry
	listeners := append([]func(Resolved, *sentinel.Registry)(nil), m.listeners...)
	m.mu.Unlock()

	log.Info("sentinel config reloaded", "path", m.path)
	for _, fn := range listeners {
		fn(resolved, registry)
	}
}

// Close stops the watcher.
func (m *Manager) Close() error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Close()
}
