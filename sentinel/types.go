// Package sentinel implements the attack-detection pipeline described in
// SPEC_FULL.md: a receipt-level pre-filter, an opcode-replay deep
// analyzer, an adaptive classification pipeline, and the alert/pause
// machinery that consumes its output.
package sentinel

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// AlertPriority orders how urgently a SuspiciousTx or SentinelAlert
// needs attention. The ordering is significant: AutoPauseHandler and
// the priority mapping in PreFilter both compare against it.
type AlertPriority int

const (
	PriorityNone AlertPriority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p AlertPriority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "none"
	}
}

// AlertLevel is the severity attached to a dispatched SentinelAlert.
// It tracks AlertPriority's ordering but is named separately because it
// is the externally-serialized field (§3.1) while AlertPriority is an
// internal pre-filter concept.
type AlertLevel int

const (
	LevelInfo AlertLevel = iota
	LevelWarning
	LevelCritical
)

func (l AlertLevel) String() string {
	switch l {
	case LevelCritical:
		return "critical"
	case LevelWarning:
		return "warning"
	default:
		return "info"
	}
}

// LevelForScore maps a confidence/suspicion score onto the AlertLevel
// thresholds fixed by §8.1/§8.3: Critical >= 0.8, Warning >= 0.5, else Info.
func LevelForScore(score float64) AlertLevel {
	switch {
	case score >= 0.8:
		return LevelCritical
	case score >= 0.5:
		return LevelWarning
	default:
		return LevelInfo
	}
}

// PriorityForScore maps a pre-filter suspicion score onto the priority
// buckets of §4.2: >=0.8 Critical, >=0.5 High, >=0.3 Medium, else none.
func PriorityForScore(score float64) AlertPriority {
	switch {
	case score >= 0.8:
		return PriorityCritical
	case score >= 0.5:
		return PriorityHigh
	case score >= 0.3:
		return PriorityMedium
	default:
		return PriorityNone
	}
}

// SuspicionReasonKind tags the cause a PreFilter heuristic attached to a
// SuspiciousTx (§3.1).
type SuspicionReasonKind int

const (
	ReasonHighValueTransfer SuspicionReasonKind = iota
	ReasonLargeLogCount
	ReasonFlashLoanSignature
	ReasonReentrantCallPattern
	ReasonHighGasWithRevert
	ReasonKnownExploitSelector
	ReasonMultipleErc20Transfers
	ReasonUnusualCallDepth
	ReasonPriceOracleInteraction
	ReasonSelfDestruct
	ReasonOracleDexCombo
)

// SuspicionReason is one scored signal contributing to a SuspiciousTx's
// suspicion_score. Fields beyond Kind are heuristic-specific payload
// (e.g. Value for HighValueTransfer, N for LargeLogCount).
type SuspicionReason struct {
	Kind     SuspicionReasonKind
	Score    float64
	Value    *uint256.Int
	N        uint32
	Gas      uint64
	Selector [4]byte
	Provider string
	Oracle   common.Address
}

// SuspiciousTx is the PreFilter's verdict on one transaction (§3.1).
type SuspiciousTx struct {
	TxHash         common.Hash
	TxIndex        int
	SuspicionScore float64
	Reasons        []SuspicionReason
	Priority       AlertPriority
}

// MempoolSuspicionReasonKind tags a MempoolPreFilter heuristic (§4.3).
type MempoolSuspicionReasonKind int

const (
	MempoolReasonFlashLoanSelector MempoolSuspicionReasonKind = iota
	MempoolReasonHighValueToDeFi
	MempoolReasonHighGasToDeFi
	MempoolReasonLargeInitCode
	MempoolReasonMulticallToRouter
)

type MempoolSuspicionReason struct {
	Kind     MempoolSuspicionReasonKind
	Selector [4]byte
	CodeSize int
}

// MempoolAlert is the MempoolPreFilter's verdict on one pending
// transaction, enqueued onto the same worker channel as block alerts
// (§4.3).
type MempoolAlert struct {
	TxHash     common.Hash
	From       common.Address
	To         *common.Address
	Value      *uint256.Int
	Reasons    []MempoolSuspicionReason
	ObservedAt time.Time
}

// DetectedPatternKind names an attack pattern an AttackClassifier
// detector can produce (§3.1, §4.5).
type DetectedPatternKind int

const (
	PatternReentrancy DetectedPatternKind = iota
	PatternFlashLoanETH
	PatternFlashLoanERC20
	PatternFlashLoanCallback
	PatternPriceManipulation
	PatternAccessControlBypass
)

func (k DetectedPatternKind) String() string {
	switch k {
	case PatternReentrancy:
		return "reentrancy"
	case PatternFlashLoanETH:
		return "flash_loan_eth"
	case PatternFlashLoanERC20:
		return "flash_loan_erc20"
	case PatternFlashLoanCallback:
		return "flash_loan_callback"
	case PatternPriceManipulation:
		return "price_manipulation"
	case PatternAccessControlBypass:
		return "access_control_bypass"
	default:
		return "unknown"
	}
}

// DetectedPattern is one classifier finding: a named pattern, a
// confidence in [0,1], and the evidence chain that justifies it (§3.1).
type DetectedPattern struct {
	Kind       DetectedPatternKind
	Confidence float64
	Evidence   []string
}

// AssetKind distinguishes native ETH flows from ERC-20 token flows in a
// FundFlow (§3.1).
type AssetKind int

const (
	AssetETH AssetKind = iota
	AssetERC20
)

// FundFlow is one value transfer inferred from a replayed trace (§4.6).
type FundFlow struct {
	From      common.Address
	To        common.Address
	Asset     AssetKind
	Token     common.Address // zero value when Asset == AssetETH
	Amount    *uint256.Int
	StepIndex uint32
}

// SentinelAlert is the unit dispatched to the AlertHandler chain (§3.1).
type SentinelAlert struct {
	ID               uuid.UUID
	Timestamp        time.Time
	BlockNumber      uint64
	BlockHash        common.Hash
	TxHash           common.Hash
	TxIndex          int
	AlertLevel       AlertLevel
	SuspicionScore   float64
	DetectedPatterns []DetectedPattern
	FundFlows        []FundFlow
	TotalValueAtRisk *uint256.Int
	Summary          string
	FeatureVector    *FeatureVector
	Partial          bool     // true when produced under a pipeline timeout (§7)
	Evidence         []string // pipeline-level evidence, e.g. "pipeline timeout"
}

// TargetContract returns the address a dedup/rate-limit policy should
// key on: the transaction's primary counterparty, i.e. the first
// fund-flow's "to" address if any, else the zero address.
func (a *SentinelAlert) TargetContract() common.Address {
	for _, p := range a.DetectedPatterns {
		_ = p
	}
	if len(a.FundFlows) > 0 {
		return a.FundFlows[0].To
	}
	return common.Address{}
}

// mempoolAlertToSentinelAlert lifts a MempoolPreFilter verdict into the
// same SentinelAlert shape the deep-analysis path produces, so both
// paths can share one AlertHandler chain (§4.10's worker loop: "no deep
// analysis" for the mempool path, but still one SentinelAlert). The
// mempool path never replays, so score is a fixed per-reason-count
// heuristic rather than a weighted pipeline confidence.
func mempoolAlertToSentinelAlert(a MempoolAlert) *SentinelAlert {
	score := 0.3 + 0.1*float64(len(a.Reasons)-1)
	if score > 0.7 {
		score = 0.7 // mempool-only verdicts never reach Critical; replay is required for that
	}
	var flows []FundFlow
	if a.To != nil && a.Value != nil && !a.Value.IsZero() {
		flows = []FundFlow{{From: a.From, To: *a.To, Asset: AssetETH, Amount: a.Value}}
	}
	return &SentinelAlert{
		ID:               uuid.New(),
		Timestamp:        a.ObservedAt,
		TxHash:           a.TxHash,
		AlertLevel:       LevelForScore(score),
		SuspicionScore:   score,
		FundFlows:        flows,
		TotalValueAtRisk: a.Value,
		Summary:          mempoolSummary(a),
	}
}

func mempoolSummary(a MempoolAlert) string {
	if len(a.Reasons) == 0 {
		return "mempool transaction flagged"
	}
	return "mempool transaction flagged: " + a.Reasons[0].Kind.mempoolReasonString()
}

func (k MempoolSuspicionReasonKind) mempoolReasonString() string {
	switch k {
	case MempoolReasonFlashLoanSelector:
		return "flash_loan_selector"
	case MempoolReasonHighValueToDeFi:
		return "high_value_to_defi"
	case MempoolReasonHighGasToDeFi:
		return "high_gas_to_defi"
	case MempoolReasonLargeInitCode:
		return "large_init_code"
	case MempoolReasonMulticallToRouter:
		return "multicall_to_router"
	default:
		return "unknown"
	}
}

// PrimaryPatternKind returns the highest-confidence detected pattern's
// kind, used as half of the AlertDeduplicator's dedupe key (§4.11).
func (a *SentinelAlert) PrimaryPatternKind() (DetectedPatternKind, bool) {
	if len(a.DetectedPatterns) == 0 {
		return 0, false
	}
	best := a.DetectedPatterns[0]
	for _, p := range a.DetectedPatterns[1:] {
		if p.Confidence > best.Confidence {
			best = p
		}
	}
	return best.Kind, true
}
