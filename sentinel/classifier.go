package sentinel

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Opcode values the classifier and feature extractor match on. These
// mirror go-ethereum's core/vm opcode constants; they are restated here
// so the classifier has no compile-time dependency on core/vm's OpCode
// type, keeping it a pure function over StepRecord as §4.5 requires.
const (
	opSSTORE       = 0x55
	opSLOAD        = 0x54
	opCALL         = 0xF1
	opCALLCODE     = 0xF2
	opDELEGATECALL = 0xF4
	opSTATICCALL   = 0xFA
	opCREATE       = 0xF0
	opCREATE2      = 0xF5
	opSELFDESTRUCT = 0xFF
	opREVERT       = 0xFD
	opLOG0         = 0xA0
	opLOG4         = 0xA4
)

func isCall(op byte) bool {
	switch op {
	case opCALL, opCALLCODE, opDELEGATECALL, opSTATICCALL:
		return true
	default:
		return false
	}
}

func isLog(op byte) bool {
	return op >= opLOG0 && op <= opLOG4
}

// AttackClassifier is a pure function over a step sequence: it runs a
// fixed set of detectors and returns whatever patterns they find (§4.5).
// It holds no state and performs no I/O, so it is trivially safe to call
// from multiple pipeline runs concurrently.
type AttackClassifier struct {
	registry *Registry
}

func NewAttackClassifier(registry *Registry) *AttackClassifier {
	return &AttackClassifier{registry: registry}
}

// Classify runs every detector over steps and returns the patterns that
// fired, in detector order.
func (c *AttackClassifier) Classify(steps []StepRecord) []DetectedPattern {
	var found []DetectedPattern
	detectors := []func([]StepRecord) (*DetectedPattern, bool){
		c.detectReentrancy,
		c.detectFlashLoanETH,
		c.detectFlashLoanERC20,
		c.detectFlashLoanCallback,
		c.detectPriceManipulation,
		c.detectAccessControlBypass,
	}
	for _, d := range detectors {
		if p, ok := d(steps); ok {
			found = append(found, *p)
		}
	}
	return found
}

// HasCallOpcodes is the PatternMatcher step's dismiss shortcut (§4.7):
// if a trace contains no CALL-family or CREATE/CREATE2 opcode, reentrancy
// and flash-loan detectors cannot fire, and it returns false.
func HasCallOpcodes(steps []StepRecord) bool {
	for _, s := range steps {
		if isCall(s.Opcode) || s.Opcode == opCREATE || s.Opcode == opCREATE2 {
			return true
		}
	}
	return false
}

// detectReentrancy flags a CALL into a code address whose ancestor
// frame (an earlier, still-open call into the same address) has not yet
// completed an SSTORE to what looks like a protective/guard slot. The
// "ancestor not completed SSTORE" shape is approximated by: the same
// code address appears at two different depths with a CALL at the
// deeper one. SSTOREs to that address between the two entries are
// counted as evidence; when there are none, confidence is raised by 0.2
// (§4.5).
func (c *AttackClassifier) detectReentrancy(steps []StepRecord) (*DetectedPattern, bool) {
	firstEntryDepth := make(map[common.Address]int)
	firstEntryIndex := make(map[common.Address]int)

	for i, s := range steps {
		if !isCall(s.Opcode) {
			continue
		}
		addr := s.CodeAddress
		if d, seen := firstEntryDepth[addr]; seen {
			if s.Depth > d {
				// Re-entry into the same contract at a deeper frame:
				// count intervening SSTOREs to that contract.
				sstores := 0
				for j := firstEntryIndex[addr]; j < i; j++ {
					if steps[j].Opcode == opSSTORE && steps[j].CodeAddress == addr {
						sstores++
					}
				}
				evidence := []string{
					fmt.Sprintf("contract %s entered at depth %d then re-entered at depth %d (step %d)", addr.Hex(), d, s.Depth, i),
					fmt.Sprintf("%d SSTORE(s) observed between entries", sstores),
				}
				confidence := 0.5 + 0.1*float64(s.Depth-d)
				if sstores == 0 {
					confidence += 0.2 // no protective write landed before re-entry
				}
				if confidence > 1 {
					confidence = 1
				}
				return &DetectedPattern{Kind: PatternReentrancy, Confidence: confidence, Evidence: evidence}, true
			}
			continue
		}
		firstEntryDepth[addr] = s.Depth
		firstEntryIndex[addr] = i
	}
	return nil, false
}

// detectFlashLoanETH flags a large-value CALL followed, before the
// transaction ends, by a counter-CALL returning at least that much
// value back out (§4.5).
func (c *AttackClassifier) detectFlashLoanETH(steps []StepRecord) (*DetectedPattern, bool) {
	for i, s := range steps {
		if !isCall(s.Opcode) || s.CallValue == nil || s.CallValue.IsZero() {
			continue
		}
		borrowed := s.CallValue
		for j := i + 1; j < len(steps); j++ {
			o := steps[j]
			if !isCall(o.Opcode) || o.CallValue == nil {
				continue
			}
			if o.CallValue.Cmp(borrowed) >= 0 {
				conf := 0.85 // returned value >= borrowed: strong symmetry signal
				return &DetectedPattern{
					Kind:       PatternFlashLoanETH,
					Confidence: conf,
					Evidence: []string{
						fmt.Sprintf("borrowed %s wei at step %d, returned %s wei at step %d", borrowed.String(), i, o.CallValue.String(), j),
					},
				}, true
			}
		}
	}
	return nil, false
}

// detectFlashLoanERC20 flags an ERC-20 Transfer log matching a
// borrow-shaped pattern, paired with an opposing Transfer before the
// transaction ends (§4.5).
func (c *AttackClassifier) detectFlashLoanERC20(steps []StepRecord) (*DetectedPattern, bool) {
	type xfer struct {
		index int
		from  common.Address
		to    common.Address
	}
	var transfers []xfer
	for i, s := range steps {
		if !isLog(s.Opcode) || len(s.LogTopics) < 3 {
			continue
		}
		if s.LogTopics[0] != ERC20TransferTopic {
			continue
		}
		transfers = append(transfers, xfer{
			index: i,
			from:  common.BytesToAddress(s.LogTopics[1].Bytes()),
			to:    common.BytesToAddress(s.LogTopics[2].Bytes()),
		})
	}
	for i := 0; i < len(transfers); i++ {
		for j := i + 1; j < len(transfers); j++ {
			if transfers[i].from == transfers[j].to && transfers[i].to == transfers[j].from {
				return &DetectedPattern{
					Kind:       PatternFlashLoanERC20,
					Confidence: 0.7,
					Evidence: []string{
						fmt.Sprintf("ERC-20 transfer %s->%s at step %d mirrored by %s->%s at step %d",
							transfers[i].from.Hex(), transfers[i].to.Hex(), transfers[i].index,
							transfers[j].from.Hex(), transfers[j].to.Hex(), transfers[j].index),
					},
				}, true
			}
		}
	}
	return nil, false
}

// detectFlashLoanCallback flags a CALL into the original transaction
// sender followed by a value-return before the transaction ends,
// characteristic of flash-loan callback patterns (§4.5).
func (c *AttackClassifier) detectFlashLoanCallback(steps []StepRecord) (*DetectedPattern, bool) {
	if len(steps) == 0 {
		return nil, false
	}
	sender := steps[0].CodeAddress
	for i, s := range steps {
		if isCall(s.Opcode) && s.CodeAddress == sender && s.Depth > 0 {
			for j := i + 1; j < len(steps); j++ {
				if isCall(steps[j].Opcode) && steps[j].CallValue != nil && !steps[j].CallValue.IsZero() {
					return &DetectedPattern{
						Kind:       PatternFlashLoanCallback,
						Confidence: 0.55,
						Evidence:   []string{fmt.Sprintf("callback into sender at step %d, value return at step %d", i, j)},
					}, true
				}
			}
		}
	}
	return nil, false
}

// detectPriceManipulation flags an oracle-slot SLOAD, a DEX CALL, then
// another oracle-slot SLOAD whose value changed (§4.5).
func (c *AttackClassifier) detectPriceManipulation(steps []StepRecord) (*DetectedPattern, bool) {
	var firstRead *StepRecord
	var sawDEXCall bool
	for i := range steps {
		s := &steps[i]
		if s.Opcode == opSLOAD && c.registry != nil && c.registry.IsKnownOracle(s.CodeAddress) {
			if firstRead == nil {
				firstRead = s
				continue
			}
			if sawDEXCall && firstRead.StorageOld != nil && s.StorageNew != nil && *firstRead.StorageOld != *s.StorageNew {
				return &DetectedPattern{
					Kind:       PatternPriceManipulation,
					Confidence: 0.75,
					Evidence:   []string{fmt.Sprintf("oracle slot at %s changed between reads around a DEX call", s.CodeAddress.Hex())},
				}, true
			}
		}
		if isCall(s.Opcode) && c.registry != nil && c.registry.IsKnownDEX(s.CodeAddress) {
			sawDEXCall = true
		}
	}
	return nil, false
}

// detectAccessControlBypass flags an SSTORE to what looks like a
// privileged slot (slot index 0, the conventional `owner` slot layout)
// in a trace that contains no SLOAD of that slot anywhere, the stand-in
// for a CALLER-comparison against the owner (§4.5).
// This is a heuristic approximation: without symbolic execution,
// Sentinel cannot prove the absence of an owner check, only its absence
// from the observed trace.
func (c *AttackClassifier) detectAccessControlBypass(steps []StepRecord) (*DetectedPattern, bool) {
	var ownerSlotWrite *StepRecord
	sawOwnerRead := false
	for i := range steps {
		s := &steps[i]
		if s.Opcode == opSLOAD && s.StorageSlot != nil && s.StorageSlot.Big().Sign() == 0 {
			sawOwnerRead = true
		}
		if s.Opcode == opSSTORE && s.StorageSlot != nil && s.StorageSlot.Big().Sign() == 0 {
			ownerSlotWrite = s
		}
	}
	if ownerSlotWrite != nil && !sawOwnerRead {
		return &DetectedPattern{
			Kind:       PatternAccessControlBypass,
			Confidence: 0.5,
			Evidence:   []string{fmt.Sprintf("owner slot written at %s with no read of that slot in the trace", ownerSlotWrite.CodeAddress.Hex())},
		}, true
	}
	return nil, false
}
