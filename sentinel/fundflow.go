package sentinel

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FundFlowTracer walks a replayed step sequence and reconstructs value
// movements: native ETH transfers from CALL values, and ERC-20 transfers
// decoded from Transfer log entries (§4.6).
type FundFlowTracer struct{}

func NewFundFlowTracer() *FundFlowTracer { return &FundFlowTracer{} }

// Trace returns every FundFlow found in steps, in step order.
func (t *FundFlowTracer) Trace(steps []StepRecord) []FundFlow {
	var flows []FundFlow
	for i, s := range steps {
		if isCall(s.Opcode) && s.CallValue != nil && !s.CallValue.IsZero() {
			flows = append(flows, FundFlow{
				From:      callerOfFrame(steps, i),
				To:        s.CodeAddress,
				Asset:     AssetETH,
				Amount:    s.CallValue,
				StepIndex: uint32(i),
			})
		}
		if isLog(s.Opcode) && len(s.LogTopics) >= 3 && s.LogTopics[0] == ERC20TransferTopic {
			amount := decodeTransferAmount(s.LogData)
			flows = append(flows, FundFlow{
				From:      common.BytesToAddress(s.LogTopics[1].Bytes()),
				To:        common.BytesToAddress(s.LogTopics[2].Bytes()),
				Asset:     AssetERC20,
				Token:     s.CodeAddress,
				Amount:    amount,
				StepIndex: uint32(i),
			})
		}
	}
	return flows
}

// callerOfFrame finds the most recent enclosing frame (shallower depth)
// before index i, whose code address is the caller of the CALL at i.
func callerOfFrame(steps []StepRecord, i int) common.Address {
	depth := steps[i].Depth
	for j := i - 1; j >= 0; j-- {
		if steps[j].Depth < depth {
			return steps[j].CodeAddress
		}
	}
	if len(steps) > 0 {
		return steps[0].CodeAddress
	}
	return common.Address{}
}

// decodeTransferAmount decodes the single uint256 data word of an
// ERC-20 Transfer(address,address,uint256) log.
func decodeTransferAmount(data []byte) *uint256.Int {
	if len(data) < 32 {
		return new(uint256.Int)
	}
	v, _ := uint256.FromBig(new(big.Int).SetBytes(data[:32]))
	return v
}
