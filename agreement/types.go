// Global agreement on types shared by the relayer components.

package agreement

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

// Direction of a bridge request, seen from the EVM side.
type Direction string

const (
	Deposit    Direction = "deposit"    // EVM -> custody ledger
	Withdrawal Direction = "withdrawal" // custody ledger -> EVM
)

// BridgeRequest is one user initiated bridge operation.
// RequestId is the single-flight key.
type BridgeRequest struct {
	RequestId    [32]byte
	Direction    Direction
	TokenAddress common.Address
	Amount       *big.Int // u128
	Requester    solana.PublicKey
}

func (r *BridgeRequest) String() string {
	return fmt.Sprintf("%+v", *r)
}

// AffinePoint is the big R of an ECDSA signature produced by the MPC signer.
type AffinePoint struct {
	X [32]byte
	Y [32]byte
}

// MpcSignature is the signature layout emitted by the chain signatures program.
type MpcSignature struct {
	BigR       AffinePoint
	S          [32]byte
	RecoveryId uint8
}

// SignatureEvent is emitted by the MPC signer once threshold signing finishes.
// SerializedOutput is only set for read responses (the result of the EVM tx).
type SignatureEvent struct {
	RequestId        [32]byte
	Responder        solana.PublicKey
	Signature        MpcSignature
	SerializedOutput []byte
}

func (ev *SignatureEvent) String() string {
	return fmt.Sprintf("reqId=%x responder=%s output=%x", ev.RequestId, ev.Responder, ev.SerializedOutput)
}

// EventKind tells which of the two signer events is wanted.
type EventKind string

const (
	SignatureResponded EventKind = "signatureRespondedEvent"
	ReadResponded      EventKind = "readRespondedEvent"
)

// FlowState is the state of one orchestrated execution.
type FlowState string

const (
	Admitted          FlowState = "admitted"
	Validating        FlowState = "validating"
	AwaitingSignature FlowState = "awaiting_signature"
	Settling          FlowState = "settling"
	Completed         FlowState = "completed"
	Failed            FlowState = "failed"
	TimedOut          FlowState = "timed_out"
)

func (s FlowState) Terminal() bool {
	return s == Completed || s == Failed || s == TimedOut
}

// SettlementResult is what a completion strategy reports back.
type SettlementResult struct {
	EvmTxHash      common.Hash
	LedgerTxSig    solana.Signature
	AlreadySettled bool
}

// FlowRecord is the persisted status of a flow, served on the status read path.
type FlowRecord struct {
	RequestId   [32]byte
	Direction   Direction
	State       FlowState
	EvmTxHash   common.Hash
	LedgerTxSig solana.Signature
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type JSONFlowRecord struct {
	RequestId   string `json:"requestId"`
	Direction   string `json:"direction"`
	State       string `json:"state"`
	EvmTxHash   string `json:"ethereumTxHash,omitempty"`
	LedgerTxSig string `json:"solanaTx,omitempty"`
	Error       string `json:"error,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

func (r *FlowRecord) ToJSON() *JSONFlowRecord {
	j := &JSONFlowRecord{
		RequestId: "0x" + common.Bytes2Hex(r.RequestId[:]),
		Direction: string(r.Direction),
		State:     string(r.State),
		Error:     r.Error,
		CreatedAt: r.CreatedAt.Unix(),
		UpdatedAt: r.UpdatedAt.Unix(),
	}
	if r.EvmTxHash != (common.Hash{}) {
		j.EvmTxHash = r.EvmTxHash.Hex()
	}
	if r.LedgerTxSig != (solana.Signature{}) {
		j.LedgerTxSig = r.LedgerTxSig.String()
	}
	return j
}
