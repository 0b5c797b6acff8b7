package mpcderive

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/TEENet-io/vault-relayer/agreement"
)

var (
	ErrBadRecoveryId       = errors.New("recovery id must be below 4")
	ErrResponseSignerWrong = errors.New("response not signed by the mpc root signer")
)

// EvmRSV converts an MPC signature into EVM r, s, v (v = recoveryId + 27).
func EvmRSV(sig *agreement.MpcSignature) (r, s *big.Int, v uint8) {
	r = new(big.Int).SetBytes(sig.BigR.X[:])
	s = new(big.Int).SetBytes(sig.S[:])
	v = sig.RecoveryId + 27
	return r, s, v
}

// RawSignature returns the 65-byte [R || S || V] form with V in {0,1} as
// go-ethereum's signers expect.
func RawSignature(sig *agreement.MpcSignature) ([]byte, error) {
	if sig.RecoveryId >= 4 {
		return nil, ErrBadRecoveryId
	}
	raw := make([]byte, crypto.SignatureLength)
	copy(raw[:32], sig.BigR.X[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = sig.RecoveryId
	return raw, nil
}

// ResponseHash = keccak256(requestId || serializedOutput), the message the MPC
// network signs in a read response.
func ResponseHash(requestId [32]byte, serializedOutput []byte) ethcommon.Hash {
	return crypto.Keccak256Hash(requestId[:], serializedOutput)
}

// VerifyResponse checks that a read response was signed by expected, the same
// way the custody program does before it settles.
func VerifyResponse(ev *agreement.SignatureEvent, expected ethcommon.Address) error {
	raw, err := RawSignature(&ev.Signature)
	if err != nil {
		return agreement.ValidationError("verify response", "%v", err)
	}

	hash := ResponseHash(ev.RequestId, ev.SerializedOutput)
	pub, err := crypto.SigToPub(hash[:], raw)
	if err != nil {
		return agreement.ValidationError("verify response", "failed to recover signer: %v", err)
	}

	if got := crypto.PubkeyToAddress(*pub); got != expected {
		return agreement.ValidationError("verify response", "%v: got %s, want %s", ErrResponseSignerWrong, got.Hex(), expected.Hex())
	}
	return nil
}

// SignatureFromRaw is the inverse of RawSignature. Y of big R is not
// recoverable from a compact signature and is left zero.
func SignatureFromRaw(raw []byte) (*agreement.MpcSignature, error) {
	if len(raw) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(raw))
	}
	sig := &agreement.MpcSignature{RecoveryId: raw[64]}
	copy(sig.BigR.X[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	return sig, nil
}
