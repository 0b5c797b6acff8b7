package mpcderive

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/common"
)

// Split an uncompressed public key [0x04 + x (32byte) + y (32byte)] into x and y.
func UncompressedToXY(pubKey []byte) ([]byte, []byte, error) {
	if len(pubKey) != 65 || pubKey[0] != 0x04 {
		return nil, nil, fmt.Errorf("public key must be 65 bytes long with 0x04 prefix")
	}
	return pubKey[1:33], pubKey[33:], nil
}

// Join x and y coordinates into an uncompressed public key.
func XYToUncompressed(x, y []byte) ([]byte, error) {
	if len(x) != 32 || len(y) != 32 {
		return nil, fmt.Errorf("x and y must be 32 bytes long")
	}
	return append([]byte{0x04}, append(x, y...)...), nil
}

// ParseBasePublicKey parses a hex encoded uncompressed secp256k1 public key.
// Only the uncompressed form is accepted, as that is what the MPC network publishes.
func ParseBasePublicKey(hexStr string) (*btcec.PublicKey, error) {
	raw, err := common.DecodeHex(hexStr)
	if err != nil {
		return nil, agreement.DerivationError("parse base public key", err)
	}
	return parseUncompressed(raw)
}

func parseUncompressed(raw []byte) (*btcec.PublicKey, error) {
	if _, _, err := UncompressedToXY(raw); err != nil {
		return nil, agreement.DerivationError("parse base public key", err)
	}
	pk, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, agreement.DerivationError("parse base public key", err)
	}
	return pk, nil
}

// PublicKeyToAddress returns the last 20 bytes of keccak256(x || y).
func PublicKeyToAddress(pk *btcec.PublicKey) ethcommon.Address {
	uncompressed := pk.SerializeUncompressed()
	return ethcommon.BytesToAddress(crypto.Keccak256(uncompressed[1:])[12:])
}

// ParseMpcAddress decodes an MPC signer address. Anything that is not exactly
// 20 bytes is a validation error; callers must check this before any chain call.
func ParseMpcAddress(hexStr string) (ethcommon.Address, error) {
	raw, err := common.DecodeHex(hexStr)
	if err != nil {
		return ethcommon.Address{}, agreement.ValidationError("parse mpc address", "invalid hex %q: %v", hexStr, err)
	}
	return MpcAddressFromBytes(raw)
}

func MpcAddressFromBytes(raw []byte) (ethcommon.Address, error) {
	if len(raw) != ethcommon.AddressLength {
		return ethcommon.Address{}, agreement.ValidationError("parse mpc address", "mpc address must be %d bytes, got %d", ethcommon.AddressLength, len(raw))
	}
	return ethcommon.BytesToAddress(raw), nil
}
