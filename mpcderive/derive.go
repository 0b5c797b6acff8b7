package mpcderive

import (
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/sha3"

	"github.com/TEENet-io/vault-relayer/agreement"
)

var (
	ErrEpsilonOutOfRange = errors.New("epsilon is zero or not below the curve order")
	ErrPointAtInfinity   = errors.New("derived point is the point at infinity")
)

// DeriveEpsilon hashes "<prefix>,<chainIdHex>,<requester>,<path>" with keccak256
// and reads the digest as a big-endian scalar. The byte layout must match the
// on-chain verifier exactly.
func DeriveEpsilon(requester, path string) *big.Int {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(EpsilonDerivationPrefix))
	h.Write([]byte{','})
	h.Write([]byte(SolanaChainIdHex))
	h.Write([]byte{','})
	h.Write([]byte(requester))
	h.Write([]byte{','})
	h.Write([]byte(path))
	return new(big.Int).SetBytes(h.Sum(nil))
}

// DerivePublicKey computes epsilon*G + base on secp256k1.
// basePublicKey is the 65-byte uncompressed key.
func DerivePublicKey(path, requester string, basePublicKey []byte) (*btcec.PublicKey, error) {
	base, err := parseUncompressed(basePublicKey)
	if err != nil {
		return nil, err
	}
	return derive(base, DeriveEpsilon(requester, path))
}

// DeriveEvmAddress is DerivePublicKey followed by the EVM address rule.
func DeriveEvmAddress(path, requester string, basePublicKey []byte) (ethcommon.Address, error) {
	pk, err := DerivePublicKey(path, requester, basePublicKey)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return PublicKeyToAddress(pk), nil
}

func derive(base *btcec.PublicKey, epsilon *big.Int) (*btcec.PublicKey, error) {
	if epsilon.Sign() == 0 || epsilon.Cmp(btcec.S256().N) >= 0 {
		return nil, agreement.DerivationError("derive public key", ErrEpsilonOutOfRange)
	}

	var scalar btcec.ModNScalar
	scalar.SetByteSlice(epsilon.Bytes())

	var epsG, basePoint, sum btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&scalar, &epsG)
	base.AsJacobian(&basePoint)
	btcec.AddNonConst(&epsG, &basePoint, &sum)

	if (sum.X.IsZero() && sum.Y.IsZero()) || sum.Z.IsZero() {
		return nil, agreement.DerivationError("derive public key", ErrPointAtInfinity)
	}
	sum.ToAffine()

	return btcec.NewPublicKey(&sum.X, &sum.Y), nil
}

// Deriver binds the derivation to one MPC base public key.
type Deriver struct {
	base *btcec.PublicKey
}

func NewDeriver(basePublicKeyHex string) (*Deriver, error) {
	if basePublicKeyHex == "" {
		basePublicKeyHex = DefaultBasePublicKey
	}
	base, err := ParseBasePublicKey(basePublicKeyHex)
	if err != nil {
		return nil, err
	}
	return &Deriver{base: base}, nil
}

// RootSignerAddress is the EVM address of the underived base key.
func (d *Deriver) RootSignerAddress() ethcommon.Address {
	return PublicKeyToAddress(d.base)
}

func (d *Deriver) EvmAddress(requester, path string) (ethcommon.Address, error) {
	pk, err := derive(d.base, DeriveEpsilon(requester, path))
	if err != nil {
		return ethcommon.Address{}, err
	}
	return PublicKeyToAddress(pk), nil
}

// VaultAuthorityAddress is the per-user EVM address the user sends tokens to.
// requesterPda is the user's vault authority PDA, the path is the user's key.
func (d *Deriver) VaultAuthorityAddress(requesterPda, user solana.PublicKey) (ethcommon.Address, error) {
	return d.EvmAddress(requesterPda.String(), user.String())
}

// GlobalVaultAddress is the EVM address of the global vault (root path).
func (d *Deriver) GlobalVaultAddress(globalVaultPda solana.PublicKey) (ethcommon.Address, error) {
	return d.EvmAddress(globalVaultPda.String(), RootPath)
}
