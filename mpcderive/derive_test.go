package mpcderive

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/common"
)

const (
	// Older MPC network key, still configured as root signer in deployed vaults.
	legacyBasePublicKey = "0x044eef776e4f257d68983e45b340c2e9546c5df95447900b6aadfec68fb46fdee257e26b8ba383ddba9914b33c60e869265f859566fff4baef283c54d821ca3b64"
	responder           = "Dewq9xyD1MZi1rE588XZFvK7uUqkcHLgCnDsn9Ns4H9M"
)

func mustBase(t *testing.T, s string) []byte {
	raw, err := common.DecodeHex(s)
	require.NoError(t, err)
	return raw
}

func TestDeriveEpsilon(t *testing.T) {
	eps := DeriveEpsilon(responder, RootPath)
	want, _ := new(big.Int).SetString("deacbf8848863ab16a40ab8f2075f324429bbbd43f24ff06e60cd5b057df7429", 16)
	assert.Equal(t, 0, want.Cmp(eps))

	// the message is "<prefix>,<chain>,<requester>,<path>"
	manual := crypto.Keccak256([]byte(EpsilonDerivationPrefix + "," + SolanaChainIdHex + "," + responder + "," + RootPath))
	assert.Equal(t, manual, ethcommon.LeftPadBytes(eps.Bytes(), 32))
}

func TestDeriveEvmAddressGolden(t *testing.T) {
	base := mustBase(t, DefaultBasePublicKey)

	tests := []struct {
		requester string
		path      string
		want      string
	}{
		{responder, RootPath, "0xe651f77478a56dd464eefcdad82df0d9298d8ba2"},
		{"11111111111111111111111111111111", "11111111111111111111111111111111", "0x9644c56a307cb834247bc8962f3ca96e194a93aa"},
	}

	for _, tt := range tests {
		addr, err := DeriveEvmAddress(tt.path, tt.requester, base)
		assert.NoError(t, err)
		assert.Equal(t, ethcommon.HexToAddress(tt.want), addr)
	}
}

func TestDeriveDeterministic(t *testing.T) {
	d, err := NewDeriver("")
	require.NoError(t, err)

	first, err := d.EvmAddress(responder, "some/path")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := d.EvmAddress(responder, "some/path")
		assert.NoError(t, err)
		assert.Equal(t, first, again)
	}

	other, err := d.EvmAddress(responder, "some/other/path")
	assert.NoError(t, err)
	assert.NotEqual(t, first, other)
}

// Recompute epsilon*G + base with go-ethereum's curve implementation.
func TestDerivePublicKeyCrossCheck(t *testing.T) {
	base := mustBase(t, DefaultBasePublicKey)
	requester, path := "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", "0xabc"

	pk, err := DerivePublicKey(path, requester, base)
	require.NoError(t, err)

	curve := crypto.S256()
	eps := DeriveEpsilon(requester, path)
	ex, ey := curve.ScalarBaseMult(ethcommon.LeftPadBytes(eps.Bytes(), 32))
	bx := new(big.Int).SetBytes(base[1:33])
	by := new(big.Int).SetBytes(base[33:])
	x, y := curve.Add(ex, ey, bx, by)

	assert.Equal(t, 0, x.Cmp(pk.X()))
	assert.Equal(t, 0, y.Cmp(pk.Y()))
}

func TestRootSignerAddress(t *testing.T) {
	d, err := NewDeriver(legacyBasePublicKey)
	require.NoError(t, err)
	assert.Equal(t, ethcommon.HexToAddress("0x00A40C2661293d5134E53Da52951A3F7767836Ef"), d.RootSignerAddress())

	d, err = NewDeriver(DefaultBasePublicKey)
	require.NoError(t, err)
	assert.Equal(t, ethcommon.HexToAddress("0x1be31a94361a391bbafb2a4ccd704f57dc04d4bb"), d.RootSignerAddress())
}

func TestDeriveMalformedBase(t *testing.T) {
	base := mustBase(t, DefaultBasePublicKey)

	// compressed form is rejected
	compressed := make([]byte, 33)
	copy(compressed, base[:33])
	compressed[0] = 0x02
	_, err := DerivePublicKey(RootPath, responder, compressed)
	assert.ErrorIs(t, err, agreement.ErrDerivation)

	// wrong prefix
	wrong := append([]byte{}, base...)
	wrong[0] = 0x05
	_, err = DerivePublicKey(RootPath, responder, wrong)
	assert.ErrorIs(t, err, agreement.ErrDerivation)

	// not on curve
	offCurve := append([]byte{}, base...)
	offCurve[64] ^= 0x01
	_, err = DerivePublicKey(RootPath, responder, offCurve)
	assert.ErrorIs(t, err, agreement.ErrDerivation)

	_, err = NewDeriver("0x04zz")
	assert.ErrorIs(t, err, agreement.ErrDerivation)
}

func TestDeriveEpsilonOutOfRange(t *testing.T) {
	base, err := ParseBasePublicKey(DefaultBasePublicKey)
	require.NoError(t, err)

	_, err = derive(base, big.NewInt(0))
	assert.ErrorIs(t, err, ErrEpsilonOutOfRange)

	_, err = derive(base, new(big.Int).Set(btcec.S256().N))
	assert.ErrorIs(t, err, ErrEpsilonOutOfRange)
}

func TestParseMpcAddress(t *testing.T) {
	addr, err := ParseMpcAddress("0x00A40C2661293d5134E53Da52951A3F7767836Ef")
	assert.NoError(t, err)
	assert.Equal(t, ethcommon.HexToAddress("0x00A40C2661293d5134E53Da52951A3F7767836Ef"), addr)

	_, err = ParseMpcAddress("0x" + "11" + "00A40C2661293d5134E53Da52951A3F7767836Ef") // 21 bytes
	assert.ErrorIs(t, err, agreement.ErrValidation)

	_, err = ParseMpcAddress("0xA40C2661293d5134E53Da52951A3F7767836Ef") // 19 bytes
	assert.ErrorIs(t, err, agreement.ErrValidation)

	_, err = ParseMpcAddress("0xnothex")
	assert.ErrorIs(t, err, agreement.ErrValidation)

	_, err = MpcAddressFromBytes(make([]byte, 19))
	assert.ErrorIs(t, err, agreement.ErrValidation)
	_, err = MpcAddressFromBytes(make([]byte, 21))
	assert.ErrorIs(t, err, agreement.ErrValidation)
}
