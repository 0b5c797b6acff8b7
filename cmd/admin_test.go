package cmd

import (
	"bytes"
	"context"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/solanaman"
)

func newAdminLedger(t *testing.T) (*solanaman.Solanaman, *solanaman.SimulatedLedger, *[][]byte) {
	ledger := solanaman.NewSimulatedLedger()
	sm, err := solanaman.NewSimulatedSolanaman(ledger, solana.NewWallet().PrivateKey)
	require.NoError(t, err)

	var sent [][]byte
	ledger.OnSend = func(tx *solana.Transaction) ([]string, error) {
		for _, ix := range tx.Message.Instructions {
			sent = append(sent, []byte(ix.Data))
		}
		return nil, nil
	}
	return sm, ledger, &sent
}

func TestSubmitVaultConfigRejectsBadAddress(t *testing.T) {
	for name, root := range map[string]string{
		"19 bytes": "0x" + ethcommon.Bytes2Hex(bytes.Repeat([]byte{0xab}, 19)),
		"21 bytes": "0x" + ethcommon.Bytes2Hex(bytes.Repeat([]byte{0xab}, 21)),
		"not hex":  "0xzz",
		"empty":    "",
	} {
		t.Run(name, func(t *testing.T) {
			for _, action := range []ConfigAction{ConfigInitialize, ConfigUpdate} {
				sm, ledger, _ := newAdminLedger(t)

				_, err := SubmitVaultConfig(context.Background(), sm, action, root)
				assert.ErrorIs(t, err, agreement.ErrValidation)
				assert.Equal(t, 0, ledger.CallCount("sendTransaction"))
				assert.Equal(t, 0, ledger.CallCount("getLatestBlockhash"))
			}
		})
	}
}

func TestSubmitVaultConfig(t *testing.T) {
	root := ethcommon.HexToAddress("0x6A1e2aF1bD1a0aCF4D87F5B5DB6b1e4E0c7B1a11")

	for _, action := range []ConfigAction{ConfigInitialize, ConfigUpdate} {
		t.Run(string(action), func(t *testing.T) {
			sm, ledger, sent := newAdminLedger(t)

			sig, err := SubmitVaultConfig(context.Background(), sm, action, root.Hex())
			require.NoError(t, err)
			assert.NotEqual(t, solana.Signature{}, sig)
			assert.Equal(t, 1, ledger.CallCount("sendTransaction"))
			require.Len(t, *sent, 1)
			assert.True(t, bytes.Contains((*sent)[0], root.Bytes()))
		})
	}
}

func TestSubmitVaultConfigUnknownAction(t *testing.T) {
	sm, ledger, _ := newAdminLedger(t)

	_, err := SubmitVaultConfig(context.Background(), sm, "delete", "0x6A1e2aF1bD1a0aCF4D87F5B5DB6b1e4E0c7B1a11")
	assert.ErrorIs(t, err, agreement.ErrValidation)
	assert.Equal(t, 0, ledger.CallCount("sendTransaction"))
}
