package solanaman

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/common"
	"github.com/TEENet-io/vault-relayer/retry"
)

func newTestSolanaman(t *testing.T) (*Solanaman, *SimulatedLedger) {
	ledger := NewSimulatedLedger()
	sm, err := NewSimulatedSolanaman(ledger, solana.NewWallet().PrivateKey)
	require.NoError(t, err)
	return sm, ledger
}

func TestPDAs(t *testing.T) {
	pdas, err := NewPDAs(DefaultBridgeProgramId, DefaultChainSignaturesProgramId)
	require.NoError(t, err)

	user := solana.NewWallet().PublicKey()
	assert.Equal(t, pdas.VaultAuthority(user), pdas.VaultAuthority(user))
	assert.NotEqual(t, pdas.VaultAuthority(user), pdas.VaultAuthority(solana.NewWallet().PublicKey()))

	reqId := common.RandBytes32()
	assert.NotEqual(t, pdas.PendingDeposit(reqId), pdas.PendingWithdrawal(reqId))
	assert.NotEqual(t, pdas.UserBalance(user, [20]byte{1}), pdas.UserBalance(user, [20]byte{2}))
	assert.NotEqual(t, pdas.ChainSignaturesState(), pdas.EventAuthority())

	want, _, err := solana.FindProgramAddress([][]byte{[]byte("global_vault_authority")}, pdas.BridgeProgram)
	require.NoError(t, err)
	assert.Equal(t, want, pdas.GlobalVaultAuthority())

	_, err = NewPDAs("not-a-key", DefaultChainSignaturesProgramId)
	assert.Error(t, err)
}

func TestInstructionLayout(t *testing.T) {
	sm, _ := newTestSolanaman(t)
	reqId := common.RandBytes32()
	user := solana.NewWallet().PublicKey()

	ix, err := sm.Builder.DepositErc20(&DepositErc20Params{
		RequestId:    reqId,
		Requester:    user,
		Erc20Address: [20]byte{0xee},
		Amount:       big.NewInt(100),
		TxParams: &EvmTransactionParams{
			Value:                big.NewInt(0),
			GasLimit:             big.NewInt(60000),
			MaxFeePerGas:         big.NewInt(20_000_000_000),
			MaxPriorityFeePerGas: big.NewInt(2_000_000_000),
			Nonce:                3,
			ChainId:              11155111,
		},
	})
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	// disc + reqId + requester + erc20 + u128 + 4*u128 + 2*u64
	assert.Len(t, data, 8+32+32+20+16+64+16)
	assert.Equal(t, InstructionDiscriminator(IxDepositErc20), Discriminator(data[:8]))
	assert.Equal(t, reqId[:], data[8:40])

	accounts := ix.Accounts()
	require.Len(t, accounts, 9)
	assert.True(t, accounts[0].IsSigner)
	assert.Equal(t, sm.PDAs.VaultAuthority(user), accounts[1].PublicKey)
	assert.Equal(t, sm.PDAs.PendingDeposit(reqId), accounts[2].PublicKey)
	assert.Equal(t, sm.PDAs.ChainSignaturesState(), accounts[4].PublicKey)

	ev := randomEvent([]byte{1})
	ix, err = sm.Builder.CompleteWithdrawErc20(reqId, user, [20]byte{0xee}, ev.SerializedOutput, &ev.Signature)
	require.NoError(t, err)
	data, err = ix.Data()
	require.NoError(t, err)
	// disc + reqId + (u32 + output) + signature
	assert.Len(t, data, 8+32+4+1+97)
	assert.Equal(t, sm.PDAs.UserBalance(user, [20]byte{0xee}), ix.Accounts()[2].PublicKey)
}

func TestGetAccount(t *testing.T) {
	sm, ledger := newTestSolanaman(t)
	reqId := common.RandBytes32()

	_, err := sm.GetPendingWithdrawal(context.Background(), reqId)
	assert.ErrorIs(t, err, agreement.ErrNotFound)
	assert.False(t, agreement.Retryable(err))

	acc := &PendingErc20Withdrawal{
		Requester: solana.NewWallet().PublicKey(),
		Amount:    big.NewInt(5),
		Path:      "root",
		RequestId: reqId,
	}
	data, err := acc.MarshalBorsh()
	require.NoError(t, err)
	ledger.SetAccount(sm.PDAs.PendingWithdrawal(reqId), data)

	got, err := sm.GetPendingWithdrawal(context.Background(), reqId)
	require.NoError(t, err)
	assert.Equal(t, acc, got)
}

func TestSendAndConfirm(t *testing.T) {
	sm, ledger := newTestSolanaman(t)

	var seen *solana.Transaction
	ledger.OnSend = func(tx *solana.Transaction) ([]string, error) {
		seen = tx
		return []string{"Program log: Instruction: UpdateConfig"}, nil
	}

	sig, err := sm.UpdateConfig(context.Background(), [20]byte{1})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, sig, seen.Signatures[0])
	assert.Equal(t, sm.RelayerPublicKey(), seen.Message.AccountKeys[0])
	assert.NoError(t, seen.VerifySignatures())

	ledger.OnSend = func(tx *solana.Transaction) ([]string, error) {
		return nil, errors.New("Program log: AnchorError caused by account: pending_deposit. Error Code: AccountNotInitialized")
	}
	_, err = sm.ClaimErc20(context.Background(), common.RandBytes32(), solana.NewWallet().PublicKey(), [20]byte{}, randomEvent([]byte{1}))
	assert.ErrorIs(t, err, agreement.ErrChainSubmission)
	assert.True(t, IsAccountMissing(err))
}

func TestCachedReader(t *testing.T) {
	sm, ledger := newTestSolanaman(t)
	const ttl = 200 * time.Millisecond
	r := newCachedReader(sm.client, ttl, ttl, retry.WithBackoff(func(int) time.Duration { return 0 }))

	sig := ledger.AddTransaction([]string{"Program log: hello"})
	ctx := context.Background()

	logs, err := r.LogMessages(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, []string{"Program log: hello"}, logs)
	assert.Equal(t, 1, ledger.CallCount("getTransaction"))

	_, err = r.GetTransaction(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.CallCount("getTransaction"))

	// missing transactions are not retried
	var unknown solana.Signature
	unknown[0] = 0x42
	_, err = r.GetTransaction(ctx, unknown)
	assert.ErrorIs(t, err, agreement.ErrNotFound)
	assert.Equal(t, 2, ledger.CallCount("getTransaction"))

	sigs, err := r.GetSignaturesForAddress(ctx, sm.PDAs.ChainSignaturesProgram, DefaultScanLimit)
	require.NoError(t, err)
	assert.Len(t, sigs, 1)
	_, _ = r.GetSignaturesForAddress(ctx, sm.PDAs.ChainSignaturesProgram, DefaultScanLimit)
	assert.Equal(t, 1, ledger.CallCount("getSignaturesForAddress"))

	time.Sleep(ttl + 50*time.Millisecond)
	_, err = r.GetTransaction(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, 3, ledger.CallCount("getTransaction"))
	_, _ = r.GetSignaturesForAddress(ctx, sm.PDAs.ChainSignaturesProgram, DefaultScanLimit)
	assert.Equal(t, 2, ledger.CallCount("getSignaturesForAddress"))
}

func TestParsePrivateKey(t *testing.T) {
	w := solana.NewWallet()

	key, err := ParsePrivateKey(w.PrivateKey.String())
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), key.PublicKey())

	json := "["
	for i, b := range w.PrivateKey {
		if i > 0 {
			json += ","
		}
		json += big.NewInt(int64(b)).String()
	}
	json += "]"
	key, err = ParsePrivateKey(json)
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), key.PublicKey())

	_, err = ParsePrivateKey("[1,2,3]")
	assert.Error(t, err)

	_, err = ParsePublicKey("0xdeadbeef")
	assert.ErrorIs(t, err, agreement.ErrValidation)
}

var _ rpcClient = (*rpc.Client)(nil)
