package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/common"
	"github.com/TEENet-io/vault-relayer/etherman"
	"github.com/TEENet-io/vault-relayer/mpcderive"
	"github.com/TEENet-io/vault-relayer/retry"
	"github.com/TEENet-io/vault-relayer/solanaman"
)

var (
	ErrTokenMismatch  = errors.New("erc20 address does not match the pending account")
	ErrRootSignerZero = errors.New("vault config has no mpc root signer")
)

// pollPending reads a pending account, waiting up to wait for it to appear.
// Other errors go through the retry policy.
func pollPending[T any](ctx context.Context, o *Orchestrator, name string, wait time.Duration, get func(ctx context.Context) (T, error)) (T, error) {
	deadline := o.now().Add(wait)
	for {
		v, err := retry.Do(ctx, get, o.retryOptions(name)...)
		if err == nil || !errors.Is(err, agreement.ErrNotFound) || !o.now().Before(deadline) {
			return v, err
		}

		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-time.After(o.cfg.PollInterval):
		}
	}
}

// rootSigner reads the MPC root signer from the vault config.
func (o *Orchestrator) rootSigner(ctx context.Context) (ethcommon.Address, error) {
	cfg, err := retry.Do(ctx, o.ledger.GetVaultConfig, o.retryOptions("getVaultConfig")...)
	if err != nil {
		return ethcommon.Address{}, err
	}
	addr, err := mpcderive.MpcAddressFromBytes(cfg.MpcRootSignerAddress[:])
	if err != nil {
		return ethcommon.Address{}, err
	}
	if addr == (ethcommon.Address{}) {
		return ethcommon.Address{}, agreement.ValidationError("vault config", "%v", ErrRootSignerZero)
	}
	if addr != o.deriver.RootSignerAddress() {
		logger.Warnf("vault config root signer %s differs from the configured base key's %s",
			addr.Hex(), o.deriver.RootSignerAddress().Hex())
	}
	return addr, nil
}

// settleEvm broadcasts the MPC signed transaction and waits for a
// successful receipt.
func (o *Orchestrator) settleEvm(ctx context.Context, tx *types.DynamicFeeTx, sig *agreement.MpcSignature, from ethcommon.Address) (ethcommon.Hash, error) {
	signed, err := o.evm.BroadcastSigned(ctx, tx, sig, from)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.ReceiptTimeout)
	defer cancel()
	if _, err := o.evm.WaitReceipt(ctx, signed.Hash()); err != nil {
		return signed.Hash(), err
	}
	return signed.Hash(), nil
}

// awaitResponse waits for the read response of the EVM transaction and
// checks it was signed by the root signer.
func (o *Orchestrator) awaitResponse(ctx context.Context, requestId [32]byte, dir agreement.Direction, rootSigner ethcommon.Address) (*agreement.SignatureEvent, error) {
	ev, err := o.WaitForEvent(ctx, requestId, agreement.ReadResponded, o.cfg.eventTimeout(dir))
	if err != nil {
		return nil, err
	}
	if err := mpcderive.VerifyResponse(ev, rootSigner); err != nil {
		return nil, err
	}
	return ev, nil
}

// WithdrawalCompletion pays a withdrawal out of the global vault and then
// completes it on the custody ledger.
type WithdrawalCompletion struct {
	o *Orchestrator

	Erc20    ethcommon.Address
	TxParams *etherman.TxParams

	requestId  [32]byte
	pending    *solanaman.PendingErc20Withdrawal
	rootSigner ethcommon.Address
	vault      ethcommon.Address
	tx         *types.DynamicFeeTx
}

func (o *Orchestrator) NewWithdrawalCompletion(erc20 ethcommon.Address, txParams *etherman.TxParams) *WithdrawalCompletion {
	return &WithdrawalCompletion{o: o, Erc20: erc20, TxParams: txParams}
}

func (w *WithdrawalCompletion) Direction() agreement.Direction { return agreement.Withdrawal }

func (w *WithdrawalCompletion) Validate(ctx context.Context, requestId [32]byte) error {
	o := w.o
	pending, err := pollPending(ctx, o, "getPendingWithdrawal", o.cfg.PendingAccountWait,
		func(ctx context.Context) (*solanaman.PendingErc20Withdrawal, error) {
			return o.ledger.GetPendingWithdrawal(ctx, requestId)
		})
	if err != nil {
		return err
	}
	if ethcommon.Address(pending.Erc20Address) != w.Erc20 {
		return agreement.ValidationError("validate withdrawal", "%v: got %s, pending %s",
			ErrTokenMismatch, w.Erc20.Hex(), ethcommon.Address(pending.Erc20Address).Hex())
	}

	rootSigner, err := o.rootSigner(ctx)
	if err != nil {
		return err
	}
	vault, err := o.deriver.GlobalVaultAddress(o.pdas.GlobalVaultAuthority())
	if err != nil {
		return agreement.DerivationError("global vault address", err)
	}

	// The signed payload is rebuilt from the pending account so that the
	// transfer is exactly the one the user requested.
	data, err := etherman.TransferCalldata(ethcommon.Address(pending.RecipientAddress), pending.Amount)
	if err != nil {
		return agreement.ValidationError("validate withdrawal", "%v", err)
	}
	tx := w.TxParams.DynamicFeeTx()
	token := w.Erc20
	tx.To = &token
	tx.Data = data

	w.requestId = requestId
	w.pending = pending
	w.rootSigner = rootSigner
	w.vault = vault
	w.tx = tx
	return nil
}

func (w *WithdrawalCompletion) Complete(ctx context.Context, ev *agreement.SignatureEvent) (*agreement.SettlementResult, error) {
	o := w.o
	res := &agreement.SettlementResult{}

	hash, err := o.settleEvm(ctx, w.tx, &ev.Signature, w.vault)
	res.EvmTxHash = hash
	if err != nil {
		return res, err
	}

	readEv, err := o.awaitResponse(ctx, w.requestId, agreement.Withdrawal, w.rootSigner)
	if err != nil {
		return res, err
	}

	// complete_withdraw_erc20 closes the pending account, so a missing
	// account after an earlier attempt means that attempt landed even
	// though its confirmation was not seen.
	attempts := 0
	sig, err := retry.Do(ctx, func(ctx context.Context) (solana.Signature, error) {
		attempts++
		return o.ledger.CompleteWithdrawErc20(ctx, w.requestId, w.pending.Requester, w.Erc20, readEv)
	}, append(o.retryOptions("completeWithdrawErc20"), retry.WithShouldRetry(func(err error) bool {
		return !solanaman.IsAccountMissing(err) && retry.DefaultShouldRetry(err)
	}))...)
	if err != nil {
		if attempts > 1 && solanaman.IsAccountMissing(err) {
			logger.WithField("reqId", common.Shorten(common.Bytes32ToHexStr(w.requestId), 8)).
				Info("withdrawal already completed by an earlier attempt")
			res.AlreadySettled = true
			return res, nil
		}
		return res, err
	}
	res.LedgerTxSig = sig
	return res, nil
}

// DepositCompletion sweeps a user's deposit address into the global vault
// and then claims the deposit on the custody ledger.
type DepositCompletion struct {
	o *Orchestrator

	Requester solana.PublicKey
	Erc20     ethcommon.Address
	Amount    *big.Int

	// From is the user's derived deposit address, the signer of Tx.
	From ethcommon.Address
	Tx   *types.DynamicFeeTx

	requestId  [32]byte
	pending    *solanaman.PendingErc20Deposit
	rootSigner ethcommon.Address
}

func (o *Orchestrator) NewDepositCompletion(requester solana.PublicKey, erc20, from ethcommon.Address, amount *big.Int, tx *types.DynamicFeeTx) *DepositCompletion {
	return &DepositCompletion{o: o, Requester: requester, Erc20: erc20, From: from, Amount: amount, Tx: tx}
}

func (d *DepositCompletion) Direction() agreement.Direction { return agreement.Deposit }

// Initiate submits deposit_erc20, which makes the custody program ask the
// MPC network for a signature over Tx.
func (d *DepositCompletion) Initiate(ctx context.Context, requestId [32]byte) (solana.Signature, error) {
	sig, err := d.o.ledger.DepositErc20(ctx, &solanaman.DepositErc20Params{
		RequestId:    requestId,
		Requester:    d.Requester,
		Erc20Address: d.Erc20,
		Amount:       d.Amount,
		TxParams:     evmTransactionParams(d.Tx),
	})
	if err != nil {
		return sig, fmt.Errorf("failed to submit deposit: %w", err)
	}
	logger.WithFields(logger.Fields{
		"user": d.Requester.String(),
		"sig":  sig.String(),
	}).Info("deposit submitted to custody ledger")
	return sig, nil
}

func (d *DepositCompletion) Validate(ctx context.Context, requestId [32]byte) error {
	o := d.o
	pending, err := pollPending(ctx, o, "getPendingDeposit", 0,
		func(ctx context.Context) (*solanaman.PendingErc20Deposit, error) {
			return o.ledger.GetPendingDeposit(ctx, requestId)
		})
	if err != nil {
		return err
	}
	rootSigner, err := o.rootSigner(ctx)
	if err != nil {
		return err
	}

	d.requestId = requestId
	d.pending = pending
	d.rootSigner = rootSigner
	return nil
}

func (d *DepositCompletion) Complete(ctx context.Context, ev *agreement.SignatureEvent) (*agreement.SettlementResult, error) {
	o := d.o
	res := &agreement.SettlementResult{}

	hash, err := o.settleEvm(ctx, d.Tx, &ev.Signature, d.From)
	res.EvmTxHash = hash
	if err != nil {
		return res, err
	}

	readEv, err := o.awaitResponse(ctx, d.requestId, agreement.Deposit, d.rootSigner)
	if err != nil {
		return res, err
	}

	sig, err := retry.Do(ctx, func(ctx context.Context) (solana.Signature, error) {
		return o.ledger.ClaimErc20(ctx, d.requestId, d.pending.Requester, d.pending.Erc20Address, readEv)
	}, o.retryOptions("claimErc20")...)
	if err != nil {
		if solanaman.IsAccountMissing(err) {
			logger.WithField("user", d.Requester.String()).Info("deposit already claimed")
			res.AlreadySettled = true
			return res, nil
		}
		return res, err
	}
	res.LedgerTxSig = sig
	return res, nil
}

// evmTransactionParams is the custody program's view of tx.
func evmTransactionParams(tx *types.DynamicFeeTx) *solanaman.EvmTransactionParams {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	return &solanaman.EvmTransactionParams{
		Value:                value,
		GasLimit:             new(big.Int).SetUint64(tx.Gas),
		MaxFeePerGas:         tx.GasFeeCap,
		MaxPriorityFeePerGas: tx.GasTipCap,
		Nonce:                tx.Nonce,
		ChainId:              tx.ChainID.Uint64(),
	}
}
