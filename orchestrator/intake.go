package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/common"
	"github.com/TEENet-io/vault-relayer/etherman"
	"github.com/TEENet-io/vault-relayer/mpcderive"
)

var (
	ErrDepositAddressMismatch = errors.New("ethereum address is not the user's deposit address")
	ErrNoBalance              = errors.New("no token balance detected")
)

// Bounds of the random amount shaved off a deposit so that two deposits
// of the same balance get different request ids.
const (
	minAmountReduction = 1
	maxAmountReduction = 100
)

type DepositNotice struct {
	User            solana.PublicKey
	Erc20           ethcommon.Address
	EthereumAddress ethcommon.Address
}

type WithdrawalNotice struct {
	RequestId [32]byte
	Erc20     ethcommon.Address
	TxParams  *etherman.TxParams
}

// NotifyWithdrawal starts the flow of a withdrawal the user already
// submitted (or is about to submit) to the custody ledger.
func (o *Orchestrator) NotifyWithdrawal(ctx context.Context, n *WithdrawalNotice, mode ResponseMode) (*Ack, error) {
	if n.TxParams == nil || n.TxParams.ChainId == nil || n.TxParams.MaxFeePerGas == nil || n.TxParams.MaxPriorityFeePerGas == nil {
		return nil, agreement.ValidationError("notify withdrawal", "incomplete transaction params")
	}
	return o.Submit(ctx, &FlowRequest{
		Request: &agreement.BridgeRequest{
			RequestId:    n.RequestId,
			Direction:    agreement.Withdrawal,
			TokenAddress: n.Erc20,
		},
		Strategy: o.NewWithdrawalCompletion(n.Erc20, n.TxParams),
	}, mode)
}

// intakeKey is the tracker key of a deposit intake, which has no request
// id until the balance is known.
func intakeKey(user solana.PublicKey, erc20 ethcommon.Address) [32]byte {
	return crypto.Keccak256Hash([]byte("deposit-intake"), user[:], erc20[:])
}

// NotifyDeposit checks the deposit address synchronously, then waits for
// the user's tokens to arrive and runs the deposit flow. Only one intake
// per user and token runs at a time.
func (o *Orchestrator) NotifyDeposit(ctx context.Context, n *DepositNotice, mode ResponseMode) (*Ack, error) {
	vaultAuthority := o.pdas.VaultAuthority(n.User)
	expected, err := o.deriver.VaultAuthorityAddress(vaultAuthority, n.User)
	if err != nil {
		return nil, agreement.DerivationError("deposit address", err)
	}
	if expected != n.EthereumAddress {
		return nil, agreement.ValidationError("notify deposit", "%v: got %s, want %s",
			ErrDepositAddressMismatch, n.EthereumAddress.Hex(), expected.Hex())
	}

	key := intakeKey(n.User, n.Erc20)
	admitted, err := o.tracker.Admit(ctx, key)
	if err != nil {
		return nil, err
	}
	if !admitted {
		o.metrics.Duplicates.WithLabelValues(string(agreement.Deposit)).Inc()
		return &Ack{RequestId: key, Duplicate: true, Message: MsgAlreadyProcessing},
			agreement.DuplicateRequestError("notify deposit", key)
	}

	intake := func(ctx context.Context) error {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), DefaultReleaseTimeout)
			defer cancel()
			if err := o.tracker.Release(ctx, key); err != nil {
				logger.Errorf("failed to release deposit intake: %v", err)
			}
		}()
		_, err := o.runDeposit(ctx, n, vaultAuthority)
		return err
	}

	if mode == ModeSync {
		err := intake(ctx)
		return &Ack{RequestId: key, Accepted: err == nil, Message: errMessage(err)}, err
	}

	if err := o.sup.Go("deposit-intake:"+n.User.String(), intake); err != nil {
		_ = o.tracker.Release(context.Background(), key)
		return nil, err
	}
	ack := &Ack{RequestId: key, Accepted: true, Message: MsgAccepted}
	if mode == ModeAcknowledge {
		ack.Message = MsgDepositProcessingStarted
	}
	return ack, nil
}

func errMessage(err error) string {
	if err == nil {
		return MsgAccepted
	}
	return err.Error()
}

func (o *Orchestrator) runDeposit(ctx context.Context, n *DepositNotice, vaultAuthority solana.PublicKey) (*agreement.FlowRecord, error) {
	log := logger.WithFields(logger.Fields{
		"user":  n.User.String(),
		"erc20": n.Erc20.Hex(),
		"from":  n.EthereumAddress.Hex(),
	})

	if o.cfg.DepositSettleDelay > 0 {
		log.Debugf("waiting %v before watching the deposit address", o.cfg.DepositSettleDelay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.cfg.DepositSettleDelay):
		}
	}

	balance, err := o.waitForBalance(ctx, n.Erc20, n.EthereumAddress)
	if err != nil {
		return nil, err
	}
	amount := reduceAmount(balance, common.RandBigInt(minAmountReduction, maxAmountReduction))
	log.WithField("amount", amount).Info("deposit detected")

	vault, err := o.deriver.GlobalVaultAddress(o.pdas.GlobalVaultAuthority())
	if err != nil {
		return nil, agreement.DerivationError("global vault address", err)
	}
	tx, err := o.evm.BuildErc20Transfer(ctx, n.EthereumAddress, n.Erc20, vault, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to build sweep transaction: %w", err)
	}
	rlp, err := etherman.UnsignedRLP(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sweep transaction: %w", err)
	}
	requestId := mpcderive.GenerateRequestId(mpcderive.NewSignRequest(vaultAuthority.String(), rlp, n.User.String()))

	ack, err := o.Submit(ctx, &FlowRequest{
		Request: &agreement.BridgeRequest{
			RequestId:    requestId,
			Direction:    agreement.Deposit,
			TokenAddress: n.Erc20,
			Amount:       amount,
			Requester:    n.User,
		},
		Strategy: o.NewDepositCompletion(n.User, n.Erc20, n.EthereumAddress, amount, tx),
	}, ModeSync)
	if err != nil {
		return nil, err
	}
	if ack.Record.State != agreement.Completed {
		return ack.Record, fmt.Errorf("deposit %s: %s", ack.Record.State, ack.Record.Error)
	}
	return ack.Record, nil
}

// waitForBalance polls the token balance of owner until it is positive.
// Read errors are swallowed until the poll window ends.
func (o *Orchestrator) waitForBalance(ctx context.Context, token, owner ethcommon.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.BalancePollTimeout)
	defer cancel()

	ticker := time.NewTicker(o.cfg.BalancePollInterval)
	defer ticker.Stop()

	for {
		balance, err := o.evm.Erc20BalanceOf(ctx, token, owner)
		if err == nil && balance.Sign() > 0 {
			return balance, nil
		}
		if err != nil && ctx.Err() == nil {
			logger.WithField("owner", owner.Hex()).Debugf("balance read failed: %v", err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, agreement.TimeoutError("wait balance", fmt.Errorf("%w at %s after %v", ErrNoBalance, owner.Hex(), o.cfg.BalancePollTimeout))
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// reduceAmount subtracts r from amount when amount is larger.
func reduceAmount(amount, r *big.Int) *big.Int {
	if amount.Cmp(r) > 0 {
		return new(big.Int).Sub(amount, r)
	}
	return new(big.Int).Set(amount)
}
