package solanaman

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/vault-relayer/agreement"
)

var (
	ErrTransactionFailed   = errors.New("transaction failed on chain")
	ErrConfirmationTimeout = errors.New("transaction not confirmed in time")
)

// rpcClient is the subset of *rpc.Client the relayer uses.
type rpcClient interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Solanaman talks to the custody program. Every transaction it sends is
// paid for and signed by the relayer key.
type Solanaman struct {
	cfg     *Config
	client  rpcClient
	relayer solana.PrivateKey

	PDAs    *PDAs
	Builder *Builder
}

func NewSolanaman(cfg *Config, relayer solana.PrivateKey) (*Solanaman, error) {
	return newSolanaman(cfg, rpc.New(cfg.URL), relayer)
}

func newSolanaman(cfg *Config, client rpcClient, relayer solana.PrivateKey) (*Solanaman, error) {
	cfg = cfg.withDefaults()
	pdas, err := NewPDAs(cfg.BridgeProgramId, cfg.ChainSignaturesProgramId)
	if err != nil {
		return nil, err
	}
	return &Solanaman{
		cfg:     cfg,
		client:  client,
		relayer: relayer,
		PDAs:    pdas,
		Builder: NewBuilder(pdas, relayer.PublicKey()),
	}, nil
}

func (sm *Solanaman) RelayerPublicKey() solana.PublicKey {
	return sm.relayer.PublicKey()
}

// GetAccountData returns the raw data of an account. A missing account is a
// NotFoundError, anything else an RpcError.
func (sm *Solanaman) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	res, err := sm.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: DefaultCommitment,
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (res == nil || res.Value == nil)) {
		return nil, agreement.NotFoundError("getAccountInfo", fmt.Errorf("account %s", account))
	}
	if err != nil {
		return nil, agreement.RpcError("getAccountInfo", err)
	}
	return res.Value.Data.GetBinary(), nil
}

func (sm *Solanaman) GetPendingDeposit(ctx context.Context, requestId [32]byte) (*PendingErc20Deposit, error) {
	data, err := sm.GetAccountData(ctx, sm.PDAs.PendingDeposit(requestId))
	if err != nil {
		return nil, err
	}
	return DecodePendingDeposit(data)
}

func (sm *Solanaman) GetPendingWithdrawal(ctx context.Context, requestId [32]byte) (*PendingErc20Withdrawal, error) {
	data, err := sm.GetAccountData(ctx, sm.PDAs.PendingWithdrawal(requestId))
	if err != nil {
		return nil, err
	}
	return DecodePendingWithdrawal(data)
}

func (sm *Solanaman) GetUserBalance(ctx context.Context, user solana.PublicKey, erc20 [20]byte) (*UserErc20Balance, error) {
	data, err := sm.GetAccountData(ctx, sm.PDAs.UserBalance(user, erc20))
	if err != nil {
		return nil, err
	}
	return DecodeUserBalance(data)
}

func (sm *Solanaman) GetVaultConfig(ctx context.Context) (*VaultConfig, error) {
	data, err := sm.GetAccountData(ctx, sm.PDAs.VaultConfig())
	if err != nil {
		return nil, err
	}
	return DecodeVaultConfig(data)
}

// SendAndConfirm signs ixs with the relayer key, submits them and waits
// until the transaction is confirmed or fails.
func (sm *Solanaman) SendAndConfirm(ctx context.Context, ixs ...solana.Instruction) (solana.Signature, error) {
	block, err := sm.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, agreement.RpcError("getLatestBlockhash", err)
	}

	tx, err := solana.NewTransaction(ixs, block.Value.Blockhash, solana.TransactionPayer(sm.relayer.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(sm.relayer.PublicKey()) {
			return &sm.relayer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := sm.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: DefaultCommitment,
	})
	if err != nil {
		return solana.Signature{}, agreement.ChainSubmissionError("sendTransaction", err)
	}
	logger.WithField("sig", sig.String()).Debug("solana transaction sent")

	if err := sm.waitConfirmed(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

func (sm *Solanaman) waitConfirmed(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, sm.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(sm.cfg.ConfirmInterval)
	defer ticker.Stop()

	for {
		res, err := sm.client.GetSignatureStatuses(ctx, true, sig)
		if err == nil && res != nil && len(res.Value) > 0 && res.Value[0] != nil {
			st := res.Value[0]
			if st.Err != nil {
				return agreement.ChainSubmissionError("confirmTransaction",
					fmt.Errorf("%w: %s: %v", ErrTransactionFailed, sig, st.Err))
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		} else if err != nil {
			logger.WithField("sig", sig.String()).Debugf("failed to get signature status: %v", err)
		}

		select {
		case <-ctx.Done():
			return agreement.TimeoutError("confirmTransaction", fmt.Errorf("%w: %s", ErrConfirmationTimeout, sig))
		case <-ticker.C:
		}
	}
}

func (sm *Solanaman) DepositErc20(ctx context.Context, p *DepositErc20Params) (solana.Signature, error) {
	ix, err := sm.Builder.DepositErc20(p)
	if err != nil {
		return solana.Signature{}, err
	}
	return sm.SendAndConfirm(ctx, ix)
}

func (sm *Solanaman) ClaimErc20(ctx context.Context, requestId [32]byte, requester solana.PublicKey, erc20 [20]byte, ev *agreement.SignatureEvent) (solana.Signature, error) {
	ix, err := sm.Builder.ClaimErc20(requestId, requester, erc20, ev.SerializedOutput, &ev.Signature)
	if err != nil {
		return solana.Signature{}, err
	}
	return sm.SendAndConfirm(ctx, ix)
}

func (sm *Solanaman) CompleteWithdrawErc20(ctx context.Context, requestId [32]byte, requester solana.PublicKey, erc20 [20]byte, ev *agreement.SignatureEvent) (solana.Signature, error) {
	ix, err := sm.Builder.CompleteWithdrawErc20(requestId, requester, erc20, ev.SerializedOutput, &ev.Signature)
	if err != nil {
		return solana.Signature{}, err
	}
	return sm.SendAndConfirm(ctx, ix)
}

func (sm *Solanaman) InitializeConfig(ctx context.Context, mpcRootSigner [20]byte) (solana.Signature, error) {
	ix, err := sm.Builder.InitializeConfig(mpcRootSigner)
	if err != nil {
		return solana.Signature{}, err
	}
	return sm.SendAndConfirm(ctx, ix)
}

func (sm *Solanaman) UpdateConfig(ctx context.Context, mpcRootSigner [20]byte) (solana.Signature, error) {
	ix, err := sm.Builder.UpdateConfig(mpcRootSigner)
	if err != nil {
		return solana.Signature{}, err
	}
	return sm.SendAndConfirm(ctx, ix)
}

// IsAccountMissing reports whether a submission failed because an account
// the instruction needs is gone, e.g. a pending deposit already claimed.
func IsAccountMissing(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, agreement.ErrNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Account does not exist") ||
		strings.Contains(msg, "AccountNotFound") ||
		strings.Contains(msg, "AccountNotInitialized")
}
