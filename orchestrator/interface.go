// Implement following interfaces to plug a ledger into the orchestrator.

package orchestrator

import (
	"context"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/solanaman"
)

// CustodyLedger reads and settles custody program accounts.
// *solanaman.Solanaman implements it.
type CustodyLedger interface {
	GetPendingDeposit(ctx context.Context, requestId [32]byte) (*solanaman.PendingErc20Deposit, error)
	GetPendingWithdrawal(ctx context.Context, requestId [32]byte) (*solanaman.PendingErc20Withdrawal, error)
	GetVaultConfig(ctx context.Context) (*solanaman.VaultConfig, error)

	// Submits deposit_erc20, which also asks the MPC network to sign the sweep.
	DepositErc20(ctx context.Context, p *solanaman.DepositErc20Params) (solana.Signature, error)

	ClaimErc20(ctx context.Context, requestId [32]byte, requester solana.PublicKey, erc20 [20]byte, ev *agreement.SignatureEvent) (solana.Signature, error)
	CompleteWithdrawErc20(ctx context.Context, requestId [32]byte, requester solana.PublicKey, erc20 [20]byte, ev *agreement.SignatureEvent) (solana.Signature, error)
}

// EvmLedger builds, broadcasts and observes EVM transactions.
// *etherman.Etherman implements it.
type EvmLedger interface {
	BuildErc20Transfer(ctx context.Context, from, token, recipient ethcommon.Address, amount *big.Int) (*types.DynamicFeeTx, error)
	BroadcastSigned(ctx context.Context, tx *types.DynamicFeeTx, sig *agreement.MpcSignature, expectedFrom ethcommon.Address) (*types.Transaction, error)
	WaitReceipt(ctx context.Context, hash ethcommon.Hash) (*types.Receipt, error)
	Erc20BalanceOf(ctx context.Context, token, owner ethcommon.Address) (*big.Int, error)
}

// CompletionStrategy is the direction specific part of a flow.
type CompletionStrategy interface {
	Direction() agreement.Direction

	// Validate loads the pending ledger account of the request. A missing
	// account is a NotFoundError and ends the flow.
	Validate(ctx context.Context, requestId [32]byte) error

	// Complete settles the request on both ledgers once the MPC network has
	// signed the EVM transaction.
	Complete(ctx context.Context, ev *agreement.SignatureEvent) (*agreement.SettlementResult, error)
}

// Initiator is implemented by strategies that must submit a ledger
// transaction before there is anything to validate.
type Initiator interface {
	Initiate(ctx context.Context, requestId [32]byte) (solana.Signature, error)
}

// forgetter lets the event source drop what it holds for a finished request.
type forgetter interface {
	Forget(requestId [32]byte)
}
