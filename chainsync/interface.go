package chainsync

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// LogReader is how the scanner reads the chain signatures program history.
// solanaman.CachedReader implements it.
type LogReader interface {
	GetSignaturesForAddress(ctx context.Context, account solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error)
	LogMessages(ctx context.Context, sig solana.Signature) ([]string, error)
}
