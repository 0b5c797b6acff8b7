package solanaman

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/retry"
	"github.com/TEENet-io/vault-relayer/rpccache"
)

// CachedReader fronts the two reads used to search for signer events.
// Both are rate limited by public RPC providers and are polled repeatedly
// by every in-flight flow.
type CachedReader struct {
	client rpcClient

	txs  *rpccache.Cache[solana.Signature, *rpc.GetTransactionResult]
	sigs *rpccache.Cache[string, []*rpc.TransactionSignature]

	retryOpts []retry.Option
}

func (sm *Solanaman) NewCachedReader(opts ...retry.Option) *CachedReader {
	return newCachedReader(sm.client, TransactionCacheTTL, SignaturesCacheTTL, opts...)
}

func newCachedReader(client rpcClient, txTTL, sigsTTL time.Duration, opts ...retry.Option) *CachedReader {
	return &CachedReader{
		client:    client,
		txs:       rpccache.New[solana.Signature, *rpc.GetTransactionResult]("getTransaction", transactionCacheSize, txTTL),
		sigs:      rpccache.New[string, []*rpc.TransactionSignature]("getSignaturesForAddress", signaturesCacheSize, sigsTTL),
		retryOpts: append([]retry.Option{retry.WithShouldRetry(retry.DefaultShouldRetry)}, opts...),
	}
}

func (r *CachedReader) opts(name string) []retry.Option {
	out := make([]retry.Option, 0, len(r.retryOpts)+1)
	out = append(out, r.retryOpts...)
	return append(out, retry.WithName(name))
}

func (r *CachedReader) GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	return r.txs.GetOrLoad(ctx, sig, func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		return retry.Do(ctx, func(ctx context.Context) (*rpc.GetTransactionResult, error) {
			maxVersion := uint64(0)
			res, err := r.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
				Encoding:                       solana.EncodingBase64,
				Commitment:                     DefaultCommitment,
				MaxSupportedTransactionVersion: &maxVersion,
			})
			if errors.Is(err, rpc.ErrNotFound) || (err == nil && res == nil) {
				return nil, agreement.NotFoundError("getTransaction", fmt.Errorf("transaction %s", sig))
			}
			if err != nil {
				return nil, agreement.RpcError("getTransaction", err)
			}
			return res, nil
		}, r.opts("getTransaction")...)
	})
}

func (r *CachedReader) GetSignaturesForAddress(ctx context.Context, account solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error) {
	key := fmt.Sprintf("%s:%d", account, limit)
	return r.sigs.GetOrLoad(ctx, key, func(ctx context.Context) ([]*rpc.TransactionSignature, error) {
		return retry.Do(ctx, func(ctx context.Context) ([]*rpc.TransactionSignature, error) {
			res, err := r.client.GetSignaturesForAddressWithOpts(ctx, account, &rpc.GetSignaturesForAddressOpts{
				Limit:      &limit,
				Commitment: DefaultCommitment,
			})
			if err != nil {
				return nil, agreement.RpcError("getSignaturesForAddress", err)
			}
			return res, nil
		}, r.opts("getSignaturesForAddress")...)
	})
}

// LogMessages returns the program logs of a transaction, nil if the node
// has no metadata for it.
func (r *CachedReader) LogMessages(ctx context.Context, sig solana.Signature) ([]string, error) {
	res, err := r.GetTransaction(ctx, sig)
	if err != nil {
		return nil, err
	}
	if res.Meta == nil {
		return nil, nil
	}
	return res.Meta.LogMessages, nil
}
