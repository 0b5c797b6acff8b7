package solanaman

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SendHandler plays the custody program for a submitted transaction. It
// returns the program logs, or an error that is reported like a failed
// preflight.
type SendHandler func(tx *solana.Transaction) (logs []string, err error)

type simTx struct {
	sig  solana.Signature
	logs []string
}

// SimulatedLedger is an in-memory stand-in for a Solana RPC node.
type SimulatedLedger struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey][]byte
	txs      map[solana.Signature]*simTx
	history  []*simTx // newest first
	nonce    uint64
	calls    map[string]int

	OnSend SendHandler
}

func NewSimulatedLedger() *SimulatedLedger {
	return &SimulatedLedger{
		accounts: make(map[solana.PublicKey][]byte),
		txs:      make(map[solana.Signature]*simTx),
		calls:    make(map[string]int),
	}
}

// NewSimulatedSolanaman returns a Solanaman backed by ledger with fast
// confirmation polling.
func NewSimulatedSolanaman(ledger *SimulatedLedger, relayer solana.PrivateKey) (*Solanaman, error) {
	return newSolanaman(&Config{
		ConfirmInterval: 5 * time.Millisecond,
		ConfirmTimeout:  time.Second,
	}, ledger, relayer)
}

func (l *SimulatedLedger) SetAccount(pk solana.PublicKey, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[pk] = append([]byte(nil), data...)
}

func (l *SimulatedLedger) DeleteAccount(pk solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, pk)
}

func (l *SimulatedLedger) HasAccount(pk solana.PublicKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.accounts[pk]
	return ok
}

// AddTransaction records a confirmed transaction with the given logs, as
// if another party had submitted it.
func (l *SimulatedLedger) AddTransaction(logs []string) solana.Signature {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nonce++
	var sig solana.Signature
	binary.BigEndian.PutUint64(sig[:8], l.nonce)
	sig[63] = 0xff
	l.record(sig, logs)
	return sig
}

func (l *SimulatedLedger) record(sig solana.Signature, logs []string) {
	tx := &simTx{sig: sig, logs: logs}
	l.txs[sig] = tx
	l.history = append([]*simTx{tx}, l.history...)
}

// CallCount is the number of calls made to an RPC method so far.
func (l *SimulatedLedger) CallCount(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

func (l *SimulatedLedger) count(method string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[method]++
}

func (l *SimulatedLedger) GetAccountInfoWithOpts(_ context.Context, account solana.PublicKey, _ *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	l.count("getAccountInfo")
	l.mu.Lock()
	defer l.mu.Unlock()

	data, ok := l.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{
		Value: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(append([]byte(nil), data...))},
	}, nil
}

func (l *SimulatedLedger) GetLatestBlockhash(_ context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	l.count("getLatestBlockhash")
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nonce++
	var hash solana.Hash
	binary.BigEndian.PutUint64(hash[:8], l.nonce)
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: hash},
	}, nil
}

func (l *SimulatedLedger) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	l.count("sendTransaction")

	var logs []string
	if l.OnSend != nil {
		var err error
		if logs, err = l.OnSend(tx); err != nil {
			return solana.Signature{}, err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	sig := tx.Signatures[0]
	l.record(sig, logs)
	return sig, nil
}

func (l *SimulatedLedger) GetSignatureStatuses(_ context.Context, _ bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	l.count("getSignatureStatuses")
	l.mu.Lock()
	defer l.mu.Unlock()

	res := &rpc.GetSignatureStatusesResult{Value: make([]*rpc.SignatureStatusesResult, len(sigs))}
	for i, sig := range sigs {
		if _, ok := l.txs[sig]; ok {
			res.Value[i] = &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
		}
	}
	return res, nil
}

func (l *SimulatedLedger) GetSignaturesForAddressWithOpts(_ context.Context, _ solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	l.count("getSignaturesForAddress")
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.history)
	if opts != nil && opts.Limit != nil && *opts.Limit < n {
		n = *opts.Limit
	}
	out := make([]*rpc.TransactionSignature, 0, n)
	for _, tx := range l.history[:n] {
		out = append(out, &rpc.TransactionSignature{Signature: tx.sig})
	}
	return out, nil
}

func (l *SimulatedLedger) GetTransaction(_ context.Context, sig solana.Signature, _ *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	l.count("getTransaction")
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.txs[sig]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetTransactionResult{
		Meta: &rpc.TransactionMeta{LogMessages: append([]string(nil), tx.logs...)},
	}, nil
}
