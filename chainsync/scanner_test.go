package chainsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/common"
	"github.com/TEENet-io/vault-relayer/solanaman"
)

func randEvent(output []byte) *agreement.SignatureEvent {
	ev := &agreement.SignatureEvent{
		RequestId:        common.RandBytes32(),
		Responder:        solana.NewWallet().PublicKey(),
		SerializedOutput: output,
	}
	ev.Signature.S = common.RandBytes32()
	return ev
}

func eventLog(t *testing.T, kind agreement.EventKind, ev *agreement.SignatureEvent) string {
	line, err := solanaman.EncodeEventLog(kind, ev)
	require.NoError(t, err)
	return line
}

func newTestScanner(t *testing.T) (*Scanner, *solanaman.SimulatedLedger) {
	ledger := solanaman.NewSimulatedLedger()
	sm, err := solanaman.NewSimulatedSolanaman(ledger, solana.NewWallet().PrivateKey)
	require.NoError(t, err)

	return NewScanner(ScannerConfig{
		ChainSignaturesProgram: sm.PDAs.ChainSignaturesProgram,
		IntervalScan:           10 * time.Millisecond,
	}, sm.NewCachedReader()), ledger
}

func TestPoll(t *testing.T) {
	s, ledger := newTestScanner(t)
	ctx := context.Background()

	sigEv := randEvent(nil)
	readEv := randEvent([]byte{1})
	ledger.AddTransaction([]string{"Program log: Instruction: Respond", eventLog(t, agreement.SignatureResponded, sigEv)})
	ledger.AddTransaction([]string{eventLog(t, agreement.ReadResponded, readEv)})

	ev, ok, err := s.Poll(ctx, sigEv.RequestId, agreement.SignatureResponded)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sigEv, ev)

	// the kind must match as well as the request id
	_, ok, err = s.Poll(ctx, sigEv.RequestId, agreement.ReadResponded)
	require.NoError(t, err)
	assert.False(t, ok)

	ev, ok, err = s.Poll(ctx, readEv.RequestId, agreement.ReadResponded)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1}, ev.SerializedOutput)

	// both transactions were fetched once, later polls hit the cache
	assert.Equal(t, 2, ledger.CallCount("getTransaction"))
	assert.Equal(t, 1, ledger.CallCount("getSignaturesForAddress"))
}

func TestForget(t *testing.T) {
	s, ledger := newTestScanner(t)
	ctx := context.Background()

	ev := randEvent(nil)
	ledger.AddTransaction([]string{eventLog(t, agreement.SignatureResponded, ev)})

	// unwatched events are not kept
	require.NoError(t, s.Scan(ctx))
	_, ok := s.lookup(ev.RequestId, agreement.SignatureResponded)
	require.False(t, ok)

	s.Watch(ev.RequestId)
	require.NoError(t, s.Scan(ctx))
	_, ok = s.lookup(ev.RequestId, agreement.SignatureResponded)
	require.True(t, ok)

	s.Forget(ev.RequestId)
	_, ok = s.lookup(ev.RequestId, agreement.SignatureResponded)
	assert.False(t, ok)

	// the event is still in the scanned window but stays forgotten
	require.NoError(t, s.Scan(ctx))
	_, ok = s.lookup(ev.RequestId, agreement.SignatureResponded)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestScanKeepsOnlyWatchedEvents(t *testing.T) {
	s, ledger := newTestScanner(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		ledger.AddTransaction([]string{eventLog(t, agreement.SignatureResponded, randEvent(nil))})
	}
	own := randEvent(nil)
	ledger.AddTransaction([]string{eventLog(t, agreement.SignatureResponded, own)})

	_, ok, err := s.Poll(ctx, own.RequestId, agreement.SignatureResponded)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, s.Len())

	s.Forget(own.RequestId)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Scan(ctx))
		assert.LessOrEqual(t, s.Len(), 1)
	}
	assert.Equal(t, 0, s.Len())
	_, ok = s.lookup(own.RequestId, agreement.SignatureResponded)
	assert.False(t, ok)
}

func TestLoop(t *testing.T) {
	s, ledger := newTestScanner(t)
	ev := randEvent(nil)
	ledger.AddTransaction([]string{eventLog(t, agreement.SignatureResponded, ev)})
	s.Watch(ev.RequestId)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Loop(ctx) }()

	assert.Eventually(t, func() bool {
		_, ok := s.lookup(ev.RequestId, agreement.SignatureResponded)
		return ok
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

type flakyReader struct {
	sigs []*rpc.TransactionSignature
	logs map[solana.Signature][]string
}

func (r *flakyReader) GetSignaturesForAddress(context.Context, solana.PublicKey, int) ([]*rpc.TransactionSignature, error) {
	if r.sigs == nil {
		return nil, agreement.RpcError("getSignaturesForAddress", errors.New("connection refused"))
	}
	return r.sigs, nil
}

func (r *flakyReader) LogMessages(_ context.Context, sig solana.Signature) ([]string, error) {
	logs, ok := r.logs[sig]
	if !ok {
		return nil, agreement.NotFoundError("getTransaction", nil)
	}
	return logs, nil
}

func TestScanSkipsUnreadableTransactions(t *testing.T) {
	ev := randEvent(nil)
	good := solana.Signature{2}
	r := &flakyReader{
		sigs: []*rpc.TransactionSignature{
			{Signature: solana.Signature{1}},
			{Signature: solana.Signature{3}, Err: "InstructionError"},
			{Signature: good},
		},
		logs: map[solana.Signature][]string{good: {eventLog(t, agreement.SignatureResponded, ev)}},
	}
	s := NewScanner(ScannerConfig{}, r)

	got, ok, err := s.Poll(context.Background(), ev.RequestId, agreement.SignatureResponded)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ev.RequestId, got.RequestId)
	assert.Equal(t, solanaman.DefaultScanLimit, s.cfg.Limit)
}

func TestScanListFailure(t *testing.T) {
	s := NewScanner(ScannerConfig{}, &flakyReader{})
	_, ok, err := s.Poll(context.Background(), common.RandBytes32(), agreement.SignatureResponded)
	assert.False(t, ok)
	assert.ErrorIs(t, err, agreement.ErrRpc)
}
