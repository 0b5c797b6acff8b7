package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/database"
	"github.com/TEENet-io/vault-relayer/etherman"
	"github.com/TEENet-io/vault-relayer/flowdb"
	"github.com/TEENet-io/vault-relayer/mpcderive"
	"github.com/TEENet-io/vault-relayer/retry"
	"github.com/TEENet-io/vault-relayer/solanaman"
	"github.com/TEENet-io/vault-relayer/tracker"
)

type eventKey struct {
	id   [32]byte
	kind agreement.EventKind
}

// fakeEvents answers polls from a map, or from auto for unknown ids.
type fakeEvents struct {
	mu        sync.Mutex
	events    map[eventKey]*agreement.SignatureEvent
	auto      func(id [32]byte, kind agreement.EventKind) *agreement.SignatureEvent
	forgotten map[[32]byte]bool
	polls     int
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{
		events:    make(map[eventKey]*agreement.SignatureEvent),
		forgotten: make(map[[32]byte]bool),
	}
}

func (f *fakeEvents) Put(kind agreement.EventKind, ev *agreement.SignatureEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[eventKey{ev.RequestId, kind}] = ev
}

func (f *fakeEvents) Poll(_ context.Context, id [32]byte, kind agreement.EventKind) (*agreement.SignatureEvent, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if ev, ok := f.events[eventKey{id, kind}]; ok {
		return ev, true, nil
	}
	if f.auto != nil {
		if ev := f.auto(id, kind); ev != nil {
			return ev, true, nil
		}
	}
	return nil, false, nil
}

func (f *fakeEvents) Forget(id [32]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten[id] = true
}

func (f *fakeEvents) Forgotten(id [32]byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forgotten[id]
}

// fakeEvm accepts any signature and mines instantly.
type fakeEvm struct {
	mu         sync.Mutex
	broadcasts []*types.DynamicFeeTx
	froms      []ethcommon.Address
	balance    *big.Int
	receiptErr error
}

func (f *fakeEvm) BuildErc20Transfer(_ context.Context, from, token, recipient ethcommon.Address, amount *big.Int) (*types.DynamicFeeTx, error) {
	data, err := etherman.TransferCalldata(recipient, amount)
	if err != nil {
		return nil, err
	}
	return &types.DynamicFeeTx{
		ChainID:   big.NewInt(etherman.DefaultChainId),
		Nonce:     3,
		GasTipCap: big.NewInt(2),
		GasFeeCap: big.NewInt(40),
		Gas:       60000,
		To:        &token,
		Value:     new(big.Int),
		Data:      data,
	}, nil
}

func (f *fakeEvm) BroadcastSigned(_ context.Context, tx *types.DynamicFeeTx, _ *agreement.MpcSignature, from ethcommon.Address) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, tx)
	f.froms = append(f.froms, from)
	return types.NewTx(tx), nil
}

func (f *fakeEvm) WaitReceipt(context.Context, ethcommon.Hash) (*types.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (f *fakeEvm) Erc20BalanceOf(context.Context, ethcommon.Address, ethcommon.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeEvm) Broadcasts() ([]*types.DynamicFeeTx, []ethcommon.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.DynamicFeeTx(nil), f.broadcasts...), append([]ethcommon.Address(nil), f.froms...)
}

// fakeLedger keeps custody accounts in maps.
type fakeLedger struct {
	mu          sync.Mutex
	deposits    map[[32]byte]*solanaman.PendingErc20Deposit
	withdrawals map[[32]byte]*solanaman.PendingErc20Withdrawal
	vaultConfig *solanaman.VaultConfig
	claimErr    error
	// completeErrs are returned by successive complete calls before any succeeds.
	completeErrs []error

	depositCalls []*solanaman.DepositErc20Params
	claims       int
	completes    int
}

func newFakeLedger(rootSigner ethcommon.Address) *fakeLedger {
	return &fakeLedger{
		deposits:    make(map[[32]byte]*solanaman.PendingErc20Deposit),
		withdrawals: make(map[[32]byte]*solanaman.PendingErc20Withdrawal),
		vaultConfig: &solanaman.VaultConfig{MpcRootSignerAddress: rootSigner},
	}
}

func (f *fakeLedger) GetPendingDeposit(_ context.Context, id [32]byte) (*solanaman.PendingErc20Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acc, ok := f.deposits[id]; ok {
		return acc, nil
	}
	return nil, agreement.NotFoundError("getAccountInfo", nil)
}

func (f *fakeLedger) GetPendingWithdrawal(_ context.Context, id [32]byte) (*solanaman.PendingErc20Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acc, ok := f.withdrawals[id]; ok {
		return acc, nil
	}
	return nil, agreement.NotFoundError("getAccountInfo", nil)
}

func (f *fakeLedger) GetVaultConfig(context.Context) (*solanaman.VaultConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vaultConfig == nil {
		return nil, agreement.NotFoundError("getAccountInfo", nil)
	}
	return f.vaultConfig, nil
}

func (f *fakeLedger) DepositErc20(_ context.Context, p *solanaman.DepositErc20Params) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depositCalls = append(f.depositCalls, p)
	f.deposits[p.RequestId] = &solanaman.PendingErc20Deposit{
		Requester:    p.Requester,
		Amount:       p.Amount,
		Erc20Address: p.Erc20Address,
		Path:         p.Requester.String(),
		RequestId:    p.RequestId,
	}
	return solana.Signature{1}, nil
}

func (f *fakeLedger) ClaimErc20(_ context.Context, id [32]byte, _ solana.PublicKey, _ [20]byte, _ *agreement.SignatureEvent) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	if f.claimErr != nil {
		return solana.Signature{}, f.claimErr
	}
	delete(f.deposits, id)
	return solana.Signature{2}, nil
}

func (f *fakeLedger) CompleteWithdrawErc20(_ context.Context, id [32]byte, _ solana.PublicKey, _ [20]byte, _ *agreement.SignatureEvent) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
	if len(f.completeErrs) > 0 {
		err := f.completeErrs[0]
		f.completeErrs = f.completeErrs[1:]
		return solana.Signature{}, err
	}
	delete(f.withdrawals, id)
	return solana.Signature{3}, nil
}

// mpcSigner stands in for the MPC root key when signing read responses.
type mpcSigner struct {
	key *ecdsa.PrivateKey
}

func newMpcSigner(t *testing.T) *mpcSigner {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &mpcSigner{key: key}
}

func (s *mpcSigner) Address() ethcommon.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *mpcSigner) signatureEvent(id [32]byte) *agreement.SignatureEvent {
	return &agreement.SignatureEvent{RequestId: id, Signature: agreement.MpcSignature{RecoveryId: 1}}
}

func (s *mpcSigner) readEvent(t *testing.T, id [32]byte, output []byte) *agreement.SignatureEvent {
	hash := mpcderive.ResponseHash(id, output)
	raw, err := crypto.Sign(hash[:], s.key)
	require.NoError(t, err)
	sig, err := mpcderive.SignatureFromRaw(raw)
	require.NoError(t, err)
	return &agreement.SignatureEvent{RequestId: id, Signature: *sig, SerializedOutput: output}
}

// auto answers every poll with valid events, as a healthy signer network would.
func (s *mpcSigner) auto(t *testing.T) func([32]byte, agreement.EventKind) *agreement.SignatureEvent {
	return func(id [32]byte, kind agreement.EventKind) *agreement.SignatureEvent {
		if kind == agreement.SignatureResponded {
			return s.signatureEvent(id)
		}
		return s.readEvent(t, id, []byte{1})
	}
}

type testEnv struct {
	o       *Orchestrator
	tracker *tracker.MemoryTracker
	events  *fakeEvents
	store   *flowdb.SQLiteFlowDB
	ledger  *fakeLedger
	evm     *fakeEvm
	signer  *mpcSigner
	pdas    *solanaman.PDAs
	deriver *mpcderive.Deriver
}

func testConfig() *Config {
	return &Config{
		WithdrawalTimeout:   time.Second,
		DepositTimeout:      time.Second,
		PollInterval:        5 * time.Millisecond,
		ReceiptTimeout:      time.Second,
		BalancePollInterval: 5 * time.Millisecond,
		BalancePollTimeout:  200 * time.Millisecond,
	}
}

func newTestEnv(t *testing.T, cfg *Config, ledger CustodyLedger) *testEnv {
	signer := newMpcSigner(t)
	store, err := flowdb.NewSQLiteFlowDB(database.InMemory)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pdas, err := solanaman.NewPDAs(solanaman.DefaultBridgeProgramId, solanaman.DefaultChainSignaturesProgramId)
	require.NoError(t, err)
	deriver, err := mpcderive.NewDeriver("")
	require.NoError(t, err)

	env := &testEnv{
		tracker: tracker.NewMemoryTracker(),
		events:  newFakeEvents(),
		store:   store,
		evm:     &fakeEvm{},
		signer:  signer,
		pdas:    pdas,
		deriver: deriver,
	}
	if ledger == nil {
		env.ledger = newFakeLedger(signer.Address())
		ledger = env.ledger
	}

	env.o, err = New(cfg, &Params{
		Tracker: env.tracker,
		Events:  env.events,
		Store:   store,
		Ledger:  ledger,
		Evm:     env.evm,
		PDAs:    pdas,
		Deriver: deriver,
		RetryOptions: []retry.Option{
			retry.WithBackoff(func(int) time.Duration { return time.Millisecond }),
		},
	})
	require.NoError(t, err)
	return env
}
