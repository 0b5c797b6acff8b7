// Package orchestrator drives a bridge request from admission to
// settlement on both ledgers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/common"
	"github.com/TEENet-io/vault-relayer/mpcderive"
	"github.com/TEENet-io/vault-relayer/retry"
	"github.com/TEENet-io/vault-relayer/solanaman"
	"github.com/TEENet-io/vault-relayer/tracker"
)

const (
	MsgProcessingStarted        = "Withdrawal processing started"
	MsgDepositProcessingStarted = "Deposit processing started"
	MsgAlreadyProcessing        = "Already processing"
	MsgAccepted                 = "Accepted"
)

var errEventTimeout = errors.New("signer event did not arrive in time")

// ResponseMode selects what Submit waits for.
type ResponseMode int

const (
	// ModeAsync starts the flow in the background and only reports acceptance.
	ModeAsync ResponseMode = iota

	// ModeAcknowledge starts the flow in the background and reports
	// {success, message, requestId}.
	ModeAcknowledge

	// ModeSync runs the flow to its end before returning.
	ModeSync
)

func (m ResponseMode) String() string {
	switch m {
	case ModeAsync:
		return "async"
	case ModeAcknowledge:
		return "acknowledge"
	case ModeSync:
		return "sync"
	}
	return fmt.Sprintf("ResponseMode(%d)", int(m))
}

type FlowRequest struct {
	Request  *agreement.BridgeRequest
	Strategy CompletionStrategy
}

// Ack is the answer to a submission. Record is only set in ModeSync.
type Ack struct {
	RequestId [32]byte
	Accepted  bool
	Duplicate bool
	Message   string
	Record    *agreement.FlowRecord
}

type Orchestrator struct {
	cfg     *Config
	tracker tracker.Tracker
	events  agreement.EventSource
	store   agreement.FlowStore
	ledger  CustodyLedger
	evm     EvmLedger
	pdas    *solanaman.PDAs
	deriver *mpcderive.Deriver
	sup     *Supervisor
	metrics *Metrics

	retryOpts []retry.Option
	now       func() time.Time
}

type Params struct {
	Tracker tracker.Tracker
	Events  agreement.EventSource
	Store   agreement.FlowStore
	Ledger  CustodyLedger
	Evm     EvmLedger
	PDAs    *solanaman.PDAs
	Deriver *mpcderive.Deriver
	Metrics *Metrics

	// Applied to every single ledger call, after the defaults.
	RetryOptions []retry.Option
}

func New(cfg *Config, p *Params) (*Orchestrator, error) {
	if p.Tracker == nil || p.Events == nil || p.Store == nil || p.Ledger == nil || p.Evm == nil || p.PDAs == nil || p.Deriver == nil {
		return nil, errors.New("orchestrator: missing dependency")
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Orchestrator{
		cfg:     cfg.withDefaults(),
		tracker: p.Tracker,
		events:  p.Events,
		store:   p.Store,
		ledger:  p.Ledger,
		evm:     p.Evm,
		pdas:    p.PDAs,
		deriver: p.Deriver,
		sup:     NewSupervisor(),
		metrics: metrics,
		retryOpts: append([]retry.Option{
			retry.WithShouldRetry(retry.DefaultShouldRetry),
		}, p.RetryOptions...),
		now: time.Now,
	}, nil
}

func (o *Orchestrator) Supervisor() *Supervisor {
	return o.sup
}

// Submit admits a request and runs its flow according to mode. A request
// already in flight is answered at once with Duplicate set and a
// DuplicateRequestError.
func (o *Orchestrator) Submit(ctx context.Context, fr *FlowRequest, mode ResponseMode) (*Ack, error) {
	req := fr.Request
	ack := &Ack{RequestId: req.RequestId}

	admitted, err := o.tracker.Admit(ctx, req.RequestId)
	if err != nil {
		return nil, err
	}
	if !admitted {
		o.metrics.Duplicates.WithLabelValues(string(req.Direction)).Inc()
		ack.Duplicate = true
		ack.Message = MsgAlreadyProcessing
		return ack, agreement.DuplicateRequestError("submit", req.RequestId)
	}

	rec := o.admit(req)

	switch mode {
	case ModeSync:
		ack.Record = o.execute(ctx, fr, rec)
		ack.Accepted = true
		ack.Message = string(ack.Record.State)
		return ack, nil
	default:
		err := o.sup.Go("flow:"+common.Bytes32ToHexStr(req.RequestId), func(ctx context.Context) error {
			final := o.execute(ctx, fr, rec)
			if final.State != agreement.Completed {
				return errors.New(final.Error)
			}
			return nil
		})
		if err != nil {
			o.finish(rec, agreement.Failed, err)
			return nil, err
		}
	}

	ack.Accepted = true
	ack.Message = MsgAccepted
	if mode == ModeAcknowledge && req.Direction == agreement.Withdrawal {
		ack.Message = MsgProcessingStarted
	}
	return ack, nil
}

func (o *Orchestrator) admit(req *agreement.BridgeRequest) *agreement.FlowRecord {
	now := o.now()
	rec := &agreement.FlowRecord{
		RequestId: req.RequestId,
		Direction: req.Direction,
		State:     agreement.Admitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.save(rec)
	o.metrics.InFlight.Inc()
	return rec
}

func (o *Orchestrator) save(rec *agreement.FlowRecord) {
	rec.UpdatedAt = o.now()
	if err := o.store.Upsert(rec); err != nil {
		logger.WithField("reqId", common.Bytes32ToHexStr(rec.RequestId)).Errorf("failed to store flow record: %v", err)
	}
}

func (o *Orchestrator) transition(rec *agreement.FlowRecord, state agreement.FlowState) {
	logger.WithFields(logger.Fields{
		"reqId": common.Shorten(common.Bytes32ToHexStr(rec.RequestId), 8),
		"from":  rec.State,
		"to":    state,
	}).Debug("flow state")
	rec.State = state
	o.save(rec)
}

// finish writes the final state and frees the request id. It must run
// exactly once per admitted request.
func (o *Orchestrator) finish(rec *agreement.FlowRecord, state agreement.FlowState, err error) {
	rec.State = state
	if err != nil {
		rec.Error = err.Error()
	}
	o.save(rec)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultReleaseTimeout)
	defer cancel()
	if err := o.tracker.Release(ctx, rec.RequestId); err != nil {
		logger.WithField("reqId", common.Bytes32ToHexStr(rec.RequestId)).Errorf("failed to release request: %v", err)
	}
	if f, ok := o.events.(forgetter); ok {
		f.Forget(rec.RequestId)
	}

	o.metrics.InFlight.Dec()
	o.metrics.FlowOutcomes.WithLabelValues(string(rec.Direction), string(state)).Inc()
	o.metrics.FlowDuration.WithLabelValues(string(rec.Direction)).Observe(o.now().Sub(rec.CreatedAt).Seconds())
}

// execute walks the state machine. The request is released on every exit,
// panics included.
func (o *Orchestrator) execute(ctx context.Context, fr *FlowRequest, rec *agreement.FlowRecord) (final *agreement.FlowRecord) {
	req := fr.Request
	log := logger.WithFields(logger.Fields{
		"reqId":     common.Bytes32ToHexStr(req.RequestId),
		"direction": req.Direction,
	})
	log.Info("flow started")

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("flow panicked: %v", r)
		}

		state := agreement.Completed
		switch {
		case err == nil:
		case errors.Is(err, agreement.ErrTimeout):
			state = agreement.TimedOut
		default:
			state = agreement.Failed
		}
		o.finish(rec, state, err)

		if err != nil {
			log.WithField("state", state).Errorf("flow ended: %v", err)
		} else {
			log.WithFields(logger.Fields{
				"evmTx":    rec.EvmTxHash.Hex(),
				"ledgerTx": rec.LedgerTxSig.String(),
			}).Info("flow completed")
		}
		final = rec
	}()

	err = o.run(ctx, fr, rec)
	return rec
}

func (o *Orchestrator) run(ctx context.Context, fr *FlowRequest, rec *agreement.FlowRecord) error {
	id := fr.Request.RequestId

	if init, ok := fr.Strategy.(Initiator); ok {
		sig, err := init.Initiate(ctx, id)
		if err != nil {
			return err
		}
		rec.LedgerTxSig = sig
	}

	o.transition(rec, agreement.Validating)
	if err := fr.Strategy.Validate(ctx, id); err != nil {
		return err
	}

	o.transition(rec, agreement.AwaitingSignature)
	ev, err := o.WaitForEvent(ctx, id, agreement.SignatureResponded, o.cfg.eventTimeout(fr.Strategy.Direction()))
	if err != nil {
		return err
	}

	o.transition(rec, agreement.Settling)
	res, err := fr.Strategy.Complete(ctx, ev)
	if res != nil {
		rec.EvmTxHash = res.EvmTxHash
		if res.LedgerTxSig != (solana.Signature{}) {
			rec.LedgerTxSig = res.LedgerTxSig
		}
	}
	return err
}

// WaitForEvent polls the event source until the event shows up or timeout
// passes, which is a TimeoutError.
func (o *Orchestrator) WaitForEvent(ctx context.Context, requestId [32]byte, kind agreement.EventKind, timeout time.Duration) (*agreement.SignatureEvent, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, errEventTimeout)
	defer cancel()

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ev, ok, err := o.events.Poll(ctx, requestId, kind)
		if err == nil && ok {
			return ev, nil
		}
		if err != nil && ctx.Err() == nil {
			logger.WithField("kind", kind).Debugf("event poll failed: %v", err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(context.Cause(ctx), errEventTimeout) {
				return nil, agreement.TimeoutError("wait "+string(kind), fmt.Errorf("%w after %v", errEventTimeout, timeout))
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// retryOptions returns a fresh option slice for one call named name.
func (o *Orchestrator) retryOptions(name string) []retry.Option {
	opts := make([]retry.Option, 0, len(o.retryOpts)+1)
	opts = append(opts, retry.WithName(name))
	return append(opts, o.retryOpts...)
}

// Status returns the stored record of a request.
func (o *Orchestrator) Status(requestId [32]byte) (*agreement.FlowRecord, error) {
	rec, err := o.store.Get(requestId)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow record: %w", err)
	}
	if rec == nil {
		return nil, agreement.NotFoundError("status", fmt.Errorf("unknown request 0x%x", requestId))
	}
	return rec, nil
}

// MarkInterrupted fails the records a previous process left unfinished.
// In-memory tracking does not survive a restart, so these flows are not
// resumed.
func (o *Orchestrator) MarkInterrupted() (int, error) {
	n := 0
	for _, state := range []agreement.FlowState{agreement.Admitted, agreement.Validating, agreement.AwaitingSignature, agreement.Settling} {
		recs, err := o.store.GetByState(state)
		if err != nil {
			return n, err
		}
		for _, rec := range recs {
			rec.State = agreement.Failed
			rec.Error = "interrupted by restart in state " + string(state)
			o.save(rec)
			n++
		}
	}
	return n, nil
}

// Shutdown waits for running flows, see Supervisor.Shutdown.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.sup.Shutdown(ctx)
}
