// Package chainsync finds MPC signer events in the chain signatures
// program's recent transactions.
package chainsync

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/common"
	"github.com/TEENet-io/vault-relayer/solanaman"
)

type ScannerConfig struct {
	ChainSignaturesProgram solana.PublicKey

	// Number of most recent program transactions searched per scan.
	Limit int

	// Interval of the background Loop.
	IntervalScan time.Duration
}

type eventKey struct {
	requestId [32]byte
	kind      agreement.EventKind
}

// Scanner implements agreement.EventSource. Events are kept only for
// watched request ids, from the first Poll until Forget, so one scan
// serves all flows waiting on the same window of transactions.
type Scanner struct {
	cfg    ScannerConfig
	reader LogReader

	mu      sync.Mutex
	watched map[[32]byte]struct{}
	found   map[eventKey]*agreement.SignatureEvent
}

func NewScanner(cfg ScannerConfig, reader LogReader) *Scanner {
	if cfg.Limit <= 0 {
		cfg.Limit = solanaman.DefaultScanLimit
	}
	if cfg.IntervalScan <= 0 {
		cfg.IntervalScan = 5 * time.Second
	}
	return &Scanner{
		cfg:     cfg,
		reader:  reader,
		watched: make(map[[32]byte]struct{}),
		found:   make(map[eventKey]*agreement.SignatureEvent),
	}
}

// Watch makes later scans keep the events of requestId.
func (s *Scanner) Watch(requestId [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched[requestId] = struct{}{}
}

// Len returns the number of events held.
func (s *Scanner) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.found)
}

func (s *Scanner) watching() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watched)
}

func (s *Scanner) lookup(requestId [32]byte, kind agreement.EventKind) (*agreement.SignatureEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.found[eventKey{requestId, kind}]
	return ev, ok
}

// Poll looks for an event once and watches requestId until Forget. It
// returns false when none is on chain yet.
func (s *Scanner) Poll(ctx context.Context, requestId [32]byte, kind agreement.EventKind) (*agreement.SignatureEvent, bool, error) {
	s.Watch(requestId)
	if ev, ok := s.lookup(requestId, kind); ok {
		return ev, true, nil
	}
	if err := s.Scan(ctx); err != nil {
		return nil, false, err
	}
	ev, ok := s.lookup(requestId, kind)
	return ev, ok, nil
}

// Scan reads the latest program transactions and records the signer
// events of watched requests. Transactions that cannot be fetched are skipped.
func (s *Scanner) Scan(ctx context.Context) error {
	sigs, err := s.reader.GetSignaturesForAddress(ctx, s.cfg.ChainSignaturesProgram, s.cfg.Limit)
	if err != nil {
		return err
	}

	for _, sig := range sigs {
		if sig.Err != nil {
			continue
		}
		logs, err := s.reader.LogMessages(ctx, sig.Signature)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.WithField("sig", sig.Signature.String()).Debugf("skipping transaction: %v", err)
			continue
		}
		s.index(logs)
	}
	return nil
}

func (s *Scanner) index(logs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range logs {
		kind, ev, ok := solanaman.DecodeEventLog(line)
		if !ok {
			continue
		}
		if _, ok := s.watched[ev.RequestId]; !ok {
			continue
		}
		key := eventKey{ev.RequestId, kind}
		if _, seen := s.found[key]; seen {
			continue
		}
		s.found[key] = ev
		logger.WithFields(logger.Fields{
			"reqId": common.Shorten(common.Bytes32ToHexStr(ev.RequestId), 8),
			"kind":  kind,
		}).Debug("signer event found")
	}
}

// Forget drops both events of a finished request and stops watching it,
// so a later scan of the same window does not bring them back.
func (s *Scanner) Forget(requestId [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watched, requestId)
	delete(s.found, eventKey{requestId, agreement.SignatureResponded})
	delete(s.found, eventKey{requestId, agreement.ReadResponded})
}

// Loop scans in the background until ctx is done. Ticks with nothing
// watched are skipped.
func (s *Scanner) Loop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.IntervalScan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.watching() == 0 {
				continue
			}
			if err := s.Scan(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Warn("failed to scan chain signatures program")
			}
		}
	}
}
