package orchestrator

import (
	"time"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/retry"
	"github.com/TEENet-io/vault-relayer/solanaman"
	"github.com/TEENet-io/vault-relayer/tracker"
)

const (
	DefaultWithdrawalTimeout   = 60 * time.Second
	DefaultDepositTimeout      = 300 * time.Second
	DefaultPollInterval        = 2 * time.Second
	DefaultReceiptTimeout      = 3 * time.Minute
	DefaultPendingAccountWait  = 30 * time.Second
	DefaultDepositSettleDelay  = 12 * time.Second
	DefaultBalancePollInterval = 5 * time.Second
	DefaultBalancePollTimeout  = 60 * time.Second
	DefaultReleaseTimeout      = 5 * time.Second

	// Added to FlowLease for scheduling and rpc latency.
	leaseSlack = time.Minute
)

type Config struct {
	// Bound on each signer event wait, per direction.
	WithdrawalTimeout time.Duration
	DepositTimeout    time.Duration

	// Interval between event polls.
	PollInterval time.Duration

	// Bound on waiting for an EVM receipt.
	ReceiptTimeout time.Duration

	// A withdrawal may be notified before its pending account is
	// confirmed; it is looked up for this long before giving up.
	PendingAccountWait time.Duration

	// Deposit intake: wait before the first balance read, then poll.
	DepositSettleDelay  time.Duration
	BalancePollInterval time.Duration
	BalancePollTimeout  time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		WithdrawalTimeout:   DefaultWithdrawalTimeout,
		DepositTimeout:      DefaultDepositTimeout,
		PollInterval:        DefaultPollInterval,
		ReceiptTimeout:      DefaultReceiptTimeout,
		PendingAccountWait:  DefaultPendingAccountWait,
		DepositSettleDelay:  DefaultDepositSettleDelay,
		BalancePollInterval: DefaultBalancePollInterval,
		BalancePollTimeout:  DefaultBalancePollTimeout,
	}
}

func (cfg *Config) withDefaults() *Config {
	c := *cfg
	d := DefaultConfig()
	if c.WithdrawalTimeout <= 0 {
		c.WithdrawalTimeout = d.WithdrawalTimeout
	}
	if c.DepositTimeout <= 0 {
		c.DepositTimeout = d.DepositTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = d.ReceiptTimeout
	}
	if c.PendingAccountWait < 0 {
		c.PendingAccountWait = 0
	}
	if c.DepositSettleDelay < 0 {
		c.DepositSettleDelay = 0
	}
	if c.BalancePollInterval <= 0 {
		c.BalancePollInterval = d.BalancePollInterval
	}
	if c.BalancePollTimeout <= 0 {
		c.BalancePollTimeout = d.BalancePollTimeout
	}
	return &c
}

func (cfg *Config) eventTimeout(dir agreement.Direction) time.Duration {
	if dir == agreement.Deposit {
		return cfg.DepositTimeout
	}
	return cfg.WithdrawalTimeout
}

// ledgerSubmission bounds one retried custody ledger submission.
func ledgerSubmission() time.Duration {
	d := time.Duration(retry.DefaultMaxAttempts) * solanaman.DefaultConfirmTimeout
	for attempt := 1; attempt < retry.DefaultMaxAttempts; attempt++ {
		d += retry.DefaultBackoff(attempt)
	}
	return d
}

// FlowLease is how long a shared tracker may hold a request id. It covers
// the longest run: a deposit intake waiting for the balance, then a flow
// with two ledger submissions, two signer events and an EVM receipt. It is
// never shorter than tracker.DefaultLease.
func (cfg *Config) FlowLease() time.Duration {
	c := cfg.withDefaults()

	event := c.WithdrawalTimeout
	if c.DepositTimeout > event {
		event = c.DepositTimeout
	}
	lease := c.DepositSettleDelay + c.BalancePollTimeout +
		c.PendingAccountWait +
		2*event +
		c.ReceiptTimeout +
		2*ledgerSubmission() +
		leaseSlack

	if lease < tracker.DefaultLease {
		return tracker.DefaultLease
	}
	return lease
}
