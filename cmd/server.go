// Server = solana side (custody program + signer event scanner)
//        + evm side (erc20 vault) + flow db + orchestrator + http reporter.
// All components are configured via environment variables (strings!).

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/TEENet-io/vault-relayer/chainsync"
	"github.com/TEENet-io/vault-relayer/etherman"
	"github.com/TEENet-io/vault-relayer/flowdb"
	"github.com/TEENet-io/vault-relayer/mpcderive"
	"github.com/TEENet-io/vault-relayer/orchestrator"
	"github.com/TEENet-io/vault-relayer/reporter"
	"github.com/TEENet-io/vault-relayer/solanaman"
	"github.com/TEENet-io/vault-relayer/tracker"
)

// Default params for server.
// More often we don't recommend users to tweak those.
const (
	// signer event scanner
	frequencyToScanSignerEvents = 5 * time.Second

	// how long running flows get to finish on shutdown
	timeoutOnDrainingFlows = 30 * time.Second

	DefaultHttpIp   = "0.0.0.0"
	DefaultHttpPort = "8080"
	DefaultDbFile   = "relayer.db"
)

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
type RelayerServerConfig struct {
	// solana side
	SolanaRpcUrl             string // json rpc url
	SolanaRelayerKey         string // base58 private key or solana-keygen file, pays for relayer txs
	BridgeProgramId          string // custody program, empty for default
	ChainSignaturesProgramId string // signer program, empty for default

	// evm side
	EthRpcUrl  string // json rpc url
	EthChainId int64  // 0 to ask the node

	// mpc
	MpcBasePublicKey string // uncompressed hex, empty for default

	// state side
	DbFilePath string // sqlite file, ":memory:" for a throwaway db
	RedisAddr  string // empty keeps in-flight tracking in memory

	// Http side
	HttpIp   string // eg. 0.0.0.0
	HttpPort string // eg. 8080

	// Zero keeps the orchestrator defaults.
	WithdrawalTimeout  time.Duration
	DepositTimeout     time.Duration
	PollInterval       time.Duration
	PendingAccountWait time.Duration
	ScanInterval       time.Duration
}

// RelayerServer holds the objects that consists of the relayer server.
type RelayerServer struct {
	Config *RelayerServerConfig

	// Solana side
	Solanaman *solanaman.Solanaman
	Scanner   *chainsync.Scanner

	// Evm side
	Evm orchestrator.EvmLedger

	// State side
	Store   *flowdb.SQLiteFlowDB
	Tracker tracker.Tracker
	redis   *redis.Client

	Orchestrator *orchestrator.Orchestrator
	Reporter     *reporter.HttpReporter
	Registry     *prometheus.Registry
}

// NewRelayerServer connects to both chains (and redis if configured) and
// wires the relayer. Nothing runs until Run.
func NewRelayerServer(ctx context.Context, rsc *RelayerServerConfig) (*RelayerServer, error) {
	relayerKey, err := LoadRelayerKey(rsc.SolanaRelayerKey)
	if err != nil {
		return nil, err
	}

	sm, err := solanaman.NewSolanaman(&solanaman.Config{
		URL:                      rsc.SolanaRpcUrl,
		BridgeProgramId:          rsc.BridgeProgramId,
		ChainSignaturesProgramId: rsc.ChainSignaturesProgramId,
	}, relayerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create solanaman: %w", err)
	}
	logger.WithFields(logger.Fields{
		"bridgeProgram":  sm.PDAs.BridgeProgram,
		"signerProgram":  sm.PDAs.ChainSignaturesProgram,
		"relayer":        sm.RelayerPublicKey(),
		"vaultAuthority": sm.PDAs.GlobalVaultAuthority(),
	}).Info("solana side configured")

	em, err := etherman.NewEtherman(&etherman.Config{
		URL:     rsc.EthRpcUrl,
		ChainId: rsc.EthChainId,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etherman: %w", err)
	}
	logger.WithField("chainId", em.ChainId()).Info("evm side configured")

	var redisClient *redis.Client
	if rsc.RedisAddr != "" {
		redisClient, err = tracker.DialRedis(ctx, rsc.RedisAddr)
		if err != nil {
			return nil, err
		}
	}

	s, err := assembleRelayerServer(rsc, sm, em, redisClient)
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, err
	}
	return s, nil
}

// assembleRelayerServer builds everything above the two chain clients.
func assembleRelayerServer(rsc *RelayerServerConfig, sm *solanaman.Solanaman, evm orchestrator.EvmLedger, redisClient *redis.Client) (*RelayerServer, error) {
	deriver, err := mpcderive.NewDeriver(rsc.MpcBasePublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mpc base public key: %w", err)
	}
	vault, err := deriver.GlobalVaultAddress(sm.PDAs.GlobalVaultAuthority())
	if err != nil {
		return nil, err
	}
	logger.WithFields(logger.Fields{
		"rootSigner": deriver.RootSignerAddress().Hex(),
		"evmVault":   vault.Hex(),
	}).Info("mpc addresses derived")

	dbPath := rsc.DbFilePath
	if dbPath == "" {
		dbPath = DefaultDbFile
	}
	store, err := flowdb.NewSQLiteFlowDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open flow db: %w", err)
	}

	cfg := orchestrator.DefaultConfig()
	cfg.WithdrawalTimeout = valueOr(rsc.WithdrawalTimeout, cfg.WithdrawalTimeout)
	cfg.DepositTimeout = valueOr(rsc.DepositTimeout, cfg.DepositTimeout)
	cfg.PollInterval = valueOr(rsc.PollInterval, cfg.PollInterval)
	cfg.PendingAccountWait = valueOr(rsc.PendingAccountWait, cfg.PendingAccountWait)

	var flights tracker.Tracker = tracker.NewMemoryTracker()
	if redisClient != nil {
		lease := cfg.FlowLease()
		flights = tracker.NewRedisTracker(redisClient, lease)
		logger.WithField("lease", lease).Info("in-flight requests shared through redis")
	}

	scanner := chainsync.NewScanner(chainsync.ScannerConfig{
		ChainSignaturesProgram: sm.PDAs.ChainSignaturesProgram,
		IntervalScan:           valueOr(rsc.ScanInterval, frequencyToScanSignerEvents),
	}, sm.NewCachedReader())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	orch, err := orchestrator.New(cfg, &orchestrator.Params{
		Tracker: flights,
		Events:  scanner,
		Store:   store,
		Ledger:  sm,
		Evm:     evm,
		PDAs:    sm.PDAs,
		Deriver: deriver,
		Metrics: orchestrator.NewMetrics(registry),
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	httpIp := rsc.HttpIp
	if httpIp == "" {
		httpIp = DefaultHttpIp
	}
	httpPort := rsc.HttpPort
	if httpPort == "" {
		httpPort = DefaultHttpPort
	}

	return &RelayerServer{
		Config:       rsc,
		Solanaman:    sm,
		Scanner:      scanner,
		Evm:          evm,
		Store:        store,
		Tracker:      flights,
		redis:        redisClient,
		Orchestrator: orch,
		Reporter:     reporter.NewHttpReporter(httpIp, httpPort, orch, registry, registry),
		Registry:     registry,
	}, nil
}

func valueOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// Run fails the flows a previous process left behind, then serves until
// ctx is done or a component fails. Running flows are given
// timeoutOnDrainingFlows to finish before they are cancelled.
func (s *RelayerServer) Run(ctx context.Context) error {
	n, err := s.Orchestrator.MarkInterrupted()
	if err != nil {
		return fmt.Errorf("failed to mark interrupted flows: %w", err)
	}
	if n > 0 {
		logger.WithField("count", n).Warn("flows interrupted by the last restart marked failed")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Scanner.Loop(gctx)
	})
	g.Go(func() error {
		return s.Reporter.Run(gctx)
	})
	err = g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), timeoutOnDrainingFlows)
	defer cancel()
	if serr := s.Orchestrator.Shutdown(drainCtx); serr != nil {
		logger.WithError(serr).Warn("running flows cancelled on shutdown")
	}

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *RelayerServer) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.Store.Close())
	return errors.Join(errs...)
}

// Create, then start the relayer server and wait.
// Press Ctrl-C to kill the server.
func StartRelayerServerAndWait(rsc *RelayerServerConfig) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig).Info("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	server, err := NewRelayerServer(ctx, rsc)
	if err != nil {
		return err
	}
	defer server.Close()

	return server.Run(ctx)
}
