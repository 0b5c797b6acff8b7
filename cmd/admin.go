package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/mpcderive"
	"github.com/TEENet-io/vault-relayer/solanaman"
)

type ConfigAction string

const (
	ConfigInitialize ConfigAction = "init"
	ConfigUpdate     ConfigAction = "update"

	timeoutOnVaultConfig = 2 * time.Minute
)

// VaultConfigWriter submits the vault config instructions of the custody
// program. solanaman.Solanaman implements it.
type VaultConfigWriter interface {
	InitializeConfig(ctx context.Context, mpcRootSigner [20]byte) (solana.Signature, error)
	UpdateConfig(ctx context.Context, mpcRootSigner [20]byte) (solana.Signature, error)
}

type VaultConfigAdminConfig struct {
	SolanaRpcUrl     string
	SolanaRelayerKey string
	BridgeProgramId  string

	Action ConfigAction
	// Hex encoded 20 byte address of the MPC root signer.
	MpcRootSigner string
}

// SubmitVaultConfig initializes or updates the vault config with the MPC
// root signer address. The address is checked before anything is sent.
func SubmitVaultConfig(ctx context.Context, w VaultConfigWriter, action ConfigAction, rootSigner string) (solana.Signature, error) {
	addr, err := mpcderive.ParseMpcAddress(rootSigner)
	if err != nil {
		return solana.Signature{}, err
	}

	var submit func(context.Context, [20]byte) (solana.Signature, error)
	switch action {
	case ConfigInitialize:
		submit = w.InitializeConfig
	case ConfigUpdate:
		submit = w.UpdateConfig
	default:
		return solana.Signature{}, agreement.ValidationError("vault config", "unknown action %q, want %q or %q", action, ConfigInitialize, ConfigUpdate)
	}

	sig, err := submit(ctx, addr)
	if err != nil {
		return sig, fmt.Errorf("failed to %s vault config: %w", action, err)
	}
	logger.WithFields(logger.Fields{
		"action":     action,
		"rootSigner": addr.Hex(),
		"sig":        sig.String(),
	}).Info("vault config submitted")
	return sig, nil
}

// RunVaultConfigAdmin dials the custody ledger with the relayer key and
// submits the vault config.
func RunVaultConfigAdmin(cfg *VaultConfigAdminConfig) (solana.Signature, error) {
	relayerKey, err := LoadRelayerKey(cfg.SolanaRelayerKey)
	if err != nil {
		return solana.Signature{}, err
	}
	sm, err := solanaman.NewSolanaman(&solanaman.Config{
		URL:             cfg.SolanaRpcUrl,
		BridgeProgramId: cfg.BridgeProgramId,
	}, relayerKey)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create solanaman: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeoutOnVaultConfig)
	defer cancel()
	return SubmitVaultConfig(ctx, sm, cfg.Action, cfg.MpcRootSigner)
}
