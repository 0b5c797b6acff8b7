package main

import (
	"fmt"
	"os"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/TEENet-io/vault-relayer/cmd"
	"github.com/TEENet-io/vault-relayer/logconfig"
)

// Initializes or updates the custody program's vault config.
//
//	CONFIG_ACTION=init MPC_ROOT_SIGNER=0x... SOLANA_RELAYER_KEY=... config_cmd
func main() {
	viper.AutomaticEnv()
	viper.SetDefault("CONFIG_ACTION", string(cmd.ConfigInitialize))

	if err := logconfig.ConfigLogger(viper.GetString("LOG_LEVEL")); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	sig, err := cmd.RunVaultConfigAdmin(&cmd.VaultConfigAdminConfig{
		SolanaRpcUrl:     viper.GetString("SOLANA_RPC_URL"),
		SolanaRelayerKey: viper.GetString("SOLANA_RELAYER_KEY"),
		BridgeProgramId:  viper.GetString("BRIDGE_PROGRAM_ID"),
		Action:           cmd.ConfigAction(viper.GetString("CONFIG_ACTION")),
		MpcRootSigner:    viper.GetString("MPC_ROOT_SIGNER"),
	})
	if err != nil {
		logger.WithError(err).Fatal("vault config not submitted")
	}
	fmt.Println(sig.String())
}
