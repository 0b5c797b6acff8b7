package main

import (
	"fmt"
	"os"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/TEENet-io/vault-relayer/cmd"
	"github.com/TEENet-io/vault-relayer/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "RELAYER_CONFIG"
)

func main() {
	// Tool to read environment variables
	viper.AutomaticEnv()

	// An optional configuration file; environment variables win over it.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	if _config_file != "" {
		fmt.Printf("Relayer configuration file = %s\n", _config_file)
		if !cmd.FileExists(_config_file) {
			fmt.Printf("Relayer configuration file not found: %s\n", _config_file)
			os.Exit(1)
		}
		if !initializeViper(_config_file) {
			os.Exit(1)
		}
	}

	if err := logconfig.ConfigLogger(viper.GetString("LOG_LEVEL")); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	// Make the configuration
	rsc := PrepareRelayerServerConfig()

	logger.Info("Starting relayer server... press Ctrl+C to kill the server")
	// Start server and block.
	if err := cmd.StartRelayerServerAndWait(rsc); err != nil {
		logger.WithError(err).Fatal("relayer server stopped")
	}
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s\n", err)
		return false
	}
	return true
}

// PrepareRelayerServerConfig reads configuration variables and returns a RelayerServerConfig.
// Durations accept Go syntax ("90s") or a bare number of milliseconds.
func PrepareRelayerServerConfig() *cmd.RelayerServerConfig {
	viper.SetDefault("HTTP_IP", cmd.DefaultHttpIp)
	viper.SetDefault("HTTP_PORT", cmd.DefaultHttpPort)
	viper.SetDefault("DB_FILE_PATH", cmd.DefaultDbFile)

	return &cmd.RelayerServerConfig{
		// solana side
		SolanaRpcUrl:             viper.GetString("SOLANA_RPC_URL"),
		SolanaRelayerKey:         viper.GetString("SOLANA_RELAYER_KEY"),
		BridgeProgramId:          viper.GetString("BRIDGE_PROGRAM_ID"),
		ChainSignaturesProgramId: viper.GetString("CHAIN_SIGNATURES_PROGRAM_ID"),
		// evm side
		EthRpcUrl:  viper.GetString("ETH_RPC_URL"),
		EthChainId: viper.GetInt64("ETH_CHAIN_ID"),
		// mpc
		MpcBasePublicKey: viper.GetString("MPC_BASE_PUBLIC_KEY"),
		// state side
		DbFilePath: viper.GetString("DB_FILE_PATH"),
		RedisAddr:  viper.GetString("REDIS_ADDR"),
		// Http side
		HttpIp:   viper.GetString("HTTP_IP"),
		HttpPort: viper.GetString("HTTP_PORT"),
		// timeouts
		WithdrawalTimeout:  cmd.ParseDuration(viper.GetString("WITHDRAWAL_TIMEOUT")),
		DepositTimeout:     cmd.ParseDuration(viper.GetString("DEPOSIT_TIMEOUT")),
		PollInterval:       cmd.ParseDuration(viper.GetString("POLL_INTERVAL")),
		PendingAccountWait: cmd.ParseDuration(viper.GetString("PENDING_ACCOUNT_WAIT")),
		ScanInterval:       cmd.ParseDuration(viper.GetString("SCAN_INTERVAL")),
	}
}
