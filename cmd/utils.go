package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	logger "github.com/sirupsen/logrus"
)

// fileExists checks if a file exists and is readable
func FileExists(filePath string) bool {
	file, err := os.Open(filePath)
	if err != nil {
		return false
	}
	defer file.Close()
	return true
}

// LoadRelayerKey accepts either a solana-keygen json file or a base58
// encoded private key.
func LoadRelayerKey(keyOrPath string) (solana.PrivateKey, error) {
	if keyOrPath == "" {
		return nil, fmt.Errorf("relayer key is empty")
	}
	if FileExists(keyOrPath) {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(keyOrPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read relayer keypair file: %w", err)
		}
		return key, nil
	}
	key, err := solana.PrivateKeyFromBase58(keyOrPath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode relayer key: %w", err)
	}
	if len(key) != 64 {
		return nil, fmt.Errorf("invalid relayer key length %d", len(key))
	}
	return key, nil
}

// ParseDuration reads "90s" style durations or a bare number of
// milliseconds. Empty or malformed input gives 0, which means default.
func ParseDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		logger.WithField("value", s).Warn("ignoring malformed duration")
		return 0
	}
	return d
}
