package solanaman

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/TEENet-io/vault-relayer/agreement"
)

// ParsePrivateKey accepts a base58 secret key or the JSON byte array
// written by solana-keygen.
func ParsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("invalid keypair json: %w", err)
		}
		if len(ints) != 64 {
			return nil, fmt.Errorf("invalid keypair length %d", len(ints))
		}
		raw := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("invalid keypair byte %d", v)
			}
			raw[i] = byte(v)
		}
		return solana.PrivateKey(raw), nil
	}
	key, err := solana.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 key: %w", err)
	}
	return key, nil
}

// ParsePublicKey wraps base58 decoding errors as validation errors.
func ParsePublicKey(s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return solana.PublicKey{}, agreement.ValidationError("parsePublicKey", "invalid public key %q: %v", s, err)
	}
	return pk, nil
}
