package common

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Bytes32ToHexStr returns the 0x prefixed hex form of b.
func Bytes32ToHexStr(b [32]byte) string {
	return Prepend0xPrefix(hex.EncodeToString(b[:]))
}

// DecodeHex decodes a hex string with or without 0x prefix.
// Unlike ethcommon.Hex2Bytes it reports malformed input instead of dropping it.
func DecodeHex(hexStr string) ([]byte, error) {
	s := Trim0xPrefix(strings.TrimSpace(hexStr))
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd length hex string")
	}
	return hex.DecodeString(s)
}

// ParseBytes32 decodes a hex string that must be exactly 32 bytes long.
func ParseBytes32(hexStr string) ([32]byte, error) {
	var out [32]byte
	b, err := DecodeHex(hexStr)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// HexStrToBigInt converts a hex string (with/without prefix 0x) to *big.Int
func HexStrToBigInt(hexStr string) *big.Int {
	bigInt, ok := new(big.Int).SetString(Trim0xPrefix(hexStr), 16)
	if !ok {
		return nil
	}
	return bigInt
}

// ParseBigInt accepts decimal or 0x prefixed hex.
func ParseBigInt(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v := HexStrToBigInt(s)
		return v, v != nil
	}
	return new(big.Int).SetString(s, 10)
}

// Trim 0x or 0X prefix off the string.
func Trim0xPrefix(str string) string {
	s := strings.TrimPrefix(str, "0x")
	return strings.TrimPrefix(s, "0X")
}

func Prepend0xPrefix(str string) string {
	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		return str
	}
	return "0x" + str
}

// RandBytes32 generates [32]byte with random values
func RandBytes32() [32]byte {
	var b [32]byte
	n, err := rand.Read(b[:])

	if err != nil {
		return [32]byte{}
	}
	if n != 32 {
		return [32]byte{}
	}

	return b
}

// RandBigInt returns a uniform value in [min, max].
func RandBigInt(min, max int64) *big.Int {
	n, err := rand.Int(rand.Reader, big.NewInt(max-min+1))
	if err != nil {
		return big.NewInt(min)
	}
	return n.Add(n, big.NewInt(min))
}

// Shorten shortens a hex string so that both sides have n characters and
// the rest is replaced with "..."
func Shorten(hexStr string, n int) string {
	str := Trim0xPrefix(hexStr)

	if len(str) <= n*2 {
		return Prepend0xPrefix(str)
	}
	return Prepend0xPrefix(str[:n] + "..." + str[len(str)-n:])
}

func BigIntClone(bigInt *big.Int) *big.Int {
	if bigInt == nil {
		return nil
	}
	return new(big.Int).Set(bigInt)
}
