package solanaman

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
)

const discriminatorLen = 8

var (
	ErrDiscriminatorMismatch = errors.New("discriminator mismatch")
	ErrAmountOverflow        = errors.New("amount does not fit in u128")

	maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

type Discriminator [discriminatorLen]byte

func discriminator(namespace, name string) Discriminator {
	var d Discriminator
	h := sha256.Sum256([]byte(namespace + ":" + name))
	copy(d[:], h[:discriminatorLen])
	return d
}

func InstructionDiscriminator(name string) Discriminator {
	return discriminator("global", name)
}

func AccountDiscriminator(name string) Discriminator {
	return discriminator("account", name)
}

func EventDiscriminator(name string) Discriminator {
	return discriminator("event", name)
}

func checkDiscriminator(dec *bin.Decoder, want Discriminator) error {
	got, err := dec.ReadNBytes(discriminatorLen)
	if err != nil {
		return err
	}
	if string(got) != string(want[:]) {
		return fmt.Errorf("%w: got %x, want %x", ErrDiscriminatorMismatch, got, want)
	}
	return nil
}

func writeU128(enc *bin.Encoder, v *big.Int) error {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 || v.Cmp(maxU128) > 0 {
		return fmt.Errorf("%w: %s", ErrAmountOverflow, v)
	}
	mask := new(big.Int).SetUint64(^uint64(0))
	lo := new(big.Int).And(v, mask).Uint64()
	hi := new(big.Int).Rsh(v, 64).Uint64()
	if err := enc.WriteUint64(lo, bin.LE); err != nil {
		return err
	}
	return enc.WriteUint64(hi, bin.LE)
}

func readU128(dec *bin.Decoder) (*big.Int, error) {
	lo, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, err
	}
	hi, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, err
	}
	v := new(big.Int).SetUint64(hi)
	v.Lsh(v, 64)
	return v.Or(v, new(big.Int).SetUint64(lo)), nil
}

func readFixed(dec *bin.Decoder, out []byte) error {
	b, err := dec.ReadNBytes(len(out))
	if err != nil {
		return err
	}
	copy(out, b)
	return nil
}
