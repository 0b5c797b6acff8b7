package solanaman

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/common"
)

func randomEvent(output []byte) *agreement.SignatureEvent {
	ev := &agreement.SignatureEvent{
		RequestId:        common.RandBytes32(),
		Responder:        solana.NewWallet().PublicKey(),
		SerializedOutput: output,
	}
	ev.Signature.BigR.X = common.RandBytes32()
	ev.Signature.BigR.Y = common.RandBytes32()
	ev.Signature.S = common.RandBytes32()
	ev.Signature.RecoveryId = 1
	return ev
}

func TestEventLogRoundTrip(t *testing.T) {
	sigEv := randomEvent(nil)
	line, err := EncodeEventLog(agreement.SignatureResponded, sigEv)
	require.NoError(t, err)

	kind, got, ok := DecodeEventLog(line)
	require.True(t, ok)
	assert.Equal(t, agreement.SignatureResponded, kind)
	assert.Equal(t, sigEv, got)

	readEv := randomEvent([]byte{1})
	line, err = EncodeEventLog(agreement.ReadResponded, readEv)
	require.NoError(t, err)

	kind, got, ok = DecodeEventLog(line)
	require.True(t, ok)
	assert.Equal(t, agreement.ReadResponded, kind)
	assert.Equal(t, readEv, got)
}

func TestDecodeEventLogIgnoresOtherLines(t *testing.T) {
	for _, line := range []string{
		"Program 4uvZW8K4g4jBg7dzPNbb9XDxJLFBK7V6iC76uofmYvEU invoke [1]",
		"Program log: Instruction: Respond",
		"Program data: not-base64!",
		"Program data: AAAA",
		"Program data: AQIDBAUGBwgJCgsMDQ4PEA==",
	} {
		_, _, ok := DecodeEventLog(line)
		assert.False(t, ok, line)
	}
}

func TestFindEvent(t *testing.T) {
	target := randomEvent(nil)
	other := randomEvent(nil)
	read := randomEvent([]byte{1})
	read.RequestId = target.RequestId

	l1, _ := EncodeEventLog(agreement.SignatureResponded, other)
	l2, _ := EncodeEventLog(agreement.ReadResponded, read)
	l3, _ := EncodeEventLog(agreement.SignatureResponded, target)
	logs := []string{"Program log: Instruction: Respond", l1, l2, l3}

	ev, ok := FindEvent(logs, target.RequestId, agreement.SignatureResponded)
	require.True(t, ok)
	assert.Equal(t, target, ev)

	ev, ok = FindEvent(logs, target.RequestId, agreement.ReadResponded)
	require.True(t, ok)
	assert.Equal(t, []byte{1}, ev.SerializedOutput)

	_, ok = FindEvent(logs, common.RandBytes32(), agreement.SignatureResponded)
	assert.False(t, ok)
}
