package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	hash := make([]byte, HashLen)
	for i := range hash {
		hash[i] = byte(i)
	}
	encoded := Encode(0x00, hash)

	version, decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), version)
	assert.Equal(t, hash, decoded)
}

func TestDecodeFixedRoundTrip(t *testing.T) {
	var address [21]byte
	address[0] = 0x05
	for i := 1; i < 21; i++ {
		address[i] = byte(i * 3)
	}
	encoded := EncodeFixed(address)

	decoded, err := DecodeFixed(encoded)
	require.NoError(t, err)
	assert.Equal(t, address, decoded)
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	encoded := Encode(0x00, make([]byte, HashLen))
	corrupted := []byte(encoded)
	corrupted[len(corrupted)-1]++
	_, _, err := Decode(string(corrupted))
	assert.Error(t, err)
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, _, err := Decode(Encode(0x00, make([]byte, HashLen+1)))
	assert.Error(t, err)
}

func TestFromScriptP2PKH(t *testing.T) {
	hash := make([]byte, HashLen)
	for i := range hash {
		hash[i] = byte(i + 1)
	}
	script := append([]byte{opDup, opHash160, pushData20}, hash...)
	script = append(script, opEqualVerify, opCheckSig)

	address, ok := FromScript(script, 0x00, 0x05)
	require.True(t, ok)
	assert.Equal(t, byte(0x00), address[0])
	assert.Equal(t, hash, address[1:])
}

func TestFromScriptP2SH(t *testing.T) {
	hash := make([]byte, HashLen)
	for i := range hash {
		hash[i] = byte(i + 2)
	}
	script := append([]byte{opHash160, pushData20}, hash...)
	script = append(script, opEqual)

	address, ok := FromScript(script, 0x00, 0x05)
	require.True(t, ok)
	assert.Equal(t, byte(0x05), address[0])
	assert.Equal(t, hash, address[1:])
}

func TestFromScriptUnrecognized(t *testing.T) {
	_, ok := FromScript([]byte{0x6a, 0x01, 0x02}, 0x00, 0x05) // OP_RETURN push
	assert.False(t, ok)
}
