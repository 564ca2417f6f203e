package ss58

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alicePubKey = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"

func TestCodec_EncodeGenericPrefix(t *testing.T) {
	codec, err := NewCodec(GenericPrefix)
	require.NoError(t, err)

	addr, err := codec.EncodeHex("0x" + alicePubKey)
	require.NoError(t, err)
	assert.Equal(t, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", addr)
}

func TestCodec_RoundTripTwoBytePrefix(t *testing.T) {
	codec, err := NewCodec(CalamariPrefix)
	require.NoError(t, err)

	raw, _ := hex.DecodeString(alicePubKey)
	addr, err := codec.Encode(raw)
	require.NoError(t, err)

	prefix, id, err := Decode(addr)
	require.NoError(t, err)
	assert.Equal(t, CalamariPrefix, prefix)
	assert.Equal(t, raw, id)

	decoded, err := codec.Decode(addr)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestCodec_DecodeRejectsOtherNetwork(t *testing.T) {
	generic, _ := NewCodec(GenericPrefix)
	calamari, _ := NewCodec(CalamariPrefix)

	addr, err := generic.EncodeHex(alicePubKey)
	require.NoError(t, err)

	_, err = calamari.Decode(addr)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestDecode_BadChecksum(t *testing.T) {
	// last character altered
	_, _, err := Decode("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQZ")
	assert.Error(t, err)
}

func TestCodec_EncodeRejectsShortIds(t *testing.T) {
	codec, _ := NewCodec(GenericPrefix)
	_, err := codec.Encode([]byte{1, 2, 3})
	assert.Error(t, err)

	_, err = NewCodec(46)
	assert.Error(t, err)
}

func TestForNetwork(t *testing.T) {
	codec, err := ForNetwork("Calamari", 0)
	require.NoError(t, err)
	assert.Equal(t, CalamariPrefix, codec.Prefix())

	codec, err = ForNetwork("manta", 0)
	require.NoError(t, err)
	assert.Equal(t, MantaPrefix, codec.Prefix())

	codec, err = ForNetwork("devnet", GenericPrefix)
	require.NoError(t, err)
	assert.Equal(t, GenericPrefix, codec.Prefix())

	_, err = ForNetwork("devnet", 0)
	assert.Error(t, err)
}
