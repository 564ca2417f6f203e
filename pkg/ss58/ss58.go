// Package ss58 encodes and decodes Substrate account ids in the SS58 address format.
package ss58

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	// CalamariPrefix is the registered network prefix of Calamari.
	CalamariPrefix uint16 = 78
	// MantaPrefix is the registered network prefix of Manta.
	MantaPrefix uint16 = 77
	// GenericPrefix is the generic Substrate prefix.
	GenericPrefix uint16 = 42

	accountIDLen = 32
	checksumLen  = 2
	maxPrefix    = 16383
)

var (
	checksumPrefix = []byte("SS58PRE")

	ErrInvalidAddress  = errors.New("ss58: invalid address")
	ErrInvalidChecksum = errors.New("ss58: checksum mismatch")
)

// Codec converts between raw 32 byte account ids and SS58 strings for one network.
type Codec struct {
	prefix uint16
}

// NewCodec returns a codec for the given network prefix.
func NewCodec(prefix uint16) (Codec, error) {
	if prefix > maxPrefix || prefix == 46 || prefix == 47 {
		return Codec{}, fmt.Errorf("ss58: unsupported prefix %d", prefix)
	}
	return Codec{prefix: prefix}, nil
}

// ForNetwork returns the codec of a known network. The override, when non-zero, wins.
func ForNetwork(network string, override uint16) (Codec, error) {
	if override != 0 {
		return NewCodec(override)
	}
	switch strings.ToLower(network) {
	case "calamari":
		return NewCodec(CalamariPrefix)
	case "manta":
		return NewCodec(MantaPrefix)
	}
	return Codec{}, fmt.Errorf("ss58: no prefix known for network %q", network)
}

// Prefix returns the network prefix of the codec.
func (c Codec) Prefix() uint16 { return c.prefix }

// Encode encodes a raw account id.
func (c Codec) Encode(id []byte) (string, error) {
	if len(id) != accountIDLen {
		return "", fmt.Errorf("ss58: account id must be %d bytes, got %d", accountIDLen, len(id))
	}
	payload := append(prefixBytes(c.prefix), id...)
	sum, err := checksum(payload)
	if err != nil {
		return "", err
	}
	return base58.Encode(append(payload, sum[:checksumLen]...)), nil
}

// EncodeHex encodes a 0x-prefixed (or bare) hex account id.
func (c Codec) EncodeHex(id string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(id, "0x"))
	if err != nil {
		return "", fmt.Errorf("ss58: decode hex account %q: %w", id, err)
	}
	return c.Encode(raw)
}

// Decode returns the raw account id of an address. The address prefix must match the codec.
func (c Codec) Decode(address string) ([]byte, error) {
	prefix, id, err := Decode(address)
	if err != nil {
		return nil, err
	}
	if prefix != c.prefix {
		return nil, fmt.Errorf("%w: prefix %d, expected %d", ErrInvalidAddress, prefix, c.prefix)
	}
	return id, nil
}

// Decode parses any SS58 address carrying a 32 byte account id.
func Decode(address string) (uint16, []byte, error) {
	data, err := base58.Decode(address)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(data) < 2 {
		return 0, nil, ErrInvalidAddress
	}

	var (
		prefix    uint16
		prefixLen int
	)
	switch {
	case data[0] < 64:
		prefix, prefixLen = uint16(data[0]), 1
	case data[0] < 128:
		lower := (data[0] << 2) | (data[1] >> 6)
		upper := data[1] & 0b0011_1111
		prefix, prefixLen = uint16(lower)|uint16(upper)<<8, 2
	default:
		return 0, nil, fmt.Errorf("%w: reserved prefix byte %d", ErrInvalidAddress, data[0])
	}

	if len(data) != prefixLen+accountIDLen+checksumLen {
		return 0, nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidAddress, len(data))
	}

	payload := data[:prefixLen+accountIDLen]
	sum, err := checksum(payload)
	if err != nil {
		return 0, nil, err
	}
	if !bytes.Equal(sum[:checksumLen], data[prefixLen+accountIDLen:]) {
		return 0, nil, ErrInvalidChecksum
	}

	id := make([]byte, accountIDLen)
	copy(id, payload[prefixLen:])
	return prefix, id, nil
}

func prefixBytes(prefix uint16) []byte {
	if prefix < 64 {
		return []byte{byte(prefix)}
	}
	first := byte((prefix&0b0000_0000_1111_1100)>>2) | 0b0100_0000
	second := byte(prefix>>8) | byte((prefix&0b0000_0000_0000_0011)<<6)
	return []byte{first, second}
}

func checksum(payload []byte) ([]byte, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, err
	}
	h.Write(checksumPrefix)
	h.Write(payload)
	return h.Sum(nil), nil
}
