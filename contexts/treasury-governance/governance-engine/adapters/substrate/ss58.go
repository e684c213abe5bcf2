package substrate

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

var ErrInvalidAddress = errors.New("invalid substrate address")

const publicKeyLength = 32

var ss58Context = []byte("SS58PRE")

// DecodeSS58 returns the 32-byte account id and network prefix encoded in an
// SS58 address.
func DecodeSS58(address string) ([]byte, uint16, error) {
	raw, err := base58.Decode(strings.TrimSpace(address))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if len(raw) < 1 {
		return nil, 0, ErrInvalidAddress
	}

	var prefix uint16
	prefixLen := 1
	switch {
	case raw[0] < 64:
		prefix = uint16(raw[0])
	case raw[0] < 128:
		if len(raw) < 2 {
			return nil, 0, ErrInvalidAddress
		}
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0x3f
		prefix = uint16(lower) | uint16(upper)<<8
		prefixLen = 2
	default:
		return nil, 0, fmt.Errorf("%w: reserved prefix byte %d", ErrInvalidAddress, raw[0])
	}

	if len(raw) != prefixLen+publicKeyLength+2 {
		return nil, 0, fmt.Errorf("%w: unexpected length %d", ErrInvalidAddress, len(raw))
	}
	body := raw[:prefixLen+publicKeyLength]
	checksum := ss58Checksum(body)
	if !bytes.Equal(checksum[:2], raw[prefixLen+publicKeyLength:]) {
		return nil, 0, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	return append([]byte(nil), raw[prefixLen:prefixLen+publicKeyLength]...), prefix, nil
}

// EncodeSS58 renders a 32-byte account id for the given network prefix.
func EncodeSS58(accountID []byte, prefix uint16) (string, error) {
	if len(accountID) != publicKeyLength {
		return "", fmt.Errorf("%w: account id must be %d bytes", ErrInvalidAddress, publicKeyLength)
	}
	if prefix > 16383 {
		return "", fmt.Errorf("%w: prefix %d out of range", ErrInvalidAddress, prefix)
	}
	payload := make([]byte, 0, 2+publicKeyLength+2)
	if prefix < 64 {
		payload = append(payload, byte(prefix))
	} else {
		payload = append(payload,
			byte((prefix&0x00fc)>>2)|0x40,
			byte(prefix>>8)|byte((prefix&0x0003)<<6),
		)
	}
	payload = append(payload, accountID...)
	checksum := ss58Checksum(payload)
	payload = append(payload, checksum[:2]...)
	return base58.Encode(payload), nil
}

// ParseAccountID accepts an SS58 address or a 0x-prefixed hex account id.
// With enforcePrefix set, SS58 addresses from other networks are rejected.
func ParseAccountID(raw string, expectedPrefix uint16, enforcePrefix bool) ([]byte, error) {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		decoded, err := hex.DecodeString(value[2:])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
		}
		if len(decoded) != publicKeyLength {
			return nil, fmt.Errorf("%w: account id must be %d bytes", ErrInvalidAddress, publicKeyLength)
		}
		return decoded, nil
	}
	accountID, prefix, err := DecodeSS58(value)
	if err != nil {
		return nil, err
	}
	if enforcePrefix && prefix != expectedPrefix {
		return nil, fmt.Errorf("%w: network prefix %d, expected %d", ErrInvalidAddress, prefix, expectedPrefix)
	}
	return accountID, nil
}

func ss58Checksum(payload []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(ss58Context)
	h.Write(payload)
	return h.Sum(nil)
}
