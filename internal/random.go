package internal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"math/big"
	"strconv"
)

const (
	passcodeMin     = 100000
	passcodeMax     = 999999
	resetSecretSize = 32
)

// NewPasscode draws a six-digit passcode uniformly from [100000, 999999]
// using r, or crypto/rand when r is nil.
func NewPasscode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, big.NewInt(passcodeMax-passcodeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(passcodeMin+n.Int64(), 10), nil
}

// NewResetToken reads 32 bytes from r, or crypto/rand when r is nil, and
// returns them hex-encoded.
func NewResetToken(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	var secret [resetSecretSize]byte
	if _, err := io.ReadFull(r, secret[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(secret[:]), nil
}

// ValidResetToken reports whether token has the shape NewResetToken
// produces. It lets callers skip a store round-trip for garbage input.
func ValidResetToken(token string) bool {
	if len(token) != 2*resetSecretSize {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

// ValidPasscode reports whether code is six ASCII digits.
func ValidPasscode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

var errShortRead = errors.New("random source exhausted")

// FixedReader replays a byte sequence and then fails. It makes passcode
// and token generation reproducible in tests.
type FixedReader struct {
	data []byte
}

// NewFixedReader returns a FixedReader over data.
func NewFixedReader(data []byte) *FixedReader {
	return &FixedReader{data: append([]byte(nil), data...)}
}

func (f *FixedReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, errShortRead
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}
