// Package otp computes RFC 4226 HOTP and RFC 6238 TOTP codes.
//
// Everything here is pure: callers pass the timestamp, nothing reads the
// clock, and the same inputs always produce the same code.
package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"strings"
	"unicode"
)

// Supported HMAC algorithms.
const (
	AlgorithmSHA1   = "SHA1"
	AlgorithmSHA256 = "SHA256"
	AlgorithmSHA512 = "SHA512"
)

const (
	DefaultDigits = 6
	DefaultPeriod = 30

	minDigits = 6
	maxDigits = 8
	minPeriod = 15
	maxPeriod = 120
)

var (
	// ErrInvalidSecret is returned when a secret is not base32 or decodes to
	// zero bytes.
	ErrInvalidSecret = errors.New("invalid base32 secret")
	// ErrInvalidParams is returned for unsupported digits, period or algorithm.
	ErrInvalidParams = errors.New("invalid otp parameters")
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Params selects the code shape. The zero value means SHA1, 6 digits, 30s.
type Params struct {
	Digits    int
	Period    int
	Algorithm string
}

// Normalize fills zero fields with defaults and upper-cases the algorithm.
func (p Params) Normalize() Params {
	if p.Digits == 0 {
		p.Digits = DefaultDigits
	}
	if p.Period == 0 {
		p.Period = DefaultPeriod
	}
	p.Algorithm = strings.ToUpper(strings.TrimSpace(p.Algorithm))
	if p.Algorithm == "" {
		p.Algorithm = AlgorithmSHA1
	}
	return p
}

// Validate checks a normalized Params value.
func (p Params) Validate() error {
	if p.Digits < minDigits || p.Digits > maxDigits {
		return fmt.Errorf("%w: digits must be between %d and %d", ErrInvalidParams, minDigits, maxDigits)
	}
	if p.Period < minPeriod || p.Period > maxPeriod {
		return fmt.Errorf("%w: period must be between %d and %d seconds", ErrInvalidParams, minPeriod, maxPeriod)
	}
	if _, err := hmacFunc(p.Algorithm); err != nil {
		return err
	}
	return nil
}

// Code is a generated one-time password and the seconds left in its window.
type Code struct {
	Code             string `json:"code"`
	SecondsRemaining int    `json:"seconds_remaining"`
}

// NormalizeSecret strips whitespace and padding and upper-cases a base32
// secret the way authenticator apps accept it.
func NormalizeSecret(secret string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, secret)
	return strings.TrimRight(cleaned, "=")
}

// DecodeSecret decodes a base32 secret. It fails with ErrInvalidSecret for
// characters outside the alphabet or an empty key.
func DecodeSecret(secret string) ([]byte, error) {
	key, err := b32.DecodeString(NormalizeSecret(secret))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidSecret)
	}
	return key, nil
}

// ValidateSecret reports whether secret would be accepted by Generate.
func ValidateSecret(secret string) error {
	_, err := DecodeSecret(secret)
	return err
}

// Counter returns floor(unix / period).
func Counter(unix int64, period int) int64 {
	p := int64(period)
	c := unix / p
	if unix%p < 0 {
		c--
	}
	return c
}

// SecondsRemaining returns period - (unix mod period), always in (0, period].
func SecondsRemaining(unix int64, period int) int {
	p := int64(period)
	m := unix % p
	if m < 0 {
		m += p
	}
	return int(p - m)
}

// Generate computes the TOTP code for secret at the given unix time.
func Generate(secret string, unix int64, params Params) (Code, error) {
	p := params.Normalize()
	if err := p.Validate(); err != nil {
		return Code{}, err
	}
	key, err := DecodeSecret(secret)
	if err != nil {
		return Code{}, err
	}
	code, err := HOTP(key, Counter(unix, p.Period), p.Digits, p.Algorithm)
	if err != nil {
		return Code{}, err
	}
	return Code{Code: code, SecondsRemaining: SecondsRemaining(unix, p.Period)}, nil
}

// HOTP computes an RFC 4226 code over the 8-byte big-endian counter.
func HOTP(key []byte, counter int64, digits int, algorithm string) (string, error) {
	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(hf, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", AlgorithmSHA1:
		return sha1.New, nil
	case AlgorithmSHA256:
		return sha256.New, nil
	case AlgorithmSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidParams, algorithm)
	}
}
