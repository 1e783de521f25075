package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"chat-core/errors"

	"golang.org/x/crypto/argon2"
)

const (
	saltLength = 16
	keyLength  = 32
	hashScheme = "argon2id"
)

// Argon2Params tunes the cost of hashing. Memory is in KiB.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultArgon2Params follows the OWASP argon2id baseline.
var DefaultArgon2Params = Argon2Params{Memory: 64 * 1024, Iterations: 3, Parallelism: 2}

// Passwords hashes account passwords with the configured cost. Hashes embed
// their own parameters, so raising the cost keeps old hashes verifiable.
type Passwords struct {
	params Argon2Params
}

func NewPasswords(params Argon2Params) *Passwords {
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		params = DefaultArgon2Params
	}
	return &Passwords{params: params}
}

// Hash encodes as $argon2id$v=19$m=65536,t=3,p=2$salt$key.
func (p *Passwords) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, p.params.Iterations, p.params.Memory, p.params.Parallelism, keyLength)
	return encodeHash(p.params, salt, key), nil
}

// Verify reports whether password matches encoded. stale is true when the
// hash was produced with other parameters and should be replaced.
func (p *Passwords) Verify(password, encoded string) (match, stale bool, err error) {
	params, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false, false, err
	}
	candidate := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(key)))
	if subtle.ConstantTimeCompare(key, candidate) != 1 {
		return false, false, nil
	}
	return true, params != p.params, nil
}

func encodeHash(params Argon2Params, salt, key []byte) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s", hashScheme, argon2.Version,
		params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(key))
}

func decodeHash(encoded string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != hashScheme {
		return Argon2Params{}, nil, nil, errors.ErrMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: unsupported version %q", errors.ErrMalformedHash, parts[2])
	}
	params, err := decodeParams(parts[3])
	if err != nil {
		return Argon2Params{}, nil, nil, err
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: salt: %v", errors.ErrMalformedHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: key", errors.ErrMalformedHash)
	}
	return params, salt, key, nil
}

// decodeParams reads "m=65536,t=3,p=2" in any order.
func decodeParams(raw string) (Argon2Params, error) {
	var params Argon2Params
	for _, field := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return Argon2Params{}, fmt.Errorf("%w: parameter %q", errors.ErrMalformedHash, field)
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return Argon2Params{}, fmt.Errorf("%w: parameter %q", errors.ErrMalformedHash, field)
		}
		switch name {
		case "m":
			params.Memory = uint32(n)
		case "t":
			params.Iterations = uint32(n)
		case "p":
			if n > 255 {
				return Argon2Params{}, fmt.Errorf("%w: parallelism %d", errors.ErrMalformedHash, n)
			}
			params.Parallelism = uint8(n)
		}
	}
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		return Argon2Params{}, fmt.Errorf("%w: incomplete parameters %q", errors.ErrMalformedHash, raw)
	}
	return params, nil
}
