package user

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Interface to create or compare pin hashes
type PinHasher interface {
	// Generate hash from pin
	Hash(pin string) (string, error)

	// Compare known pinHash and user provided pin
	// Must be protected against timing attacks
	Compare(pinHash string, pin string) error
}

// Will be used as default one if user not provide it's own
var DefaultHasher PinHasher = PBKDF2Hasher{}

var errHashMismatch = errors.New("pin hash mismatch")

const (
	defaultIterations = 600_000
	saltLength        = 16
	keyLength         = 32
)

// PBKDF2 pin hasher
// Stored format: pbkdf2:sha256:<iterations>$<salt hex>$<key hex>
type PBKDF2Hasher struct {
	// Iteration count, default is used when zero
	Iterations int
}

func (h PBKDF2Hasher) Hash(pin string) (string, error) {
	iterations := h.Iterations
	if iterations == 0 {
		iterations = defaultIterations
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cant read random salt. Err: %w", err)
	}

	key := pbkdf2.Key([]byte(pin), salt, iterations, keyLength, sha256.New)

	return fmt.Sprintf(
		"pbkdf2:sha256:%d$%s$%s",
		iterations,
		hex.EncodeToString(salt),
		hex.EncodeToString(key),
	), nil
}

func (h PBKDF2Hasher) Compare(pinHash string, pin string) error {
	method, salt, key, err := parseHash(pinHash)
	if err != nil {
		return err
	}

	candidate := pbkdf2.Key([]byte(pin), salt, method.iterations, len(key), sha256.New)
	if subtle.ConstantTimeCompare(candidate, key) != 1 {
		return errHashMismatch
	}

	return nil
}

type hashMethod struct {
	iterations int
}

func parseHash(pinHash string) (hashMethod, []byte, []byte, error) {
	var method hashMethod

	parts := strings.Split(pinHash, "$")
	if len(parts) != 3 {
		return method, nil, nil, fmt.Errorf("malformed pin hash")
	}

	spec := strings.Split(parts[0], ":")
	if len(spec) != 3 || spec[0] != "pbkdf2" || spec[1] != "sha256" {
		return method, nil, nil, fmt.Errorf("unsupported pin hash method %q", parts[0])
	}

	iterations, err := strconv.Atoi(spec[2])
	if err != nil || iterations <= 0 {
		return method, nil, nil, fmt.Errorf("bad iteration count in pin hash")
	}
	method.iterations = iterations

	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return method, nil, nil, fmt.Errorf("bad salt in pin hash: %w", err)
	}

	key, err := hex.DecodeString(parts[2])
	if err != nil {
		return method, nil, nil, fmt.Errorf("bad key in pin hash: %w", err)
	}

	return method, salt, key, nil
}
