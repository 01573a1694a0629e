package passcode

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/finsync/gatekeeper/internal/util"
)

// DefaultRounds is the number of extra SHA-256 iterations applied by the
// default KDF after the initial digest.
const DefaultRounds = 1000

// KDF derives a fixed-length digest from a candidate PIN and a salt. A KDF
// must be a pure function: the same (pin, salt) pair always yields the same
// digest.
type KDF interface {
	Derive(pin, salt []byte) ([]byte, error)
	Name() string
}

// IteratedSHA256 is the default KDF: SHA256(salt || ":" || pin), followed by
// rounds iterations of SHA256(digest || ":" || salt). It is a deliberately
// lightweight scheme sized for per-unlock use on low-end hardware; the threat
// model is casual disk inspection of a short numeric PIN, not GPU attackers.
// Deployments wanting a stronger work factor can swap in Argon2id without any
// contract change.
type IteratedSHA256 struct {
	rounds int
}

var _ KDF = (*IteratedSHA256)(nil)

// NewIteratedSHA256 returns the iterated-SHA256 KDF with the given number of
// extra rounds.
func NewIteratedSHA256(rounds int) (*IteratedSHA256, error) {
	if rounds < 1 {
		return nil, fmt.Errorf("iterated sha256 rounds must be positive, got %d", rounds)
	}
	return &IteratedSHA256{rounds: rounds}, nil
}

// DefaultKDF returns the iterated-SHA256 KDF with DefaultRounds.
func DefaultKDF() KDF {
	return &IteratedSHA256{rounds: DefaultRounds}
}

func (k *IteratedSHA256) Name() string {
	return fmt.Sprintf("sha256-iter-%d", k.rounds)
}

func (k *IteratedSHA256) Derive(pin, salt []byte) ([]byte, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("salt must not be empty")
	}

	buf := make([]byte, 0, len(salt)+1+len(pin))
	buf = append(buf, salt...)
	buf = append(buf, ':')
	buf = append(buf, pin...)
	sum := sha256.Sum256(buf)
	util.WipeBytes(buf)

	digest := sum[:]
	for i := 0; i < k.rounds; i++ {
		round := make([]byte, 0, len(digest)+1+len(salt))
		round = append(round, digest...)
		round = append(round, ':')
		round = append(round, salt...)
		sum = sha256.Sum256(round)
		digest = sum[:]
	}
	return util.CopyBytes(digest), nil
}

// Argon2idParams captures the Argon2id work factors.
type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

// DefaultArgon2idParams returns work factors suitable for interactive unlock.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

// Argon2id is an alternative KDF for deployments that want a memory-hard
// work factor instead of the default iterated SHA-256.
type Argon2id struct {
	params Argon2idParams
}

var _ KDF = (*Argon2id)(nil)

// NewArgon2id returns an Argon2id KDF with the given parameters.
func NewArgon2id(params Argon2idParams) (*Argon2id, error) {
	if params.KeyLen != 32 {
		return nil, fmt.Errorf("argon2id key length must be 32 bytes")
	}
	if params.Time == 0 || params.MemoryKiB == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("argon2id work factors must be positive")
	}
	return &Argon2id{params: params}, nil
}

func (k *Argon2id) Name() string {
	return "argon2id"
}

func (k *Argon2id) Derive(pin, salt []byte) ([]byte, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("salt must not be empty")
	}
	p := k.params
	return argon2.IDKey(pin, salt, p.Time, p.MemoryKiB, p.Parallelism, p.KeyLen), nil
}
