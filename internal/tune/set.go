package tune

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"
)

// checksumVersion is mixed into every checksum; bump it when the record semantics change.
const checksumVersion = "tune/v1"

// TunableSet is the ordered list of candidates for one task family, plus the key generator
// and the checksum that identifies the candidate list.
//
// A set is configured (WithChecker, WithChecksumSalt) right after construction and is
// read-only from the moment it is shared; all methods are then safe for concurrent use.
type TunableSet[K Key, In, Out any] struct {
	keyGen  func(In) K
	ops     []Operation[In, Out]
	salt    string
	checker func(outputs []Out) error

	checksumOnce sync.Once
	checksum     string
}

// NewTunableSet returns a set over ops. ops[0] is the fallback used while no winner is known,
// so it must accept every input keyGen can be called with.
func NewTunableSet[K Key, In, Out any](keyGen func(In) K, ops ...Operation[In, Out]) *TunableSet[K, In, Out] {
	if keyGen == nil {
		panic(errors.Errorf("tune: NewTunableSet requires a key generator"))
	}
	if len(ops) == 0 {
		panic(errors.Errorf("tune: NewTunableSet requires at least one operation"))
	}
	for i, op := range ops {
		if op == nil {
			panic(errors.Errorf("tune: NewTunableSet operation #%d is nil", i))
		}
	}
	return &TunableSet[K, In, Out]{
		keyGen: keyGen,
		ops:    append([]Operation[In, Out](nil), ops...),
	}
}

// WithChecksumSalt mixes salt into the checksum, e.g. a kernel revision that changes the
// performance of candidates without changing their names.
func (s *TunableSet[K, In, Out]) WithChecksumSalt(salt string) *TunableSet[K, In, Out] {
	s.salt = salt
	return s
}

// WithChecker installs the cross-validation hook run in checks mode. It receives the
// outputs of all candidates that succeeded on the same input.
func (s *TunableSet[K, In, Out]) WithChecker(checker func(outputs []Out) error) *TunableSet[K, In, Out] {
	s.checker = checker
	return s
}

// GenerateKey returns the fingerprint of in.
func (s *TunableSet[K, In, Out]) GenerateKey(in In) K {
	return s.keyGen(in)
}

// ComputeChecksum summarizes the ordered candidate names.
func (s *TunableSet[K, In, Out]) ComputeChecksum() string {
	s.checksumOnce.Do(func() {
		h := sha256.New()
		h.Write([]byte(checksumVersion))
		h.Write([]byte{0})
		h.Write([]byte(s.salt))
		for _, op := range s.ops {
			h.Write([]byte{0})
			h.Write([]byte(op.Name()))
		}
		s.checksum = hex.EncodeToString(h.Sum(nil))
	})
	return s.checksum
}

// Fastest returns the candidate at index.
func (s *TunableSet[K, In, Out]) Fastest(index int) Operation[In, Out] {
	if index < 0 || index >= len(s.ops) {
		panic(errors.Errorf("tune: candidate index %d out of range [0, %d)", index, len(s.ops)))
	}
	return s.ops[index]
}

// Len returns the number of candidates.
func (s *TunableSet[K, In, Out]) Len() int {
	return len(s.ops)
}

// Names returns the candidate names in order.
func (s *TunableSet[K, In, Out]) Names() []string {
	names := make([]string, len(s.ops))
	for i, op := range s.ops {
		names[i] = op.Name()
	}
	return names
}
