package valueobject

import (
	"strings"

	"github.com/escrowhub/backend/internal/domain/shared"
)

// MaxIdempotencyKeyLength matches the column width of escrow_transactions.idempotency_key
const MaxIdempotencyKeyLength = 255

// ErrInvalidIdempotencyKey is returned for keys that are too long
var ErrInvalidIdempotencyKey = shared.NewDomainError("InvalidIdempotencyKey", "Idempotency key is invalid")

// IdempotencyKey is an opaque client supplied token identifying one logical
// financial operation. The zero value means no key was supplied.
type IdempotencyKey struct {
	value string
}

// NewIdempotencyKey trims and validates a key. Blank input yields the zero key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	v := strings.TrimSpace(raw)
	if len(v) > MaxIdempotencyKeyLength {
		return IdempotencyKey{}, ErrInvalidIdempotencyKey.WithMessagef("idempotency key exceeds %d characters", MaxIdempotencyKeyLength)
	}
	return IdempotencyKey{value: v}, nil
}

// MustIdempotencyKey panics on invalid input. Intended for literals.
func MustIdempotencyKey(raw string) IdempotencyKey {
	k, err := NewIdempotencyKey(raw)
	if err != nil {
		panic(err)
	}
	return k
}

// IsZero reports whether no key was supplied
func (k IdempotencyKey) IsZero() bool {
	return k.value == ""
}

// String returns the raw key
func (k IdempotencyKey) String() string {
	return k.value
}

// Equals compares keys. Two zero keys never match each other.
func (k IdempotencyKey) Equals(other IdempotencyKey) bool {
	return !k.IsZero() && k.value == other.value
}

// Derive builds a child key, for example one per split transfer of a payout.
func (k IdempotencyKey) Derive(suffix string) IdempotencyKey {
	if k.IsZero() {
		return k
	}
	v := k.value + ":" + suffix
	if len(v) > MaxIdempotencyKeyLength {
		v = v[len(v)-MaxIdempotencyKeyLength:]
	}
	return IdempotencyKey{value: v}
}
