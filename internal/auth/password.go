package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/lingke-net/Space.Tab/pkg/common"
)

// Hasher wraps bcrypt with a configurable cost.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher; non-positive or out-of-range costs fall back to 12.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = common.DefaultBcryptCost
	}
	return &Hasher{Cost: cost}
}

func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare reports whether password matches the stored hash.
func (h *Hasher) Compare(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
