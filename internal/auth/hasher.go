package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher stores credentials as bcrypt hashes.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(raw string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Verify(raw, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(raw)) == nil
}
