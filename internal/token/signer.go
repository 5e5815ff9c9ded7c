package token

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/google/uuid"
)

// Authorization is presented with every debit. For wallet accounts the
// authority must be the owner; for program accounts the authority must be
// the account itself and Proof must verify against the program secret.
type Authorization struct {
	Authority uuid.UUID
	Proof     []byte
}

// Wallet authorizes a debit by the wallet owner.
func Wallet(owner uuid.UUID) Authorization {
	return Authorization{Authority: owner}
}

// Signer produces and checks proofs over program-owned addresses. Only the
// component holding the signer can move funds out of a vault.
type Signer struct {
	secret []byte
}

func NewSigner(secret []byte) *Signer {
	return &Signer{secret: append([]byte(nil), secret...)}
}

// Sign authorizes a debit from the program account at addr.
func (s *Signer) Sign(addr uuid.UUID) Authorization {
	return Authorization{Authority: addr, Proof: s.mac(addr)}
}

// Verify reports whether auth is a valid proof for addr.
func (s *Signer) Verify(addr uuid.UUID, auth Authorization) bool {
	if auth.Authority != addr || len(auth.Proof) == 0 {
		return false
	}
	return hmac.Equal(auth.Proof, s.mac(addr))
}

func (s *Signer) mac(addr uuid.UUID) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte("vault-authority"))
	m.Write(addr[:])
	return m.Sum(nil)
}
