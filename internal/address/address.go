// Package address derives deterministic entity identifiers. Any caller that
// knows the inputs can recompute an entity's key without a lookup table.
package address

import (
	"encoding/binary"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

const domain = "bountyboard/v1"

// Entity tags.
const (
	TagAgent   = "agent"
	TagClient  = "client"
	TagBounty  = "bounty"
	TagVault   = "vault"
	TagReview  = "review"
	TagToken   = "token"
	TagProgram = "program"
)

// Derive hashes the tag and seeds with Keccak-256 and folds the first 16
// bytes into a version 8 UUID. Seeds are length-prefixed so ("ab","c") and
// ("a","bc") never collide.
func Derive(tag string, seeds ...[]byte) uuid.UUID {
	h := sha3.NewLegacyKeccak256()
	writeSeed(h, []byte(domain))
	writeSeed(h, []byte(tag))
	for _, s := range seeds {
		writeSeed(h, s)
	}
	sum := h.Sum(nil)

	var b [16]byte
	copy(b[:], sum[:16])
	b[6] = (b[6] & 0x0f) | 0x80
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b)
}

type byteWriter interface {
	Write(p []byte) (int, error)
}

func writeSeed(w byteWriter, s []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	_, _ = w.Write(n[:])
	_, _ = w.Write(s)
}

// Agent is the address of owner's agent record.
func Agent(owner uuid.UUID) uuid.UUID {
	return Derive(TagAgent, owner[:])
}

// Client is the address of owner's bounty counter.
func Client(owner uuid.UUID) uuid.UUID {
	return Derive(TagClient, owner[:])
}

// Bounty is the address of client's seq-th bounty. The sequence is encoded
// as 8 little-endian bytes.
func Bounty(client uuid.UUID, seq uint64) uuid.UUID {
	var s [8]byte
	binary.LittleEndian.PutUint64(s[:], seq)
	return Derive(TagBounty, client[:], s[:])
}

// Vault is the address of the escrow account held for bounty.
func Vault(bounty uuid.UUID) uuid.UUID {
	return Derive(TagVault, bounty[:])
}

// Review is the address of the single review attached to bounty.
func Review(bounty uuid.UUID) uuid.UUID {
	return Derive(TagReview, bounty[:])
}

// TokenAccount is the address of owner's wallet account for asset.
func TokenAccount(owner uuid.UUID, asset string) uuid.UUID {
	return Derive(TagToken, owner[:], []byte(asset))
}

// Program is the identity a named in-process component presents when it
// calls another component.
func Program(name string) uuid.UUID {
	return Derive(TagProgram, []byte(name))
}
