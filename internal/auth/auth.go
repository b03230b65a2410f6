// Package auth guards the data routes with static API keys.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"
)

// Identity is the caller a key was issued to.
type Identity struct {
	ClientID string
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type issuedKey struct {
	digest   [sha256.Size]byte
	identity Identity
}

// StaticAPIKeyValidator holds only key digests. Validate compares against
// every issued key so timing does not reveal which prefix matched.
type StaticAPIKeyValidator struct {
	keys []issuedKey
}

// NewStaticAPIKeyValidator parses "key:client[,key:client...]". Empty entries
// are skipped; an empty string yields a validator that rejects everything.
func NewStaticAPIKeyValidator(raw string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{}
	seen := map[[sha256.Size]byte]struct{}{}
	for i, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, client, ok := strings.Cut(entry, ":")
		key, client = strings.TrimSpace(key), strings.TrimSpace(client)
		if !ok || key == "" || client == "" {
			return nil, fmt.Errorf("invalid static key entry #%d: expected key:client", i+1)
		}
		digest := sha256.Sum256([]byte(key))
		if _, dup := seen[digest]; dup {
			return nil, fmt.Errorf("duplicate static key for client %q", client)
		}
		seen[digest] = struct{}{}
		validator.keys = append(validator.keys, issuedKey{digest: digest, identity: Identity{ClientID: client}})
	}
	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	digest := sha256.Sum256([]byte(apiKey))
	var (
		found   Identity
		matched bool
	)
	for _, issued := range v.keys {
		if subtle.ConstantTimeCompare(digest[:], issued.digest[:]) == 1 {
			found, matched = issued.identity, true
		}
	}
	return found, matched
}

// Clients returns the number of issued keys.
func (v *StaticAPIKeyValidator) Clients() int {
	return len(v.keys)
}
