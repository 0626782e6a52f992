package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"nucleus/internal/platform/config"
	dErrors "nucleus/pkg/domain-errors"
)

// Directory holds the configured moderators.
type Directory struct {
	moderators map[string]moderator
}

type moderator struct {
	hash   []byte
	rights []Right
}

// dummyHash keeps unknown names as slow to reject as wrong keys.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("nucleus-unknown-moderator"), bcrypt.MinCost)

func NewDirectory(entries []config.Moderator) (*Directory, error) {
	d := &Directory{moderators: make(map[string]moderator, len(entries))}
	for _, e := range entries {
		if e.Name == "" {
			return nil, errors.New("moderator name is required")
		}
		if _, dup := d.moderators[e.Name]; dup {
			return nil, fmt.Errorf("moderator %q is configured twice", e.Name)
		}
		if _, err := bcrypt.Cost([]byte(e.TokenHash)); err != nil {
			return nil, fmt.Errorf("moderator %q: token hash is not a bcrypt hash: %w", e.Name, err)
		}
		rights, err := ParseRights(e.Rights)
		if err != nil {
			return nil, fmt.Errorf("moderator %q: %w", e.Name, err)
		}
		d.moderators[e.Name] = moderator{hash: []byte(e.TokenHash), rights: rights}
	}
	return d, nil
}

func (d *Directory) Len() int { return len(d.moderators) }

// Authenticate checks key against the moderator's hash.
func (d *Directory) Authenticate(name, key string) (*Principal, error) {
	m, ok := d.moderators[name]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(key))
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid moderator credentials")
	}
	if err := bcrypt.CompareHashAndPassword(m.hash, []byte(key)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid moderator credentials")
		}
		return nil, fmt.Errorf("verify moderator key: %w", err)
	}
	return &Principal{Name: name, Rights: append([]Right(nil), m.rights...)}, nil
}

// GenerateKey creates a random API key.
func GenerateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashKey returns the bcrypt hash to store in configuration for key.
func HashKey(key string) (string, error) {
	if key == "" {
		return "", dErrors.New(dErrors.CodeValidation, "key cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "key is too long")
		}
		return "", fmt.Errorf("could not hash key: %w", err)
	}
	return string(hashed), nil
}
