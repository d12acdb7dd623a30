// Package auth gates the dashboard behind an e-mail allow-list and a shared
// password, and issues signed session tokens.
package auth

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/crypto/bcrypt"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/config"
)

var (
	// ErrUnknownUser is returned for an e-mail outside the allow-list.
	ErrUnknownUser = eris.New("auth: e-mail not allowed")
	// ErrBadPassword is returned when the shared password does not match.
	ErrBadPassword = eris.New("auth: wrong password")
)

// Gate checks credentials against the allow-list and the shared bcrypt hash.
type Gate struct {
	users map[string]string // lowercased email -> display name
	hash  []byte
}

// NewGate builds a Gate from the configured users and password hash.
func NewGate(users []config.UserConfig, passwordHash string) (*Gate, error) {
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, eris.Wrap(err, "auth: invalid password hash")
	}
	g := &Gate{users: make(map[string]string, len(users)), hash: []byte(passwordHash)}
	for _, u := range users {
		email := normalizeEmail(u.Email)
		if email == "" {
			continue
		}
		name := u.Name
		if name == "" {
			name = u.Email
		}
		g.users[email] = name
	}
	return g, nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Authenticate returns the display name of a valid user. The e-mail is
// checked first, so an unknown e-mail never reaches the password check.
func (g *Gate) Authenticate(email, password string) (string, error) {
	name, ok := g.users[normalizeEmail(email)]
	if !ok {
		return "", ErrUnknownUser
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(password)); err != nil {
		return "", ErrBadPassword
	}
	return name, nil
}

// HashPassword returns a bcrypt hash for the auth.password_hash setting.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", eris.Wrap(err, "auth: hash password")
	}
	return string(h), nil
}
