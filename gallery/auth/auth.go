// Package auth checks editor credentials loaded from the secrets file.
package auth

import (
	"crypto/subtle"
	"fmt"

	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/config"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// DefaultRole is assigned to users without an explicit role.
const DefaultRole = "editor"

// User is an authenticated editor.
type User struct {
	Username string
	Role     string
}

type credential struct {
	user     User
	password string
	hasPlain bool
	hash     []byte // nil unless the configured hash is a valid bcrypt hash
}

// Directory holds the configured users. It is immutable after construction.
type Directory struct {
	users  map[string]credential
	logger zerolog.Logger
}

// NewDirectory builds a directory from config entries. Entries without a
// username are ignored and the first entry wins for duplicate names.
// Whether each password_hash is usable is detected here, once.
func NewDirectory(users []config.UserConfig, logger zerolog.Logger) *Directory {
	d := &Directory{
		users:  make(map[string]credential, len(users)),
		logger: logger,
	}

	for _, u := range users {
		if u.Username == "" {
			continue
		}
		if _, dup := d.users[u.Username]; dup {
			logger.Warn().Str("username", u.Username).Msg("duplicate user entry ignored")
			continue
		}

		role := u.Role
		if role == "" {
			role = DefaultRole
		}
		c := credential{
			user:     User{Username: u.Username, Role: role},
			password: u.Password,
			hasPlain: u.Password != "",
		}
		if u.PasswordHash != "" {
			if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
				logger.Warn().Err(err).Str("username", u.Username).Msg("password_hash is not a bcrypt hash, falling back to password")
			} else {
				c.hash = []byte(u.PasswordHash)
			}
		}
		d.users[u.Username] = c
	}

	logger.Debug().Int("users", len(d.users)).Msg("loaded users")
	return d
}

// Len returns the number of usable accounts.
func (d *Directory) Len() int {
	return len(d.users)
}

// Verify checks password for username. A usable bcrypt hash takes precedence
// over a plain password; a user with neither never verifies.
func (d *Directory) Verify(username, password string) bool {
	c, ok := d.users[username]
	if !ok {
		return false
	}
	return c.verify(password)
}

// Authenticate returns the user when the password matches.
func (d *Directory) Authenticate(username, password string) (User, bool) {
	c, ok := d.users[username]
	if !ok || !c.verify(password) {
		return User{}, false
	}
	return c.user, true
}

func (c credential) verify(password string) bool {
	if c.hash != nil {
		return bcrypt.CompareHashAndPassword(c.hash, []byte(password)) == nil
	}
	if c.hasPlain {
		return subtle.ConstantTimeCompare([]byte(c.password), []byte(password)) == 1
	}
	return false
}

// HashPassword returns a bcrypt hash suitable for the password_hash key.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
