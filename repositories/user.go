package repositories

import (
	"fmt"
	"strings"
	"time"

	"chat-core/domain"
	"chat-core/errors"
)

// Key layout
//
//	user:{email} -> userRecord
func userKey(email string) string { return "user:" + strings.ToLower(email) }

// User is an account able to obtain tokens. Profile data lives in presence.
type User struct {
	ID           domain.UserID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type userRecord struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
}

// CreateUser persists a new account. The email is unique, case insensitive.
func (t *Txn) CreateUser(user User) error {
	taken, err := t.exists(userKey(user.Email))
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("email %s: %w", user.Email, errors.ErrAlreadyExists)
	}
	return t.putJSON(userKey(user.Email), userRecord{
		ID:           string(user.ID),
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    toUnix(user.CreatedAt),
	})
}

// UpdatePasswordHash swaps the hash when it still equals previous, so two
// concurrent logins cannot overwrite a password changed meanwhile.
func (t *Txn) UpdatePasswordHash(email, previous, hash string) error {
	var rec userRecord
	if err := t.getJSON(userKey(email), &rec); err != nil {
		return err
	}
	if rec.PasswordHash != previous {
		return fmt.Errorf("password of %s changed: %w", email, errors.ErrConflict)
	}
	rec.PasswordHash = hash
	return t.putJSON(userKey(email), rec)
}

func (t *Txn) GetUserByEmail(email string) (User, error) {
	var rec userRecord
	if err := t.getJSON(userKey(email), &rec); err != nil {
		return User{}, err
	}
	return User{
		ID:           domain.UserID(rec.ID),
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    fromUnix(rec.CreatedAt),
	}, nil
}
