package repositories

import (
	"testing"
	"time"

	"chat-core/errors"

	"github.com/stretchr/testify/require"
)

func TestTxn_CreateUser_UniqueEmail(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	user := User{ID: "u1", Email: "Alice@Example.com", PasswordHash: "hash", CreatedAt: time.Now().UTC()}

	req.NoError(store.Update(func(tx *Txn) error { return tx.CreateUser(user) }))

	// The same email in another case is taken
	err := store.Update(func(tx *Txn) error {
		return tx.CreateUser(User{ID: "u2", Email: "alice@example.com", PasswordHash: "other"})
	})
	req.ErrorIs(err, errors.ErrAlreadyExists)

	var got User
	req.NoError(store.View(func(tx *Txn) error {
		var err error
		got, err = tx.GetUserByEmail("ALICE@example.com")
		return err
	}))
	req.Equal(user.ID, got.ID)
	req.Equal("hash", got.PasswordHash)

	err = store.View(func(tx *Txn) error {
		_, err := tx.GetUserByEmail("nobody@example.com")
		return err
	})
	req.ErrorIs(err, errors.ErrNotFound)
}
