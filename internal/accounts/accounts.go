package accounts

import (
	"errors"

	"github.com/corestack/corestack/internal/store"
)

// Reserved account document fields. _key is the caller-chosen unique
// handle (email, username); _password holds the bcrypt digest and
// never leaves this package.
const (
	KeyField      = "_key"
	PasswordField = "_password"
)

var (
	// ErrKeyTaken signals a signup against an already registered key.
	ErrKeyTaken = errors.New("accounts: key already registered")

	// ErrInvalidCredentials is the uniform failure for signin and
	// re-verification: unknown key, filtered-out account and wrong
	// password are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("accounts: invalid credentials")

	// ErrNotFound signals a refresh against a missing account.
	ErrNotFound = errors.New("accounts: no such account")
)

// Account is a stored account with the password digest stripped.
type Account struct {
	ID     string
	Key    string
	Fields store.Document
}

// Map flattens the account back into its document shape (digest
// excluded) for transport.
func (a *Account) Map() store.Document {
	out := store.Document{"_id": a.ID, KeyField: a.Key}
	for k, v := range a.Fields {
		out[k] = v
	}
	return out
}

func fromDocument(doc store.Document) *Account {
	a := &Account{Fields: store.Document{}}
	for k, v := range doc {
		switch k {
		case "_id":
			a.ID, _ = v.(string)
		case KeyField:
			a.Key, _ = v.(string)
		case PasswordField:
			// stripped
		default:
			a.Fields[k] = v
		}
	}
	return a
}
