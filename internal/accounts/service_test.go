package accounts

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/corestack/corestack/internal/password"
	"github.com/corestack/corestack/internal/store"
	"github.com/corestack/corestack/internal/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSetup(t *testing.T) (*Service, *store.Service) {
	t.Helper()
	st := store.NewService(store.NewMemoryRepository(), time.Second)
	svc := NewService(st,
		password.NewHasher(bcrypt.MinCost),
		tokens.NewCodec("accounts-test-secret-32-bytes-xxxx"),
		time.Hour)
	return svc, st
}

func TestSignup_ThenConflict(t *testing.T) {
	svc, st := testSetup(t)
	ctx := context.Background()

	id, err := svc.Signup(ctx, "users", "a@x.com", "pw1", store.Document{"plan": "free"})
	require.NoError(t, err)
	require.Len(t, id, 32)

	_, err = svc.Signup(ctx, "users", "a@x.com", "pw2", nil)
	require.ErrorIs(t, err, ErrKeyTaken)

	// exactly one account with that key
	docs, err := st.Find(ctx, "users", store.Document{KeyField: "a@x.com"}, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0]["_id"])
	// the digest is stored, not the plaintext
	digest, _ := docs[0][PasswordField].(string)
	assert.NotEqual(t, "pw1", digest)
	assert.NotEmpty(t, digest)
}

func TestSignup_ExtraCannotShadowReservedFields(t *testing.T) {
	svc, st := testSetup(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "users", "b@x.com", "pw", store.Document{
		KeyField:      "evil@x.com",
		PasswordField: "plaintext",
		"name":        "bee",
	})
	require.NoError(t, err)

	docs, err := st.Find(ctx, "users", store.Document{KeyField: "b@x.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "bee", docs[0]["name"])
	assert.NotEqual(t, "plaintext", docs[0][PasswordField])
}

func TestSignin_SuccessAndUniformFailure(t *testing.T) {
	svc, _ := testSetup(t)
	ctx := context.Background()

	id, err := svc.Signup(ctx, "users", "a@x.com", "pw1", nil)
	require.NoError(t, err)

	acct, token, err := svc.Signin(ctx, "users", "a@x.com", "pw1", nil)
	require.NoError(t, err)
	assert.Equal(t, id, acct.ID)
	assert.Equal(t, "a@x.com", acct.Key)
	assert.NotEmpty(t, token)
	// digest never leaves the package
	_, leaked := acct.Map()[PasswordField]
	assert.False(t, leaked)

	// wrong password and unknown key fail identically
	_, _, err = svc.Signin(ctx, "users", "a@x.com", "wrongpw", nil)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Signin(ctx, "users", "nobody@x.com", "pw1", nil)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignin_ExtraQueryFilters(t *testing.T) {
	svc, st := testSetup(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "users", "a@x.com", "pw1", store.Document{"active": true})
	require.NoError(t, err)

	_, token, err := svc.Signin(ctx, "users", "a@x.com", "pw1", store.Document{"active": true})
	require.NoError(t, err)

	// the token carries the narrowing query for later re-verification
	claims, ok := tokens.NewCodec("accounts-test-secret-32-bytes-xxxx").Decode(token)
	require.True(t, ok)
	assert.Equal(t, true, claims["query"].(map[string]any)["active"])

	// deactivate, then the same signin fails closed
	_, err = st.Update(ctx, "users",
		store.Document{"$set": map[string]any{"active": false}},
		store.Document{KeyField: "a@x.com"})
	require.NoError(t, err)

	_, _, err = svc.Signin(ctx, "users", "a@x.com", "pw1", store.Document{"active": true})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyDigest_PasswordRotationInvalidates(t *testing.T) {
	svc, _ := testSetup(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "users", "a@x.com", "pw1", nil)
	require.NoError(t, err)
	_, _, err = svc.Signin(ctx, "users", "a@x.com", "pw1", nil)
	require.NoError(t, err)

	// capture the digest proof the way a token would carry it
	doc, err := svc.lookup(ctx, "users", "a@x.com", nil)
	require.NoError(t, err)
	oldDigest := doc[PasswordField].(string)

	acct, err := svc.VerifyDigest(ctx, "users", "a@x.com", oldDigest, nil)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", acct.Key)

	// rotate the password; the old digest proof must stop working
	_, err = svc.Refresh(ctx, "users", "a@x.com",
		store.Document{"$set": map[string]any{PasswordField: "pw2"}})
	require.NoError(t, err)

	_, err = svc.VerifyDigest(ctx, "users", "a@x.com", oldDigest, nil)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.VerifyPassword(ctx, "users", "a@x.com", "pw1", nil)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.VerifyPassword(ctx, "users", "a@x.com", "pw2", nil)
	require.NoError(t, err)
}

func TestRefresh_RehashesPassword(t *testing.T) {
	svc, st := testSetup(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "users", "a@x.com", "pw1", nil)
	require.NoError(t, err)

	n, err := svc.Refresh(ctx, "users", "a@x.com",
		store.Document{"$set": map[string]any{PasswordField: "pw2", "name": "ada"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	docs, err := st.Find(ctx, "users", store.Document{KeyField: "a@x.com"}, nil)
	require.NoError(t, err)
	stored := docs[0][PasswordField].(string)
	assert.NotEqual(t, "pw2", stored, "password must be hashed before persisting")
	assert.Equal(t, "ada", docs[0]["name"])

	_, _, err = svc.Signin(ctx, "users", "a@x.com", "pw2", nil)
	require.NoError(t, err)
}

func TestRefresh_MissingAccount(t *testing.T) {
	svc, _ := testSetup(t)
	_, err := svc.Refresh(context.Background(), "users", "ghost@x.com",
		store.Document{"$set": map[string]any{"name": "x"}})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRefresh_NonSetOperatorsPassThrough(t *testing.T) {
	svc, st := testSetup(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "users", "a@x.com", "pw1", store.Document{"logins": float64(0)})
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, "users", "a@x.com",
		store.Document{"$inc": map[string]any{"logins": float64(1)}})
	require.NoError(t, err)

	docs, _ := st.Find(ctx, "users", store.Document{KeyField: "a@x.com"}, nil)
	assert.Equal(t, int64(1), docs[0]["logins"])
}
