package auth

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// --- Mock implementations ---

type mockAccountRepo struct {
	byID map[string]*Account
}

func newMockAccountRepo(accounts ...Account) *mockAccountRepo {
	m := &mockAccountRepo{byID: make(map[string]*Account)}
	for i := range accounts {
		m.byID[accounts[i].ID] = &accounts[i]
	}
	return m
}

func (m *mockAccountRepo) Create(_ context.Context, a *Account) error {
	m.byID[a.ID] = a
	return nil
}

func (m *mockAccountRepo) GetByID(_ context.Context, id string) (*Account, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, apperr.NotFound("account", id)
	}
	c := *a
	return &c, nil
}

func (m *mockAccountRepo) GetByUsername(_ context.Context, username string) (*Account, error) {
	for _, a := range m.byID {
		if a.Username == username {
			c := *a
			return &c, nil
		}
	}
	return nil, apperr.NotFound("account", username)
}

func (m *mockAccountRepo) List(_ context.Context) ([]Account, error) {
	out := make([]Account, 0, len(m.byID))
	for _, a := range m.byID {
		out = append(out, *a)
	}
	return out, nil
}

func (m *mockAccountRepo) SetAdmin(_ context.Context, id string, admin bool) error {
	a, ok := m.byID[id]
	if !ok {
		return apperr.NotFound("account", id)
	}
	a.IsAdmin = admin
	return nil
}

func (m *mockAccountRepo) SetActive(_ context.Context, id string, active bool) error {
	a, ok := m.byID[id]
	if !ok {
		return apperr.NotFound("account", id)
	}
	a.IsActive = active
	return nil
}

func (m *mockAccountRepo) Delete(_ context.Context, id string) error {
	delete(m.byID, id)
	return nil
}

// --- Helpers ---

func newTestAccount(t *testing.T, id, username, password string) Account {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	return Account{ID: id, Username: username, PasswordHash: hash, IsActive: true}
}

func newTestTokens(t *testing.T) *Tokens {
	t.Helper()
	tokens, err := NewTokens("test-secret", time.Minute)
	require.NoError(t, err)
	return tokens
}

// --- Tests ---

func TestTokens(t *testing.T) {
	tokens := newTestTokens(t)
	tok, err := tokens.Issue(&Account{ID: "acc-1", Username: "alice", IsAdmin: true})
	require.NoError(t, err)

	claims, err := tokens.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.Admin)

	t.Run("expired", func(t *testing.T) {
		later := newTestTokens(t)
		later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		_, err := later.Verify(tok.AccessToken)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokens("other-secret", time.Minute)
		require.NoError(t, err)
		_, err = other.Verify(tok.AccessToken)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Verify("not-a-token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	_, err = NewTokens("", time.Minute)
	require.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "secret123"))
	assert.False(t, CheckPassword(hash, "secret124"))

	_, err = HashPassword("short")
	var valErr *apperr.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "password", valErr.Field)
}

func TestService_Login(t *testing.T) {
	repo := newMockAccountRepo(newTestAccount(t, "acc-1", "alice", "wonderland"))
	svc := NewService(repo, newTestTokens(t))
	ctx := context.Background()

	tok, err := svc.Login(ctx, "alice", "wonderland")
	require.NoError(t, err)
	require.NotEmpty(t, tok.AccessToken)

	p, err := svc.Authenticate(ctx, tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, Principal{AccountID: "acc-1", Username: "alice"}, p)

	_, err = svc.Login(ctx, "alice", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "bob", "wonderland")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// Deactivation applies to tokens already issued.
	require.NoError(t, repo.SetActive(ctx, "acc-1", false))
	_, err = svc.Authenticate(ctx, tok.AccessToken)
	require.True(t, errors.Is(err, ErrInactive))
	_, err = svc.Login(ctx, "alice", "wonderland")
	require.ErrorIs(t, err, ErrInactive)
}

func TestService_Account(t *testing.T) {
	acc := newTestAccount(t, "acc-1", "alice", "wonderland")
	acc.Email = "alice@example.com"
	repo := newMockAccountRepo(acc)
	svc := NewService(repo, newTestTokens(t))

	got, err := svc.Account(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Empty(t, got.PasswordHash)
	assert.NotEmpty(t, repo.byID["acc-1"].PasswordHash)

	_, err = svc.Account(context.Background(), "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestService_SetFlags(t *testing.T) {
	admin := newTestAccount(t, "admin", "root", "password")
	admin.IsAdmin = true
	repo := newMockAccountRepo(admin, newTestAccount(t, "user", "bob", "password"))
	svc := NewService(repo, newTestTokens(t))
	ctx := context.Background()
	actor := Principal{AccountID: "admin", Username: "root", IsAdmin: true}

	var valErr *apperr.ValidationError
	require.ErrorAs(t, svc.SetAdmin(ctx, actor, "admin", false), &valErr)
	require.ErrorAs(t, svc.SetActive(ctx, actor, "admin", false), &valErr)

	require.NoError(t, svc.SetAdmin(ctx, actor, "user", true))
	assert.True(t, repo.byID["user"].IsAdmin)
	require.NoError(t, svc.SetActive(ctx, actor, "user", false))
	assert.False(t, repo.byID["user"].IsActive)

	require.True(t, apperr.IsNotFound(svc.SetAdmin(ctx, actor, "missing", true)))
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{AccountID: "a"})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", p.AccountID)
}
