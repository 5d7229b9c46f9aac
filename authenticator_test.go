package signup_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-signup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthFixture(t *testing.T) (*memRepoManager, *capturingSink, *signup.Auther) {
	t.Helper()

	repo := newMemRepoManager()
	sink := &capturingSink{}
	provider := signup.NewAccountProvider(repo.Accounts())

	auther := signup.NewAuthenticator(provider, newTestConfig()).
		WithActivitySink(sink)

	return repo, sink, auther
}

func TestAutherLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("verified account gets a session token", func(t *testing.T) {
		repo, sink, auther := newAuthFixture(t)
		account := seedAccount(repo, "ann@example.com", "s3cretPassw0rd", true)

		token, err := auther.Login(ctx, "Ann@Example.com", "s3cretPassw0rd")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		claims, err := auther.TokenService().ValidateForPurpose(token, signup.PurposeSession)
		require.NoError(t, err)
		assert.Equal(t, account.ID.String(), claims.UserID())

		events := sink.EventsOfType(signup.ActivityEventLoginSuccess)
		require.Len(t, events, 1)
		assert.Equal(t, account.ID.String(), events[0].AccountID)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, sink, auther := newAuthFixture(t)

		token, err := auther.Login(ctx, "ghost@example.com", "whatever")
		require.Error(t, err)
		require.Empty(t, token)
		assert.ErrorIs(t, err, signup.ErrAccountNotFound)

		require.Len(t, sink.EventsOfType(signup.ActivityEventLoginFailure), 1)
	})

	t.Run("wrong password", func(t *testing.T) {
		repo, sink, auther := newAuthFixture(t)
		seedAccount(repo, "ann@example.com", "s3cretPassw0rd", true)

		_, err := auther.Login(ctx, "ann@example.com", "wrongPassword")
		require.Error(t, err)
		assert.ErrorIs(t, err, signup.ErrInvalidCredentials)
		assert.NotErrorIs(t, err, signup.ErrAccountNotFound)

		require.Len(t, sink.EventsOfType(signup.ActivityEventLoginFailure), 1)
	})

	t.Run("unverified account with correct password", func(t *testing.T) {
		repo, _, auther := newAuthFixture(t)
		seedAccount(repo, "ann@example.com", "s3cretPassw0rd", false)

		_, err := auther.Login(ctx, "ann@example.com", "s3cretPassw0rd")
		require.Error(t, err)
		assert.ErrorIs(t, err, signup.ErrAccountNotVerified)
	})

	t.Run("wrong password on an unverified account reads as bad credentials", func(t *testing.T) {
		repo, _, auther := newAuthFixture(t)
		seedAccount(repo, "ann@example.com", "s3cretPassw0rd", false)

		_, err := auther.Login(ctx, "ann@example.com", "wrongPassword")
		require.Error(t, err)
		assert.ErrorIs(t, err, signup.ErrInvalidCredentials, "credential check runs before the verification gate")
	})
}

func TestAutherSessionFromToken(t *testing.T) {
	ctx := context.Background()

	t.Run("session token round trip", func(t *testing.T) {
		repo, _, auther := newAuthFixture(t)
		account := seedAccount(repo, "ann@example.com", "s3cretPassw0rd", true)

		token, err := auther.Login(ctx, "ann@example.com", "s3cretPassw0rd")
		require.NoError(t, err)

		session, err := auther.SessionFromToken(token)
		require.NoError(t, err)
		assert.Equal(t, account.ID.String(), session.GetUserID())

		id, err := session.GetUserUUID()
		require.NoError(t, err)
		assert.Equal(t, account.ID, id)

		identity, err := auther.IdentityFromSession(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, account.ID.String(), identity.ID())
		assert.Equal(t, "ann@example.com", identity.Email())
		assert.True(t, identity.Verified())
	})

	t.Run("verification token never opens a session", func(t *testing.T) {
		repo, _, auther := newAuthFixture(t)
		account := seedAccount(repo, "ann@example.com", "s3cretPassw0rd", true)

		verifyToken, err := auther.TokenService().IssueToken(account.ID.String(), signup.PurposeVerify)
		require.NoError(t, err)

		_, err = auther.SessionFromToken(verifyToken)
		require.Error(t, err)
		assert.True(t, signup.IsMalformedError(err))
	})

	t.Run("garbage token", func(t *testing.T) {
		_, _, auther := newAuthFixture(t)

		_, err := auther.SessionFromToken("garbage")
		require.Error(t, err)
	})
}
