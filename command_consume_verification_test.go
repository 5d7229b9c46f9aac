package signup_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-signup"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConsumeFixture(t *testing.T) (*memRepoManager, signup.TokenService, *capturingSink, *signup.ConsumeVerificationHandler) {
	t.Helper()

	repo := newMemRepoManager()
	ts := newTestTokenService()
	sink := &capturingSink{}
	machine := signup.NewAccountStateMachine(repo.Accounts(), signup.WithStateMachineActivitySink(sink))

	return repo, ts, sink, signup.NewConsumeVerificationHandler(repo, ts, machine)
}

func TestConsumeVerificationHandler(t *testing.T) {
	t.Run("valid token verifies the account", func(t *testing.T) {
		repo, ts, sink, handler := newConsumeFixture(t)
		account := seedAccount(repo, "ann@example.com", "s3cretPassw0rd", false)

		token, err := ts.IssueToken(account.ID.String(), signup.PurposeVerify)
		require.NoError(t, err)

		var response *signup.ConsumeVerificationResponse
		err = handler.Execute(context.Background(), signup.ConsumeVerificationMessage{
			Token: token,
			OnResponse: func(r *signup.ConsumeVerificationResponse) {
				response = r
			},
		})
		require.NoError(t, err)
		require.NotNil(t, response)

		assert.Equal(t, signup.OutcomeVerified, response.Outcome)
		assert.True(t, response.Account.IsVerified())
		assert.NotNil(t, response.Account.VerifiedAt)
		assert.Empty(t, response.Account.PasswordHash)

		stored, err := repo.Accounts().GetByEmail(context.Background(), account.Email)
		require.NoError(t, err)
		assert.True(t, stored.IsVerified())

		events := sink.EventsOfType(signup.ActivityEventVerificationSuccess)
		require.Len(t, events, 1)
		assert.Equal(t, account.ID.String(), events[0].AccountID)
	})

	t.Run("replay of a consumed token is idempotent", func(t *testing.T) {
		repo, ts, sink, handler := newConsumeFixture(t)
		account := seedAccount(repo, "ann@example.com", "s3cretPassw0rd", false)

		token, err := ts.IssueToken(account.ID.String(), signup.PurposeVerify)
		require.NoError(t, err)

		require.NoError(t, handler.Execute(context.Background(), signup.ConsumeVerificationMessage{Token: token}))

		var response *signup.ConsumeVerificationResponse
		err = handler.Execute(context.Background(), signup.ConsumeVerificationMessage{
			Token: token,
			OnResponse: func(r *signup.ConsumeVerificationResponse) {
				response = r
			},
		})
		require.NoError(t, err, "replay within the token's lifetime succeeds")
		require.NotNil(t, response)
		assert.Equal(t, signup.OutcomeAlreadyVerified, response.Outcome)
		assert.True(t, response.Account.IsVerified())

		events := sink.EventsOfType(signup.ActivityEventVerificationSuccess)
		assert.Len(t, events, 1, "only the first consumption emits an event")
	})

	t.Run("second token for the same account also lands on already verified", func(t *testing.T) {
		repo, ts, _, handler := newConsumeFixture(t)
		account := seedAccount(repo, "ann@example.com", "s3cretPassw0rd", false)

		first, err := ts.IssueToken(account.ID.String(), signup.PurposeVerify)
		require.NoError(t, err)
		second, err := ts.IssueToken(account.ID.String(), signup.PurposeVerify)
		require.NoError(t, err)

		require.NoError(t, handler.Execute(context.Background(), signup.ConsumeVerificationMessage{Token: first}))

		var response *signup.ConsumeVerificationResponse
		err = handler.Execute(context.Background(), signup.ConsumeVerificationMessage{
			Token: second,
			OnResponse: func(r *signup.ConsumeVerificationResponse) {
				response = r
			},
		})
		require.NoError(t, err)
		assert.Equal(t, signup.OutcomeAlreadyVerified, response.Outcome)
	})

	t.Run("expired token", func(t *testing.T) {
		repo, ts, _, handler := newConsumeFixture(t)
		account := seedAccount(repo, "ann@example.com", "s3cretPassw0rd", false)

		now := time.Now()
		expired, err := ts.SignClaims(&signup.TokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "test-issuer",
				Subject:   account.ID.String(),
				Audience:  jwt.ClaimStrings{"test-audience"},
				IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
			},
			UID:          account.ID.String(),
			TokenPurpose: signup.PurposeVerify,
		})
		require.NoError(t, err)

		err = handler.Execute(context.Background(), signup.ConsumeVerificationMessage{Token: expired})
		require.Error(t, err)
		assert.True(t, signup.IsTokenExpiredError(err))

		stored, err := repo.Accounts().GetByEmail(context.Background(), account.Email)
		require.NoError(t, err)
		assert.False(t, stored.IsVerified(), "expired token must not verify")
	})

	t.Run("malformed token", func(t *testing.T) {
		_, _, _, handler := newConsumeFixture(t)

		err := handler.Execute(context.Background(), signup.ConsumeVerificationMessage{Token: "not-a-token"})
		require.Error(t, err)
		assert.True(t, signup.IsMalformedError(err))
	})

	t.Run("session token is rejected", func(t *testing.T) {
		repo, ts, _, handler := newConsumeFixture(t)
		account := seedAccount(repo, "ann@example.com", "s3cretPassw0rd", false)

		sessionToken, err := ts.IssueToken(account.ID.String(), signup.PurposeSession)
		require.NoError(t, err)

		err = handler.Execute(context.Background(), signup.ConsumeVerificationMessage{Token: sessionToken})
		require.Error(t, err)
		assert.True(t, signup.IsMalformedError(err), "wrong purpose reads as malformed, not expired")

		stored, err := repo.Accounts().GetByEmail(context.Background(), account.Email)
		require.NoError(t, err)
		assert.False(t, stored.IsVerified())
	})

	t.Run("token for a deleted account behaves like an expired link", func(t *testing.T) {
		_, ts, _, handler := newConsumeFixture(t)

		token, err := ts.IssueToken(uuid.NewString(), signup.PurposeVerify)
		require.NoError(t, err)

		err = handler.Execute(context.Background(), signup.ConsumeVerificationMessage{Token: token})
		require.Error(t, err)
		assert.True(t, signup.IsTokenExpiredError(err))
	})

	t.Run("cancelled context aborts early", func(t *testing.T) {
		_, _, _, handler := newConsumeFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := handler.Execute(ctx, signup.ConsumeVerificationMessage{Token: "anything"})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
