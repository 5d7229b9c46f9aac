package signup

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// AccountStore is what AccountProvider needs to resolve accounts. The
// Accounts repository satisfies it.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*Account, error)
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*Account, error)
}

// AccountProvider resolves identities backed by the accounts store
type AccountProvider struct {
	store     AccountStore
	Validator func(*Account) error
	logger    Logger
}

// NewAccountProvider will create a new AccountProvider
func NewAccountProvider(store AccountStore) *AccountProvider {
	return &AccountProvider{
		store:     store,
		logger:    defLogger{},
		Validator: defaultAccountValidator,
	}
}

func (p *AccountProvider) WithLogger(l Logger) *AccountProvider {
	if l != nil {
		p.logger = l
	}
	return p
}

func (p *AccountProvider) validate(account *Account) error {
	if p.Validator != nil {
		return p.Validator(account)
	}
	return defaultAccountValidator(account)
}

// VerifyIdentity finds the account, compares the password, and requires a
// verified email. The checks run in that order so callers learn the most
// specific failure: unknown account, wrong password, then unverified.
func (p AccountProvider) VerifyIdentity(ctx context.Context, email, password string) (Identity, error) {
	account, err := p.store.GetByEmail(ctx, email)
	if err != nil {
		if IsAccountNotFound(err) {
			return nil, ErrAccountNotFound.WithMetadata(map[string]any{
				"email": NormalizeEmail(email),
			})
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve account during verification")
	}

	if err := ensureAuthenticatableAccount(account); err != nil {
		return nil, err
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to compare password hash")
	}

	if !account.IsVerified() {
		return nil, ErrAccountNotVerified.WithMetadata(map[string]any{
			"account_id": account.ID.String(),
		})
	}

	if err := p.validate(account); err != nil {
		return nil, err
	}

	return accountIdentity{
		id:       account.ID.String(),
		email:    account.Email,
		fullName: account.FullName,
		verified: account.IsVerified(),
	}, nil
}

// FindIdentityByIdentifier resolves an identity by account ID or email.
func (p AccountProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	var account *Account
	var err error

	if _, parseErr := uuid.Parse(identifier); parseErr == nil {
		account, err = p.store.GetByID(ctx, identifier)
	} else {
		account, err = p.store.GetByEmail(ctx, identifier)
	}

	if err != nil {
		return nil, err
	}

	if err := ensureAuthenticatableAccount(account); err != nil {
		return nil, err
	}

	if err := p.validate(account); err != nil {
		return nil, err
	}

	return accountIdentity{
		id:       account.ID.String(),
		email:    account.Email,
		fullName: account.FullName,
		verified: account.IsVerified(),
	}, nil
}

func ensureAuthenticatableAccount(account *Account) error {
	if account == nil || account.ID == uuid.Nil {
		return ErrAccountNotFound
	}

	if account.PasswordHash == "" {
		return errors.New("account has no password hash", errors.CategoryInternal)
	}

	return nil
}

func defaultAccountValidator(account *Account) error {
	if account == nil {
		return ErrAccountNotFound
	}
	return nil
}

type accountIdentity struct {
	id       string
	email    string
	fullName string
	verified bool
}

var _ Identity = accountIdentity{}

func (a accountIdentity) ID() string       { return a.id }
func (a accountIdentity) Email() string    { return a.email }
func (a accountIdentity) FullName() string { return a.fullName }
func (a accountIdentity) Verified() bool   { return a.verified }
