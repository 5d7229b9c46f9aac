package signup_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-signup"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// capturingSink records every activity event it sees.
type capturingSink struct {
	mu     sync.Mutex
	events []signup.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt signup.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) Events() []signup.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]signup.ActivityEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *capturingSink) EventsOfType(t signup.ActivityEventType) []signup.ActivityEvent {
	var out []signup.ActivityEvent
	for _, evt := range c.Events() {
		if evt.EventType == t {
			out = append(out, evt)
		}
	}
	return out
}

type sentMail struct {
	Recipient string
	Link      string
}

// recordingNotifier captures deliveries and can be told to fail.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, recipient, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{Recipient: recipient, Link: link})
	return nil
}

func (n *recordingNotifier) Sent() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentMail, len(n.sent))
	copy(out, n.sent)
	return out
}

// memAccounts is an in-memory Accounts store. Repository methods that the
// code under test never touches stay on the embedded nil interface.
type memAccounts struct {
	signup.Accounts

	mu      sync.Mutex
	byID    map[uuid.UUID]*signup.Account
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

func newMemAccounts() *memAccounts {
	return &memAccounts{
		byID:    map[uuid.UUID]*signup.Account{},
		byEmail: map[string]uuid.UUID{},
		now:     time.Now,
	}
}

func (m *memAccounts) clone(a *signup.Account) *signup.Account {
	out := *a
	return &out
}

func (m *memAccounts) Register(ctx context.Context, account *signup.Account) (*signup.Account, error) {
	return m.RegisterTx(ctx, nil, account)
}

func (m *memAccounts) RegisterTx(ctx context.Context, tx bun.IDB, account *signup.Account) (*signup.Account, error) {
	return m.CreateTx(ctx, tx, account)
}

func (m *memAccounts) Create(ctx context.Context, record *signup.Account, criteria ...repository.InsertCriteria) (*signup.Account, error) {
	return m.CreateTx(ctx, nil, record, criteria...)
}

func (m *memAccounts) CreateTx(ctx context.Context, tx bun.IDB, record *signup.Account, criteria ...repository.InsertCriteria) (*signup.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record.Email = signup.NormalizeEmail(record.Email)
	record.EnsureStatus()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if _, taken := m.byEmail[record.Email]; taken {
		return nil, signup.ErrEmailTaken
	}

	now := m.now()
	record.CreatedAt = &now
	record.UpdatedAt = &now

	m.byID[record.ID] = m.clone(record)
	m.byEmail[record.Email] = record.ID

	return m.clone(record), nil
}

func (m *memAccounts) GetByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*signup.Account, error) {
	return m.GetByEmailTx(ctx, nil, email, criteria...)
}

func (m *memAccounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*signup.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[signup.NormalizeEmail(email)]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	return m.clone(m.byID[id]), nil
}

func (m *memAccounts) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*signup.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, repository.NewRecordNotFound()
	}

	record, ok := m.byID[uid]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	return m.clone(record), nil
}

func (m *memAccounts) MarkVerified(ctx context.Context, id uuid.UUID) (*signup.Account, bool, error) {
	return m.MarkVerifiedTx(ctx, nil, id)
}

func (m *memAccounts) MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*signup.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.byID[id]
	if !ok {
		return nil, false, repository.NewRecordNotFound()
	}

	if record.Status == signup.StatusVerified {
		return m.clone(record), false, nil
	}

	now := m.now()
	record.Status = signup.StatusVerified
	record.VerifiedAt = &now
	record.UpdatedAt = &now

	return m.clone(record), true, nil
}

// memRepoManager serializes RunInTx callbacks so check-then-insert sequences
// behave like they do inside a real transaction.
type memRepoManager struct {
	mu       sync.Mutex
	accounts *memAccounts
}

func newMemRepoManager() *memRepoManager {
	return &memRepoManager{accounts: newMemAccounts()}
}

func (m *memRepoManager) Validate() error { return nil }
func (m *memRepoManager) MustValidate()   {}

func (m *memRepoManager) Accounts() signup.Accounts { return m.accounts }

func (m *memRepoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(ctx, bun.Tx{})
}

// testConfig implements signup.Config with static values.
type testConfig struct {
	signingKey string
	verifyTTL  time.Duration
	sessionTTL time.Duration
}

func newTestConfig() testConfig {
	return testConfig{
		signingKey: "test-signing-key",
		verifyTTL:  10 * time.Minute,
		sessionTTL: 24 * time.Hour,
	}
}

func (c testConfig) GetSigningKey() string                  { return c.signingKey }
func (c testConfig) GetSigningMethod() string               { return "HS256" }
func (c testConfig) GetContextKey() string                  { return "user" }
func (c testConfig) GetTokenLookup() string                 { return "header:Authorization" }
func (c testConfig) GetAuthScheme() string                  { return "Bearer" }
func (c testConfig) GetIssuer() string                      { return "test-issuer" }
func (c testConfig) GetAudience() []string                  { return []string{"test-audience"} }
func (c testConfig) GetVerificationTokenTTL() time.Duration { return c.verifyTTL }
func (c testConfig) GetSessionTokenTTL() time.Duration      { return c.sessionTTL }
func (c testConfig) GetVerificationBaseURL() string         { return "https://app.example.com" }

func newTestTokenService() signup.TokenService {
	return signup.NewTokenService(
		[]byte("test-signing-key"),
		10*time.Minute,
		24*time.Hour,
		"test-issuer",
		[]string{"test-audience"},
		nil,
	)
}

func seedAccount(m *memRepoManager, email, password string, verified bool) *signup.Account {
	hash, err := signup.HashPassword(password)
	if err != nil {
		panic(err)
	}

	account := &signup.Account{
		Email:        email,
		FullName:     "Test Account",
		PasswordHash: hash,
	}
	if verified {
		account.Status = signup.StatusVerified
	}

	created, err := m.accounts.Create(context.Background(), account)
	if err != nil {
		panic(err)
	}
	return created
}
