package signup

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterAccountMessage struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Password   string `json:"password"`
	UseHashid  bool
	OnResponse func(r *RegisterAccountResponse)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

type RegisterAccountResponse struct {
	Account   *Account `json:"account" doc:"The newly created account, password hash omitted."`
	EmailSent bool     `json:"email_sent" doc:"Whether the verification email was handed to the notifier."`
}

type RegisterAccountHandler struct {
	repo         RepositoryManager
	tokenService TokenService
	notifier     Notifier
	activitySink ActivitySink
	logger       Logger
	baseURL      string
}

func NewRegisterAccountHandler(repo RepositoryManager, ts TokenService, notifier Notifier, baseURL string, opts ...RegisterAccountOption) *RegisterAccountHandler {
	h := &RegisterAccountHandler{
		repo:         repo,
		tokenService: ts,
		notifier:     normalizeNotifier(notifier),
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		baseURL:      baseURL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	return h
}

type RegisterAccountOption func(*RegisterAccountHandler)

// WithRegisterActivitySink sets the sink used for registration events.
func WithRegisterActivitySink(sink ActivitySink) RegisterAccountOption {
	return func(h *RegisterAccountHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithRegisterLogger overrides the logger.
func WithRegisterLogger(logger Logger) RegisterAccountOption {
	return func(h *RegisterAccountHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	account := &Account{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.Email)

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		if _, err := h.repo.Accounts().GetByEmailTx(ctx, tx, email); err == nil {
			return ErrEmailTaken.WithMetadata(map[string]any{
				"email": email,
			})
		} else if !IsAccountNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing account")
		}

		account.PasswordHash = hash
		account.Email = email
		account.Phone = event.Phone
		account.FullName = event.FullName
		if event.UseHashid {
			if id, err := hashid.NewUUID(email); err == nil {
				account.ID = id
			}
		}

		if account, err = h.repo.Accounts().CreateTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account").
				WithTextCode(ErrEmailTaken.TextCode).
				WithCode(goerrors.CodeConflict)
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	h.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventRegistration,
		Actor:     ActorRef{ID: account.ID.String(), Type: "account"},
		AccountID: account.ID.String(),
		ToStatus:  account.Status,
	})

	// Delivery happens after the commit: a dead mailbox must not undo the
	// registration, the client learns about it through EmailSent.
	emailSent := h.deliverVerification(ctx, account)

	if event.OnResponse != nil {
		event.OnResponse(&RegisterAccountResponse{
			Account:   account.Sanitize(),
			EmailSent: emailSent,
		})
	}

	return nil
}

func (h *RegisterAccountHandler) deliverVerification(ctx context.Context, account *Account) bool {
	token, err := h.tokenService.IssueToken(account.ID.String(), PurposeVerify)
	if err != nil {
		h.logger.Error("failed to issue verification token for %s: %v", account.Email, err)
		h.recordDeliveryFailure(ctx, account, err)
		return false
	}

	link := BuildVerificationLink(h.baseURL, token)
	if err := h.notifier.Send(ctx, account.Email, link); err != nil {
		h.logger.Error("failed to deliver verification email to %s: %v", account.Email, err)
		h.recordDeliveryFailure(ctx, account, err)
		return false
	}

	return true
}

func (h *RegisterAccountHandler) recordDeliveryFailure(ctx context.Context, account *Account, cause error) {
	h.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventDeliveryFailure,
		Actor:     ActorRef{Type: "system"},
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"reason": cause.Error(),
		},
	})
}

func (h *RegisterAccountHandler) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := normalizeActivitySink(h.activitySink).Record(ctx, event); err != nil {
		h.logger.Warn("register activity sink error: %v", err)
	}
}
