package signup

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ResendVerificationMessage struct {
	Email      string `json:"email"`
	OnResponse func(r *ResendVerificationResponse)
}

func (e ResendVerificationMessage) Type() string { return "account.verification.resend" }

type ResendVerificationResponse struct {
	Email     string `json:"email" doc:"Normalized recipient address."`
	EmailSent bool   `json:"email_sent" doc:"Whether the fresh link was handed to the notifier."`
}

type ResendVerificationHandler struct {
	repo         RepositoryManager
	tokenService TokenService
	notifier     Notifier
	activitySink ActivitySink
	logger       Logger
	baseURL      string
}

func NewResendVerificationHandler(repo RepositoryManager, ts TokenService, notifier Notifier, baseURL string, opts ...ResendVerificationOption) *ResendVerificationHandler {
	h := &ResendVerificationHandler{
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

type ResendVerificationOption func(*ResendVerificationHandler)

// WithResendActivitySink sets the sink used for resend events.
func WithResendActivitySink(sink ActivitySink) ResendVerificationOption {
	return func(h *ResendVerificationHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithResendLogger overrides the logger.
func WithResendLogger(logger Logger) ResendVerificationOption {
	return func(h *ResendVerificationHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func (h *ResendVerificationHandler) Execute(ctx context.Context, event ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification resend",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendVerificationHandler) execute(ctx context.Context, event ResendVerificationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.Email)
	if email == "" {
		return goerrors.New("email is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	account, err := h.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if IsAccountNotFound(err) {
			return ErrAccountNotFound.WithMetadata(map[string]any{
				"email": email,
			})
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for resend")
	}

	if account.IsVerified() {
		return ErrAlreadyVerified.WithMetadata(map[string]any{
			"email": email,
		})
	}

	// Previously issued tokens stay valid until their own expiry, the
	// resend only mints an additional link.
	token, err := h.tokenService.IssueToken(account.ID.String(), PurposeVerify)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue verification token")
	}

	link := BuildVerificationLink(h.baseURL, token)

	emailSent := true
	if err := h.notifier.Send(ctx, account.Email, link); err != nil {
		h.logger.Error("failed to deliver verification email to %s: %v", account.Email, err)
		h.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventDeliveryFailure,
			Actor:     ActorRef{Type: "system"},
			AccountID: account.ID.String(),
			Metadata: map[string]any{
				"reason": err.Error(),
			},
		})
		emailSent = false
	}

	h.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventVerificationResent,
		Actor:      ActorRef{ID: account.ID.String(), Type: "account"},
		AccountID:  account.ID.String(),
		FromStatus: account.Status,
		ToStatus:   account.Status,
	})

	if event.OnResponse != nil {
		event.OnResponse(&ResendVerificationResponse{
			Email:     account.Email,
			EmailSent: emailSent,
		})
	}

	return nil
}

func (h *ResendVerificationHandler) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := normalizeActivitySink(h.activitySink).Record(ctx, event); err != nil {
		h.logger.Warn("resend activity sink error: %v", err)
	}
}
