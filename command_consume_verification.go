package signup

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ConsumeVerificationMessage struct {
	Token      string `json:"token" doc:"Signed verification token from the emailed link."`
	OnResponse func(r *ConsumeVerificationResponse)
}

func (e ConsumeVerificationMessage) Type() string { return "account.verification.consume" }

type ConsumeVerificationResponse struct {
	Account *Account      `json:"account" doc:"The verified account, password hash omitted."`
	Outcome VerifyOutcome `json:"outcome" doc:"Whether this request performed the verification or found it done."`
}

type ConsumeVerificationHandler struct {
	repo         RepositoryManager
	tokenService TokenService
	machine      AccountStateMachine
}

func NewConsumeVerificationHandler(repo RepositoryManager, ts TokenService, machine AccountStateMachine) *ConsumeVerificationHandler {
	return &ConsumeVerificationHandler{
		repo:         repo,
		tokenService: ts,
		machine:      machine,
	}
}

func (h *ConsumeVerificationHandler) Execute(ctx context.Context, event ConsumeVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConsumeVerificationHandler) execute(ctx context.Context, event ConsumeVerificationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	claims, err := h.tokenService.ValidateForPurpose(event.Token, PurposeVerify)
	if err != nil {
		return err
	}

	account, err := h.repo.Accounts().GetByID(ctx, claims.UserID())
	if err != nil {
		if IsAccountNotFound(err) {
			// The subject is gone, from the caller's point of view the link
			// simply no longer works.
			return ErrTokenExpired.WithMetadata(map[string]any{
				"account_id": claims.UserID(),
			})
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for verification")
	}

	actor := ActorRef{ID: account.ID.String(), Type: "account"}

	account, outcome, err := h.machine.Verify(ctx, actor, account,
		WithTransitionReason("verification token consumed"),
		WithTransitionMetadata(map[string]any{
			"token_id": tokenID(claims),
		}),
	)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify account")
	}

	if event.OnResponse != nil {
		event.OnResponse(&ConsumeVerificationResponse{
			Account: account.Sanitize(),
			Outcome: outcome,
		})
	}

	return nil
}

func tokenID(claims AuthClaims) string {
	if tc, ok := claims.(*TokenClaims); ok {
		return tc.RegisteredClaims.ID
	}
	return ""
}
