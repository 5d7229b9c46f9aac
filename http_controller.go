package signup

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/nyaruka/phonenumbers"
)

// HTTPAuthenticator is the surface the controller needs from the route
// authenticator.
type HTTPAuthenticator interface {
	Login(ctx router.Context, payload LoginPayload) (string, error)
	Logout(ctx router.Context)
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
	MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error
}

func GetRouterSession(c router.Context, key string) (*SessionObject, error) {
	cookie := c.Locals(key)
	if cookie == nil {
		return nil, ErrUnableToFindSession
	}

	token, ok := cookie.(*jwt.Token)
	if token == nil || !ok {
		return nil, ErrUnableToDecodeSession
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToMapClaims
	}

	return sessionFromClaims(claims)
}

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.
		Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("auth.register.post")

	app.
		Get(fmt.Sprintf("%s/:token", controller.Routes.Verify), controller.VerificationConsume).
		SetName("auth.verify.get")

	app.
		Get(controller.Routes.Verify, controller.VerificationConsume).
		SetName("auth.verify-query.get")

	app.
		Post(controller.Routes.Login, controller.LoginPost).
		SetName("auth.sign-in.post")

	app.
		Post(controller.Routes.Resend, controller.ResendPost).
		SetName("auth.resend.post")

	app.
		Get(controller.Routes.Logout, controller.LogOut).
		SetName("auth.sign-out.get")

	protected := controller.Auther.ProtectedRoute(
		controller.Config,
		controller.Auther.MakeClientRouteAuthErrorHandler(false),
	)

	app.
		Get(controller.Routes.Me, protected(controller.Me)).
		SetName("auth.me.get")
}

type AuthControllerRoutes struct {
	Register string
	Verify   string
	Login    string
	Logout   string
	Resend   string
	Me       string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	TokenService TokenService
	Machine      AccountStateMachine
	Notifier     Notifier
	Config       Config
	Routes       *AuthControllerRoutes
	Auther       HTTPAuthenticator
	ActivitySink ActivitySink
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		ActivitySink: noopActivitySink{},
		Routes: &AuthControllerRoutes{
			Register: "/auth/register",
			Verify:   "/auth/verify",
			Login:    "/auth/login",
			Logout:   "/auth/logout",
			Resend:   "/auth/resend",
			Me:       "/auth/me",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	if c.TokenService == nil {
		panic("Missing TokenService in auth controller...")
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	if c.Machine == nil {
		c.Machine = NewAccountStateMachine(
			c.Repo.Accounts(),
			WithStateMachineActivitySink(c.ActivitySink),
			WithStateMachineLogger(c.Logger),
		)
	}

	if c.Notifier == nil {
		c.Notifier = noopNotifier{}
	}

	return c
}

// RegistrationCreatePayload is the registration request body
type RegistrationCreatePayload struct {
	FullName string `form:"full_name" json:"full_name"`
	Email    string `form:"email" json:"email"`
	Phone    string `form:"phone_number" json:"phone_number"`
	Password string `form:"password" json:"password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(validatePhoneNumber)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func validatePhoneNumber(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	num, err := phonenumbers.Parse(s, "US")
	if err != nil {
		return err
	}

	if !phonenumbers.IsValidNumber(num) {
		return fmt.Errorf("invalid phone number")
	}

	return nil
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register account parse payload: %v", err)
		return writeErrorResponse(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "Error parsing body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register account validate payload: %v", err)
		return writeValidationResponse(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("============================")
	}

	var res *RegisterAccountResponse

	req := RegisterAccountMessage{
		FullName: payload.FullName,
		Email:    payload.Email,
		Phone:    payload.Phone,
		Password: payload.Password,
		OnResponse: func(r *RegisterAccountResponse) {
			res = r
		},
	}

	registerAccount := NewRegisterAccountHandler(
		a.Repo,
		a.TokenService,
		a.Notifier,
		a.Config.GetVerificationBaseURL(),
		WithRegisterActivitySink(a.ActivitySink),
		WithRegisterLogger(a.Logger),
	)

	if err := registerAccount.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register account error: %v", err)
		return writeErrorResponse(ctx, err)
	}

	return ctx.JSON(fiber.StatusCreated, router.ViewContext{
		"account":    res.Account,
		"email_sent": res.EmailSent,
	})
}

func (a *AuthController) VerificationConsume(ctx router.Context) error {
	token := ctx.Param("token", "")
	if token == "" {
		token = ctx.Query("token", "")
	}

	if token == "" {
		return writeErrorResponse(ctx, goerrors.New("verification token is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest))
	}

	var res *ConsumeVerificationResponse

	req := ConsumeVerificationMessage{
		Token: token,
		OnResponse: func(r *ConsumeVerificationResponse) {
			res = r
		},
	}

	consumeVerification := NewConsumeVerificationHandler(a.Repo, a.TokenService, a.Machine)

	if err := consumeVerification.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("verification consume error: %v", err)
		return writeErrorResponse(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"account": res.Account,
		"status":  string(res.Outcome),
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Email
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return writeErrorResponse(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "Error parsing body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("login validate payload: %v", err)
		return writeValidationResponse(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	token, err := a.Auther.Login(ctx, payload)
	if err != nil {
		return writeErrorResponse(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"token": token,
	})
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.JSON(router.StatusOK, router.ViewContext{
		"logged_out": true,
	})
}

// ResendPayload holds the address that needs a fresh verification link
type ResendPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r ResendPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) ResendPost(ctx router.Context) error {
	payload := new(ResendPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("resend parse payload: %v", err)
		return writeErrorResponse(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "Error parsing body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("resend validate payload: %v", err)
		return writeValidationResponse(ctx, err)
	}

	var res *ResendVerificationResponse

	req := ResendVerificationMessage{
		Email: payload.Email,
		OnResponse: func(r *ResendVerificationResponse) {
			res = r
		},
	}

	resendVerification := NewResendVerificationHandler(
		a.Repo,
		a.TokenService,
		a.Notifier,
		a.Config.GetVerificationBaseURL(),
		WithResendActivitySink(a.ActivitySink),
		WithResendLogger(a.Logger),
	)

	if err := resendVerification.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("resend verification error: %v", err)
		return writeErrorResponse(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"email":      res.Email,
		"email_sent": res.EmailSent,
	})
}

func (a *AuthController) Me(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return writeErrorResponse(ctx, goerrors.Wrap(err, goerrors.CategoryAuth, "Invalid session").
			WithCode(goerrors.CodeUnauthorized))
	}

	account, err := a.Repo.Accounts().GetByID(ctx.Context(), session.GetUserID())
	if err != nil {
		if IsAccountNotFound(err) {
			return writeErrorResponse(ctx, ErrAccountNotFound)
		}
		return writeErrorResponse(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"account": account.Sanitize(),
	})
}

func writeValidationResponse(c router.Context, err error) error {
	return c.JSON(router.StatusBadRequest, router.ViewContext{
		"error":      "Validation failed",
		"code":       "VALIDATION_FAILED",
		"validation": formatValidationErrors(err),
	})
}

func formatValidationErrors(err error) map[string]string {
	out := map[string]string{}
	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}
	if err != nil {
		out["payload"] = err.Error()
	}
	return out
}

func writeErrorResponse(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = statusFromCategory(richErr.Category)
	}

	body := router.ViewContext{
		"error": richErr.Message,
	}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	return c.JSON(status, body)
}

func statusFromCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return router.StatusBadRequest
	case goerrors.CategoryAuth:
		return router.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return router.StatusForbidden
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	default:
		return router.StatusInternalServerError
	}
}

func defaultErrHandler(c router.Context, err error) error {
	return writeErrorResponse(c, err)
}
