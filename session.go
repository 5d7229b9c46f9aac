package signup

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// ErrUnableToParseData is returned when token claims cannot be converted
// into a session.
var ErrUnableToParseData = goerrors.New("unable to parse session data", goerrors.CategoryAuth).
	WithTextCode("SESSION_PARSE_FAILED").
	WithCode(goerrors.CodeUnauthorized)

type SessionObject struct {
	UserID         string         `json:"user_id,omitempty"`
	Audience       []string       `json:"audience,omitempty"`
	Issuer         string         `json:"issuer,omitempty"`
	IssuedAt       *time.Time     `json:"issued_at,omitempty"`
	ExpirationDate *time.Time     `json:"expiration_date,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetAudience() []string {
	return s.Audience
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetData() map[string]any {
	return s.Data
}

func sessionFromClaims(claims jwt.MapClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToParseData
	}

	userID, _ := claims.GetSubject()
	if uid, ok := claims["uid"].(string); ok && uid != "" {
		userID = uid
	}

	if userID == "" {
		return nil, ErrUnableToParseData
	}

	data := make(map[string]any)
	if purpose, ok := claims["purpose"].(string); ok {
		data["purpose"] = purpose
	}

	var audience []string
	if aud, err := claims.GetAudience(); err == nil {
		audience = append(audience, aud...)
	}

	issuer, _ := claims.GetIssuer()

	session := &SessionObject{
		UserID:   userID,
		Audience: audience,
		Issuer:   issuer,
		Data:     data,
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		session.IssuedAt = &iat.Time
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		session.ExpirationDate = &exp.Time
	}

	return session, nil
}

func sessionFromAuthClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToParseData
	}

	data := make(map[string]any)
	data["purpose"] = claims.Purpose()

	var audience []string
	var issuer string
	if tokenClaims, ok := claims.(*TokenClaims); ok {
		if tokenClaims.RegisteredClaims.Audience != nil {
			audience = append(audience, tokenClaims.RegisteredClaims.Audience...)
		}
		issuer = tokenClaims.RegisteredClaims.Issuer
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()

	return &SessionObject{
		UserID:         claims.UserID(),
		Audience:       audience,
		Issuer:         issuer,
		Data:           data,
		IssuedAt:       &issuedAt,
		ExpirationDate: &expiresAt,
	}, nil
}
