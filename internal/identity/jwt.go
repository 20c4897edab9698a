package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the shape of access tokens the external identity provider issues.
type Claims struct {
	Role     string `json:"role"`
	FirmID   string `json:"firm_id,omitempty"`
	AgencyID string `json:"agency_id,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// JWTValidator validates provider-issued HS256 tokens and extracts the
// principal the workflow trusts for every authorization check.
type JWTValidator struct {
	signingKey []byte
	issuer     string
}

func NewJWTValidator(signingKey, issuer string) *JWTValidator {
	return &JWTValidator{signingKey: []byte(signingKey), issuer: issuer}
}

// Validate parses and verifies a token, returning the embedded principal.
func (v *JWTValidator) Validate(tokenString string) (Principal, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrTokenInvalid
	}

	role := Role(claims.Role)
	if !role.Valid() {
		return Principal{}, ErrTokenInvalid
	}

	return Principal{
		UserID:   claims.Subject,
		Role:     role,
		FirmID:   claims.FirmID,
		AgencyID: claims.AgencyID,
	}, nil
}

// IssueToken mints a token for tests and local development. Production tokens
// come from the external identity provider.
func (v *JWTValidator) IssueToken(p Principal, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:     string(p.Role),
		FirmID:   p.FirmID,
		AgencyID: p.AgencyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(v.signingKey)
}
