package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hugh/schoolhub/internal/database/models"
	"github.com/hugh/schoolhub/pkg/crypto"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	issuer = "schoolhub"

	PurposeAccess = "access"
	PurposeSignup = "signup"
)

type Claims struct {
	UserID  uuid.UUID   `json:"user_id,omitempty"`
	Role    models.Role `json:"role,omitempty"`
	Purpose string      `json:"purpose"`
	Sealed  string      `json:"sealed,omitempty"`
	jwt.RegisteredClaims
}

func init() {
	// Whole-second claims would let a token outlive its TTL boundary and
	// survive a password change made in the same second.
	jwt.TimePrecision = time.Microsecond
}

// IssuedAt returns the iat claim, or the zero time when absent. Tokens are
// issued on millisecond boundaries; rounding removes the float error of the
// decoded claim.
func (c *Claims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time.Round(time.Millisecond)
}

type JWTService struct {
	secret []byte
	expiry time.Duration
	sealer *crypto.Encryptor
	now    func() time.Time
}

type Option func(*JWTService)

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(s *JWTService) { s.now = now }
}

// WithSealer sets the encryptor used for ephemeral payloads. Without one a
// fresh identity is generated, so sealed tokens do not survive a restart.
func WithSealer(enc *crypto.Encryptor) Option {
	return func(s *JWTService) { s.sealer = enc }
}

func NewJWTService(secret string, expiry time.Duration, opts ...Option) *JWTService {
	s := &JWTService{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sealer == nil {
		enc, err := crypto.NewEncryptor("")
		if err != nil {
			panic("auth: generating sealing identity: " + err.Error())
		}
		s.sealer = enc
	}
	return s
}

// Expiry is the lifetime of access tokens.
func (s *JWTService) Expiry() time.Duration {
	return s.expiry
}

// GenerateToken issues an access token for user.
func (s *JWTService) GenerateToken(user *models.User) (string, error) {
	now := s.now()
	issued := now.Truncate(time.Millisecond)
	claims := Claims{
		UserID:  user.ID,
		Role:    user.Role,
		Purpose: PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			Issuer:    issuer,
			Subject:   user.ID.String(),
		},
	}
	return s.sign(claims)
}

// ValidateToken verifies an access token.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != PurposeAccess || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueEphemeral issues a short-lived token for purpose whose payload is
// sealed, so it can carry data that must not be readable by the holder.
func (s *JWTService) IssueEphemeral(purpose string, payload interface{}, ttl time.Duration) (string, error) {
	sealed, err := s.sealer.Seal(payload)
	if err != nil {
		return "", err
	}
	now := s.now()
	issued := now.Truncate(time.Millisecond)
	claims := Claims{
		Purpose: purpose,
		Sealed:  sealed,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			Issuer:    issuer,
		},
	}
	return s.sign(claims)
}

// VerifyEphemeral checks an ephemeral token for purpose and opens its
// payload into dest.
func (s *JWTService) VerifyEphemeral(tokenString, purpose string, dest interface{}) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return err
	}
	if claims.Purpose != purpose || claims.Sealed == "" {
		return ErrInvalidToken
	}
	if err := s.sealer.Open(claims.Sealed, dest); err != nil {
		return ErrInvalidToken
	}
	return nil
}

func (s *JWTService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
