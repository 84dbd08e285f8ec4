package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quietleaf/journal/internal/apperrors"
	"github.com/quietleaf/journal/internal/models"
)

const (
	// CookieName carries the signed session token
	CookieName = "journal_session"

	defaultTTL           = 24 * time.Hour
	defaultSigningMethod = "HS256"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"uid"`
}

// Resolves session identities back to users
type UserGetter interface {
	// Must return apperrors.ErrUserNotFound if the id does not exist anymore
	GetUserByID(ctx context.Context, id int64) (models.User, error)
}

// Session manager with sensible defaults
type Config struct {
	// Secret key to sign the session token
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Session lifetime
	// If not set than default is used
	TTL time.Duration

	// Set the Secure attribute on the cookie (HTTPS only)
	CookieSecure bool
}

// Manager issues and resolves the session cookie
// Stateless: everything lives in the signed cookie and the credential store
type Manager struct {
	key    string
	alg    jwt.SigningMethod
	ttl    time.Duration
	secure bool

	users UserGetter
}

func New(cfg Config, users UserGetter) (*Manager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if users == nil {
		return nil, errors.New("user getter must not be nil")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	if cfg.TTL == 0 {
		cfg.TTL = defaultTTL
	}

	return &Manager{
		key:    cfg.SecretKey,
		alg:    jwt.GetSigningMethod(cfg.Alg),
		ttl:    cfg.TTL,
		secure: cfg.CookieSecure,
		users:  users,
	}, nil
}

// Issue signs a session token for the user and sets it as cookie
func (m *Manager) Issue(w http.ResponseWriter, user models.User) error {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(m.ttl)

	token := jwt.NewWithClaims(m.alg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: user.ID,
	})

	signed, err := token.SignedString([]byte(m.key))
	if err != nil {
		return fmt.Errorf("can't sign session token. Err: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// Clear expires the session cookie
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// UserFromRequest resolves the request's session cookie to a user
// Missing cookie, broken or expired token and a user that no longer exists
// all collapse to apperrors.ErrAuthRequired
func (m *Manager) UserFromRequest(ctx context.Context, r *http.Request) (models.User, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return models.User{}, apperrors.ErrAuthRequired
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(
		cookie.Value,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(m.key), nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)
	if err != nil {
		return models.User{}, apperrors.ErrAuthRequired
	}

	user, err := m.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return models.User{}, apperrors.ErrAuthRequired
		}
		return models.User{}, fmt.Errorf("can't resolve session user. Err: %w", err)
	}

	return user, nil
}
