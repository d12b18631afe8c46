// Package carrier moves a ledger.State between requests in a signed cookie.
// The state is an HS256 JWT: the client can read it but any change breaks
// the signature, and a token that fails verification is treated as the empty
// state rather than an error.
package carrier

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"usagemeter/internal/ledger"

	"github.com/coder/quartz"
	"github.com/golang-jwt/jwt/v5"
)

const (
	Issuer            = "usagemeter"
	DefaultCookieName = "ledger"
	DefaultMaxAge     = 365 * 24 * time.Hour
)

// ErrInvalidState is returned by Decode for any token that cannot be trusted.
var ErrInvalidState = errors.New("carrier: invalid ledger state token")

// claims is the token payload. Short names keep the cookie small.
type claims struct {
	TotalCredits int64    `json:"tc"`
	Refs         []string `json:"refs"`
	jwt.RegisteredClaims
}

// Config configures a Carrier.
type Config struct {
	Secret     []byte
	CookieName string
	MaxAge     time.Duration

	// Secure marks the cookie HTTPS-only. Disable it only for plain-HTTP
	// local development.
	Secure bool

	Clock quartz.Clock
}

// Carrier encodes ledger state into cookies and back.
type Carrier struct {
	secret     []byte
	cookieName string
	maxAge     time.Duration
	secure     bool
	clock      quartz.Clock
}

// New creates a Carrier. The secret must not be empty.
func New(cfg Config) (*Carrier, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("carrier: signing secret is required")
	}

	c := &Carrier{
		secret:     cfg.Secret,
		cookieName: cfg.CookieName,
		maxAge:     cfg.MaxAge,
		secure:     cfg.Secure,
		clock:      cfg.Clock,
	}
	if c.cookieName == "" {
		c.cookieName = DefaultCookieName
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultMaxAge
	}
	if c.clock == nil {
		c.clock = quartz.NewReal()
	}
	return c, nil
}

// CookieName returns the name of the state cookie.
func (c *Carrier) CookieName() string {
	return c.cookieName
}

// Encode signs state into a token.
func (c *Carrier) Encode(state ledger.State) (string, error) {
	now := c.clock.Now()
	refs := state.RecentPaymentRefs
	if refs == nil {
		refs = []string{}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		TotalCredits: state.TotalCredits,
		Refs:         refs,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
		},
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("carrier: failed to sign state: %w", err)
	}
	return signed, nil
}

// Decode verifies token and returns the state it carries.
func (c *Carrier) Decode(token string) (ledger.State, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return c.clock.Now() }),
	)
	if err != nil {
		return ledger.State{}, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	cl, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return ledger.State{}, ErrInvalidState
	}

	return ledger.State{
		TotalCredits:      cl.TotalCredits,
		RecentPaymentRefs: cl.Refs,
	}.Normalize(), nil
}

// Read returns the state carried by r. A missing or untrustworthy cookie
// yields the empty state.
func (c *Carrier) Read(r *http.Request) ledger.State {
	cookie, err := r.Cookie(c.cookieName)
	if err != nil {
		return ledger.Empty()
	}

	state, err := c.Decode(cookie.Value)
	if err != nil {
		slog.Warn("Discarding unreadable ledger cookie", "error", err)
		return ledger.Empty()
	}
	return state
}

// Write sets the state cookie on w.
func (c *Carrier) Write(w http.ResponseWriter, state ledger.State) error {
	token, err := c.Encode(state)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.maxAge / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		// The payment provider redirect is a cross-site top-level GET; Strict
		// would drop the cookie on it.
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
