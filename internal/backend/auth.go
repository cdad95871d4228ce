package backend

import (
	"context"
	"net/http"

	"github.com/i474232898/weather-dashboard/internal/apperr"
	"github.com/i474232898/weather-dashboard/internal/token"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// Role is the authorization role of a user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the profile of an authenticated user.
type User struct {
	ID    weather.ID `json:"id"`
	Email string     `json:"email"`
	Name  string     `json:"name"`
	Role  Role       `json:"role"`
}

// IsAdmin reports whether u may see every user's history.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration is the sign-up payload.
type Registration struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// AuthResult is returned by a successful login or registration.
type AuthResult struct {
	token.Pair
	User User `json:"user"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

// Login exchanges credentials for a token pair. The pair is persisted to the
// client's store before returning.
func (c *Client) Login(ctx context.Context, creds Credentials) (AuthResult, error) {
	return c.authenticate(ctx, request{
		method:   http.MethodPost,
		path:     "/auth/login",
		endpoint: "/auth/login",
		body:     creds,
		public:   true,
		fallback: "Login failed. Please check your credentials.",
	})
}

// Register creates an account and logs it in.
func (c *Client) Register(ctx context.Context, reg Registration) (AuthResult, error) {
	return c.authenticate(ctx, request{
		method:   http.MethodPost,
		path:     "/auth/register",
		endpoint: "/auth/register",
		body:     reg,
		public:   true,
		fallback: "Registration failed. Please try again.",
	})
}

func (c *Client) authenticate(ctx context.Context, r request) (AuthResult, error) {
	var res AuthResult
	if err := c.call(ctx, r, &res); err != nil {
		return AuthResult{}, err
	}
	if res.AccessToken == "" {
		return AuthResult{}, apperr.Upstream(nil, "", "Authentication response carried no access token")
	}
	if err := c.store.Set(res.Pair); err != nil {
		return AuthResult{}, apperr.Upstream(err, "", "Failed to store credentials")
	}
	return res, nil
}

// Logout revokes the stored refresh token on the backend. It does not touch
// the local store; callers clear it regardless of the outcome.
func (c *Client) Logout(ctx context.Context) error {
	pair, _ := c.store.Get()
	if pair.RefreshToken == "" {
		return nil
	}
	return c.call(ctx, request{
		method:   http.MethodPost,
		path:     "/auth/logout",
		endpoint: "/auth/logout",
		body:     refreshBody{RefreshToken: pair.RefreshToken},
		fallback: "Logout failed",
	}, nil)
}

// Profile returns the user owning the stored access token.
func (c *Client) Profile(ctx context.Context) (User, error) {
	var u User
	err := c.call(ctx, request{
		method:   http.MethodGet,
		path:     "/users/profile",
		endpoint: "/users/profile",
		fallback: "Failed to load profile",
	}, &u)
	return u, err
}

// refresh exchanges refreshToken for a new pair. It is public: a failing
// refresh never triggers another refresh.
func (t *Transport) refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	r := request{
		method:   http.MethodPost,
		path:     "/auth/refresh",
		endpoint: "/auth/refresh",
		body:     refreshBody{RefreshToken: refreshToken},
		public:   true,
		fallback: "Token refresh failed",
	}
	resp, err := t.do(ctx, r, "")
	if err != nil {
		return token.Pair{}, apperr.Upstream(err, "", r.fallback)
	}
	if resp.status < 200 || resp.status >= 300 {
		return token.Pair{}, errorFor(r, resp)
	}

	var p token.Pair
	if err := decode(resp, &p); err != nil {
		return token.Pair{}, err
	}
	if p.AccessToken == "" {
		return token.Pair{}, apperr.Upstream(nil, "", "Refresh response carried no access token")
	}
	if p.RefreshToken == "" {
		p.RefreshToken = refreshToken
	}
	return p, nil
}
