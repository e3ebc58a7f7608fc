package tablebookings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator"

	"github.com/example/tablestaff/internal/session"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token   string
	User    session.User
	Message string
}

// State converts the result into an authenticated session state.
func (r LoginResult) State() session.State {
	return session.State{User: r.User, Token: r.Token, Authenticated: true}
}

var validate = validator.New()

// Login exchanges staff credentials for a bearer token. It never returns a
// token on failure.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	const op = "login"
	req := loginRequest{Email: strings.TrimSpace(email), Password: password}
	if err := validate.Struct(req); err != nil {
		return LoginResult{}, &AuthError{Op: op, Reason: "email and password are required", Err: err}
	}

	env, err := c.call(ctx, op, http.MethodPost, "/user/login", nil, req, false)
	if err != nil {
		var re *RemoteError
		if errors.As(err, &re) && re.StatusCode >= 400 && re.StatusCode < 500 {
			return LoginResult{}, &AuthError{Op: op, Reason: "invalid email or password", Err: re}
		}
		return LoginResult{}, err
	}
	if strings.TrimSpace(env.Token) == "" {
		return LoginResult{}, &AuthError{Op: op, Reason: "invalid response format from server"}
	}

	var u wireUser
	if err := json.Unmarshal(env.Data, &u); err != nil {
		return LoginResult{}, &AuthError{Op: op, Reason: "invalid user payload", Err: err}
	}
	if u.ResUUID == "" {
		return LoginResult{}, &AuthError{Op: op, Reason: "account is not linked to a restaurant"}
	}
	return LoginResult{
		Token:   env.Token,
		Message: env.Message,
		User: session.User{
			ID:           u.UUID,
			RestaurantID: u.ResUUID,
			Name:         u.Name,
			Email:        u.Email,
		},
	}, nil
}
