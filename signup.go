package goSession

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/backend"
)

// Signup creates an account on the backend. It stores nothing and leaves the session
// as it is; the caller logs in afterwards. A refusal returns a [*SignupError] with the
// backend's message and a transport failure returns an error matching
// [ErrNetworkUnreachable].
func (c *Client) Signup(ctx context.Context, username, password, email string) error {
	if err := c.ready(); err != nil {
		return err
	}

	err := c.backend.CreateUser(ctx, username, password, email)
	var se *backend.StatusError
	switch {
	case err == nil:
		c.emitAudit(ctx, auditEventSignupSuccess, true, username, "", nil, nil)
		c.logger.Info().Str("subject", username).Msg("goSession: account created")
		return nil
	case errors.As(err, &se):
		err = &SignupError{StatusCode: se.StatusCode, Message: se.Message}
	case errors.Is(err, backend.ErrUnreachable):
		c.setReachable(ctx, false, "signup")
		err = fmt.Errorf("goSession: signup: %w: %w", ErrNetworkUnreachable, err)
	default:
		err = fmt.Errorf("goSession: signup: %w", err)
	}

	c.emitAudit(ctx, auditEventSignupFailure, false, username, "", err, nil)
	c.logger.Info().Err(err).Str("subject", username).Msg("goSession: signup failed")
	return err
}
