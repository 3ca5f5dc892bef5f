package hnap

import (
	"context"
	"encoding/json"
	"fmt"
)

// Login runs the challenge/response handshake and returns the new session.
// The client keeps its session only if the modem accepts the login; on any
// error it is left anonymous.
func (c *Client) Login(ctx context.Context) (Session, error) {
	c.session = Session{}

	challenge, err := c.login(ctx, Session{}, newLoginRequest(loginModeRequest, c.username, ""))
	if err != nil {
		return Session{}, err
	}
	if challenge.Challenge == "" || challenge.PublicKey == "" {
		return Session{}, fmt.Errorf("%w: no challenge in login response (result %q)", ErrAuthenticationFailed, challenge.LoginResult)
	}

	candidate := Session{
		UID:        challenge.Cookie,
		PrivateKey: derivePrivateKey(challenge.PublicKey, c.password, challenge.Challenge),
	}
	password := loginPassword(candidate.PrivateKey, challenge.Challenge)

	result, err := c.login(ctx, candidate, newLoginRequest(loginModeLogin, c.username, password))
	if err != nil {
		return Session{}, err
	}
	if result.LoginResult != resultOK {
		return Session{}, fmt.Errorf("%w: login result %q", ErrAuthenticationFailed, result.LoginResult)
	}

	c.session = candidate
	return candidate, nil
}

func (c *Client) login(ctx context.Context, session Session, req LoginRequest) (LoginResponse, error) {
	raw, err := c.perform(ctx, session, ActionLogin, req)
	if err != nil {
		return LoginResponse{}, err
	}
	var resp LoginResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return LoginResponse{}, fmt.Errorf("%w: %s: %v", ErrInvalidResponse, ActionLogin, err)
	}
	return resp, nil
}
