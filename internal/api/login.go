package api

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prbarcelon/astrbotctl/internal/protocol"
)

// HashPassword is the digest the login endpoint expects in place of the
// plain password.
func HashPassword(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Login exchanges a username and password for a token. It does not send
// the client's bearer token. A rejection by the server is an *AuthError.
func (c *Client) Login(ctx context.Context, username, password string) (*protocol.LoginData, error) {
	if strings.TrimSpace(username) == "" {
		return nil, errors.New("username is required")
	}
	encoded, err := json.Marshal(protocol.LoginRequest{
		Username: username,
		Password: HashPassword(password),
	})
	if err != nil {
		return nil, fmt.Errorf("encode login request: %w", err)
	}
	req, err := c.newUnauthenticatedRequest(ctx, http.MethodPost, "/api/auth/login", bytes.NewReader(encoded), "application/json")
	if err != nil {
		return nil, err
	}

	started := time.Now().UTC()
	statusCode, body, err := c.send(req)
	var env *Envelope[protocol.LoginData]
	if err == nil {
		env, err = DecodeEnvelope[protocol.LoginData](statusCode, body)
	}
	err = classifyLoginError(statusCode, body, err)
	if err == nil && (env.Data == nil || env.Data.Token == "") {
		err = &AuthError{Message: "login response missing token"}
	}
	c.record(req, started, statusCode, err)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("login accepted", "username", env.Data.Username, "token", TokenPreview(env.Data.Token))
	return env.Data, nil
}

// LoginAndSave logs in and persists the resulting credentials.
func (c *Client) LoginAndSave(ctx context.Context, store CredentialStore, username, password string) (protocol.Credentials, error) {
	data, err := c.Login(ctx, username, password)
	if err != nil {
		return protocol.Credentials{}, err
	}
	name := data.Username
	if name == "" {
		name = username
	}
	creds := protocol.Credentials{Token: data.Token, ServerURL: c.baseURL, Username: name}
	if err := store.SaveCredentials(creds); err != nil {
		return creds, fmt.Errorf("save credentials: %w", err)
	}
	return creds, nil
}

func classifyLoginError(statusCode int, body []byte, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &AuthError{Message: apiErr.Message}
	}
	var terr *TransportError
	if errors.As(err, &terr) && (statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden) {
		var wire wireEnvelope
		if json.Unmarshal(body, &wire) == nil {
			if msg := NormalizeMessage(wire.Message); msg != "" {
				return &AuthError{Message: msg}
			}
		}
		return &AuthError{Message: http.StatusText(statusCode)}
	}
	return err
}
