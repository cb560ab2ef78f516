// Package authapi calls the authentication endpoints of the goal tracking backend.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
	"github.com/tidwall/gjson"
)

const (
	loginPath    string = "/api/auth/login"
	registerPath string = "/api/auth/register"
	refreshPath  string = "/api/auth/refresh"
	logoutPath   string = "/api/auth/logout"

	maxErrorBodyBytes int64 = 64 * 1024
)

// Doer sends requests, both *http.Client and the authenticated gateway satisfy it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type ClientOption func(*Client) error

func WithBaseURL(baseURL *url.URL) ClientOption {
	return func(c *Client) error {
		c.baseURL = baseURL
		return nil
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		c.httpClient = httpClient
		return nil
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		c.httpClient = &http.Client{Timeout: timeout}
		return nil
	}
}

func NewClient(options ...ClientOption) (*Client, error) {
	client := Client{httpClient: http.DefaultClient}
	for _, opt := range options {
		err := opt(&client)
		if err != nil {
			return nil, err
		}
	}
	if client.baseURL == nil {
		return nil, fmt.Errorf("the auth API client requires a base URL")
	}
	return &client, nil
}

// URL resolves a path against the backend base URL
func (c *Client) URL(path string) string {
	return c.baseURL.JoinPath(path).String()
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the payload of a new account
type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (r RegisterRequest) Validate() error {
	missing := []string{}
	if r.Username == "" {
		missing = append(missing, "username")
	}
	if r.Password == "" {
		missing = append(missing, "password")
	}
	if r.FirstName == "" {
		missing = append(missing, "firstName")
	}
	if r.LastName == "" {
		missing = append(missing, "lastName")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// authResponse accepts the legacy single token field next to the credential pair
type authResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Token        string `json:"token"`
}

func (a authResponse) pair() models.CredentialPair {
	pair := models.CredentialPair{AccessToken: a.AccessToken, RefreshToken: a.RefreshToken}
	if pair.AccessToken == "" {
		pair.AccessToken = a.Token
	}
	return pair
}

func (c *Client) Login(ctx context.Context, username, password string) (models.CredentialPair, error) {
	if username == "" || password == "" {
		return models.CredentialPair{}, fmt.Errorf("username and password are required")
	}
	req, err := c.newJSONRequest(ctx, loginPath, loginRequest{Username: username, Password: password})
	if err != nil {
		return models.CredentialPair{}, err
	}
	return c.doCredentials(c.httpClient, req)
}

func (c *Client) Register(ctx context.Context, registration RegisterRequest) error {
	if err := registration.Validate(); err != nil {
		return err
	}
	req, err := c.newJSONRequest(ctx, registerPath, registration)
	if err != nil {
		return err
	}
	return c.doDiscard(c.httpClient, req)
}

// Refresh exchanges the refresh token for a new credential pair. It always uses the
// plain HTTP client so that a rejected refresh never triggers another refresh.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.CredentialPair, error) {
	if refreshToken == "" {
		return models.CredentialPair{}, gwerrors.ErrMissingCredentials
	}
	req, err := c.newJSONRequest(ctx, refreshPath, struct{}{})
	if err != nil {
		return models.CredentialPair{}, err
	}
	req.Header.Set("Authorization", models.BearerValue(refreshToken))
	pair, err := c.doCredentials(c.httpClient, req)
	if err != nil {
		return models.CredentialPair{}, err
	}
	if pair.RefreshToken == "" {
		// backends that do not rotate refresh tokens only return a new access token
		pair.RefreshToken = models.StripBearer(refreshToken)
	}
	return pair, nil
}

// Logout invalidates the session on the backend, the doer attaches the credentials
func (c *Client) Logout(ctx context.Context, doer Doer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(logoutPath), nil)
	if err != nil {
		return err
	}
	return c.doDiscard(doer, req)
}

func (c *Client) newJSONRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) doCredentials(doer Doer, req *http.Request) (models.CredentialPair, error) {
	res, err := doer.Do(req)
	if err != nil {
		return models.CredentialPair{}, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return models.CredentialPair{}, errorFromResponse(res)
	}
	var body authResponse
	err = json.NewDecoder(res.Body).Decode(&body)
	if err != nil {
		return models.CredentialPair{}, fmt.Errorf("cannot decode the credentials from %s: %w", req.URL.Path, err)
	}
	pair := body.pair()
	if pair.AccessToken == "" {
		return models.CredentialPair{}, fmt.Errorf("the response from %s carries no access token", req.URL.Path)
	}
	return pair, nil
}

func (c *Client) doDiscard(doer Doer, req *http.Request) error {
	res, err := doer.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errorFromResponse(res)
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

// errorFromResponse reads the backend message from a JSON message or error field,
// falling back to the raw body
func errorFromResponse(res *http.Response) *gwerrors.HTTPError {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
	message := strings.TrimSpace(string(raw))
	if gjson.ValidBytes(raw) {
		for _, field := range []string{"message", "error"} {
			if value := gjson.GetBytes(raw, field); value.Type == gjson.String {
				message = value.String()
				break
			}
		}
	}
	return &gwerrors.HTTPError{Status: res.StatusCode, Message: message}
}
