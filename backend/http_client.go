package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/inkspine/bookstore/internal/errors"
	"github.com/inkspine/bookstore/users"
)

const (
	routeRegister    = "/api/session/register"
	routeLogin       = "/api/session/login"
	routeAdminLogin  = "/api/session/admin/login"
	routeSocialLogin = "/api/session/social"
	routeProfile     = "/api/session/profile"
)

// HTTPClient is the REST implementation of Client.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// HTTPClientOption configures the HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient overrides the underlying transport (primarily for testing).
func WithHTTPClient(hc *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

func NewHTTPClient(baseURL string, timeout time.Duration, options ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Register(ctx context.Context, reg Registration) (*AuthResponse, error) {
	resp, err := c.postJSON(ctx, routeRegister, reg)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPClient.Register]")
	}
	return resp, nil
}

func (c *HTTPClient) Login(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	resp, err := c.postJSON(ctx, routeLogin, creds)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPClient.Login]")
	}
	return resp, nil
}

func (c *HTTPClient) AdminLogin(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	resp, err := c.postJSON(ctx, routeAdminLogin, creds)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPClient.AdminLogin]")
	}
	return resp, nil
}

func (c *HTTPClient) SocialLogin(ctx context.Context, profile ExternalProfile) (*AuthResponse, error) {
	resp, err := c.postJSON(ctx, routeSocialLogin, profile)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPClient.SocialLogin]")
	}
	return resp, nil
}

func (c *HTTPClient) RefreshProfile(ctx context.Context, token string) (*users.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+routeProfile, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPClient.RefreshProfile] build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrNetwork, "[HTTPClient.RefreshProfile] "+err.Error())
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(mapFailure(httpResp), "[HTTPClient.RefreshProfile]")
	}

	var user users.User
	if err := json.NewDecoder(httpResp.Body).Decode(&user); err != nil {
		return nil, errors.Wrap(err, "[HTTPClient.RefreshProfile] decode response")
	}
	return &user, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, route string, payload any) (*AuthResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrNetwork, err.Error())
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		return nil, mapFailure(httpResp)
	}

	var resp AuthResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if resp.Token == "" || resp.User == nil {
		return nil, errors.New("backend returned an incomplete auth response")
	}
	return &resp, nil
}

// failureBody is the backend's error envelope.
type failureBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// mapFailure translates a non-2xx backend response into the typed taxonomy.
func mapFailure(resp *http.Response) error {
	var body failureBody
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if body.Error == "unauthorized" {
			return apperrors.ErrUnauthorized
		}
		return apperrors.ErrInvalidCredentials
	case http.StatusForbidden:
		return apperrors.ErrInactiveAccount
	case http.StatusConflict:
		return apperrors.ErrDuplicateAccount
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if body.Message != "" {
			return errors.Wrap(apperrors.ErrValidation, body.Message)
		}
		return apperrors.ErrValidation
	case http.StatusNotFound:
		return apperrors.ErrUserNotFound
	}
	return errors.Wrap(apperrors.ErrNetwork, fmt.Sprintf("unexpected status %d", resp.StatusCode))
}
