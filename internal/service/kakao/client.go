// Package kakao exchanges an OAuth2 authorization code for a verified
// external identity. The exchange is one synchronous call with a bounded
// timeout and is never retried here: a failed code is spent, retry policy
// belongs to the caller.
package kakao

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/authgate/internal/logger"
	"github.com/nkiryanov/authgate/internal/models"
)

const (
	defaultAuthHost = "https://kauth.kakao.com"
	defaultAPIHost  = "https://kapi.kakao.com"
	defaultTimeout  = 5 * time.Second

	CodeUnreachable = "unreachable"
	CodeInvalidCode = "invalid_code"
	CodeBadResponse = "bad_response"
)

var validate = validator.New()

type ProviderError struct {
	Code string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("kakao exchange failed, code: %s, error: %v", e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(code string, err error) *ProviderError {
	return &ProviderError{Code: code, Err: err}
}

// Identity resolved through the server side exchange
// Every field comes from Kakao's own response, nothing client supplied
type ExchangeResult struct {
	Provider       models.Provider
	ProviderUserID string
	Email          string
	Nickname       string
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Hosts are only overridden in tests
	AuthHost string
	APIHost  string

	Timeout time.Duration
}

type Client struct {
	cfg    Config
	client *http.Client
	logger logger.Logger
}

func NewClient(cfg Config, l logger.Logger) *Client {
	if cfg.AuthHost == "" {
		cfg.AuthHost = defaultAuthHost
	}
	if cfg.APIHost == "" {
		cfg.APIHost = defaultAPIHost
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{},
		logger: l,
	}
}

// tokenResponse is the provider token endpoint reply
// https://kauth.kakao.com/oauth/token
type tokenResponse struct {
	AccessToken string `json:"access_token" validate:"required"`
	TokenType   string `json:"token_type" validate:"required"`
	ExpiresIn   int    `json:"expires_in"`
}

// userResponse is the provider user info reply
// https://kapi.kakao.com/v2/user/me
type userResponse struct {
	ID           int64 `json:"id" validate:"required"`
	KakaoAccount struct {
		Email string `json:"email"`
	} `json:"kakao_account"`
	Properties struct {
		Nickname string `json:"nickname"`
	} `json:"properties"`
}

// Exchange swaps the authorization code for a verified Kakao identity:
// server-to-server POST for the provider access token, then GET for the
// user info. Both responses are schema validated before any field is used
func (c *Client) Exchange(ctx context.Context, code string) (ExchangeResult, error) {
	var result ExchangeResult

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	token, err := c.exchangeCode(ctx, code)
	if err != nil {
		return result, err
	}

	user, err := c.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return result, err
	}

	return ExchangeResult{
		Provider:       models.ProviderKakao,
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          user.KakaoAccount.Email,
		Nickname:       user.Properties.Nickname,
	}, nil
}

func (c *Client) exchangeCode(ctx context.Context, code string) (tokenResponse, error) {
	var token tokenResponse

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("code", code)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthHost+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return token, NewProviderError(CodeUnreachable, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return token, NewProviderError(CodeUnreachable, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized:
		return token, NewProviderError(CodeInvalidCode, fmt.Errorf("provider rejected authorization code, status %d", resp.StatusCode))
	default:
		c.logger.Warn("Unexpected status from token endpoint", "status_code", resp.StatusCode)
		return token, NewProviderError(CodeBadResponse, fmt.Errorf("unexpected status code %d from token endpoint", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return token, NewProviderError(CodeBadResponse, fmt.Errorf("failed to decode token response: %w", err))
	}
	if err := validate.Struct(token); err != nil {
		return token, NewProviderError(CodeBadResponse, fmt.Errorf("token response failed schema validation: %w", err))
	}

	return token, nil
}

func (c *Client) fetchUser(ctx context.Context, accessToken string) (userResponse, error) {
	var user userResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIHost+"/v2/user/me", nil)
	if err != nil {
		return user, NewProviderError(CodeUnreachable, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return user, NewProviderError(CodeUnreachable, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Unexpected status from user info endpoint", "status_code", resp.StatusCode)
		return user, NewProviderError(CodeBadResponse, fmt.Errorf("unexpected status code %d from user info endpoint", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return user, NewProviderError(CodeBadResponse, fmt.Errorf("failed to decode user info response: %w", err))
	}
	if err := validate.Struct(user); err != nil {
		return user, NewProviderError(CodeBadResponse, fmt.Errorf("user info response failed schema validation: %w", err))
	}

	return user, nil
}
