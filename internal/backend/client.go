package backend

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

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// =====================================================
// Client Configuration
// =====================================================

// Config configures the hosted backend client
type Config struct {
	// BaseURL is the project URL, e.g. https://xyz.supabase.co
	BaseURL string

	// AnonKey is the public API key sent with every request
	AnonKey string

	// Timeout for individual requests (default: 30s)
	Timeout time.Duration

	// RateLimit requests per second (default: 20)
	RateLimit float64

	// RateBurst maximum burst size (default: 10)
	RateBurst int

	// Transport allows injecting a custom HTTP transport
	Transport http.RoundTripper
}

// TokenSource supplies the bearer token for authenticated requests
type TokenSource interface {
	AccessToken() string
}

// Client is a rate-limited HTTP client for the hosted backend
type Client struct {
	config      Config
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	tokens      TokenSource
	logger      *zap.Logger
}

// NewClient creates a hosted backend client
func NewClient(config Config, tokens TokenSource, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 20
	}
	if config.RateBurst == 0 {
		config.RateBurst = 10
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		tokens:      tokens,
		logger:      logger,
	}
}

// =====================================================
// Request / Response
// =====================================================

// Request is one call to the backend
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    any

	// Anonymous sends the anon key as bearer instead of the session token
	Anonymous bool
}

// Response is a completed backend call
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals the response body into target
func (r *Response) JSON(target any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, target)
}

// Do executes a request. Error responses are returned as *APIError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	fullURL := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("apikey", c.config.AnonKey)
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	bearer := c.config.AnonKey
	if !req.Anonymous && c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			bearer = token
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	c.logger.Debug("Backend request",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	response := &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}
	if resp.StatusCode >= 400 {
		return response, parseAPIError(resp.StatusCode, data)
	}
	return response, nil
}

// =====================================================
// Errors
// =====================================================

// APIError is an error response from the backend's REST, auth, or functions endpoints
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// ErrorCode exposes the backend code for error classification
func (e *APIError) ErrorCode() string {
	return e.Code
}

// IsNotFound reports a 404 or an empty single-row result
func (e *APIError) IsNotFound() bool {
	return e.Status == http.StatusNotFound || e.Code == "PGRST116"
}

// parseAPIError understands the REST shape {code,message,details,hint} and the
// auth shapes {error,error_description} and {code,msg}
func parseAPIError(status int, body []byte) *APIError {
	var raw struct {
		Code             any     `json:"code"`
		ErrorCode        string  `json:"error_code"`
		Message          string  `json:"message"`
		Msg              string  `json:"msg"`
		Error            string  `json:"error"`
		ErrorDescription string  `json:"error_description"`
		Details          *string `json:"details"`
		Hint             *string `json:"hint"`
	}
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, &raw); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	switch code := raw.Code.(type) {
	case string:
		apiErr.Code = code
	case float64:
		if raw.ErrorCode != "" {
			apiErr.Code = raw.ErrorCode
		}
	}
	if apiErr.Code == "" && raw.Error != "" {
		apiErr.Code = raw.Error
	}

	for _, m := range []string{raw.Message, raw.Msg, raw.ErrorDescription, raw.Error} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	if raw.Details != nil {
		apiErr.Details = *raw.Details
	}
	if raw.Hint != nil {
		apiErr.Hint = *raw.Hint
	}
	return apiErr
}
