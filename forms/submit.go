// Package forms performs the HTTP submission a button press triggers.
// Fields are partitioned by their sendAs tag into URL query parameters and
// JSON body fields; an optional bearer token is resolved (and silently
// refreshed) before the request goes out.
package forms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/formdeck/formdeck/internal/errors"
	"github.com/formdeck/formdeck/oauthflow"
)

// SendAs values recognized on a field. Anything else is treated as body.
const (
	SendAsQuery = "query"
	SendAsBody  = "body"
)

// Field describes one form field. Only Name and SendAs are interpreted here;
// the rest is carried for the rendering surface.
type Field struct {
	Name   string `json:"name"`
	Label  string `json:"label,omitempty"`
	Type   string `json:"type,omitempty"`
	SendAs string `json:"sendAs,omitempty"`
}

// Auth carries a previously acquired token plus the parameters needed to
// silently refresh it.
type Auth struct {
	Token  oauthflow.TokenRecord `json:"token"`
	Params oauthflow.Params      `json:"params"`
}

// Request is one form submission.
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Fields  []Field           `json:"fields"`
	Values  map[string]any    `json:"values"`
	Headers map[string]string `json:"headers,omitempty"`
	Auth    *Auth             `json:"auth,omitempty"`
}

// Response is the submission result. JSON is populated when the response
// content type is application/json, Body otherwise.
type Response struct {
	StatusCode int    `json:"statusCode"`
	JSON       any    `json:"json,omitempty"`
	Body       string `json:"body,omitempty"`
}

// StatusError is a non-2xx submission outcome.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// TokenRefresher resolves a possibly-stale token into a usable one.
type TokenRefresher interface {
	RefreshIfNeeded(ctx context.Context, p oauthflow.Params, rec oauthflow.TokenRecord) oauthflow.TokenRecord
}

// Submitter executes form submissions.
type Submitter struct {
	httpClient *http.Client
	tokens     TokenRefresher
	log        zerolog.Logger
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithHTTPClient sets the HTTP client used for submissions.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Submitter) {
		s.httpClient = client
	}
}

// WithLogger sets the submitter's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Submitter) {
		s.log = logger
	}
}

// NewSubmitter creates a Submitter. tokens may be nil when no form uses
// bearer auth.
func NewSubmitter(tokens TokenRefresher, options ...Option) *Submitter {
	s := &Submitter{
		httpClient: http.DefaultClient,
		tokens:     tokens,
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Submit partitions the request's fields, resolves auth, and performs the
// HTTP call. Non-2xx responses are returned as a *StatusError.
func (s *Submitter) Submit(ctx context.Context, req Request) (*Response, error) {
	if req.URL == "" {
		return nil, errors.ErrMissingURL
	}

	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "[Submit] parse url")
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	queryValues := target.Query()
	bodyValues := map[string]any{}
	for _, field := range req.Fields {
		value, ok := req.Values[field.Name]
		if !ok {
			continue
		}
		if field.SendAs == SendAsQuery {
			queryValues.Set(field.Name, fmt.Sprint(value))
		} else {
			bodyValues[field.Name] = value
		}
	}
	target.RawQuery = queryValues.Encode()

	var body io.Reader
	if method != http.MethodGet {
		payload, err := json.Marshal(bodyValues)
		if err != nil {
			return nil, errors.Wrapf(err, "[Submit] marshal body")
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, errors.Wrapf(err, "[Submit] build request")
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	// The bearer token goes in first so explicit custom headers win.
	if req.Auth != nil && req.Auth.Token.AccessToken != "" {
		token := req.Auth.Token
		if s.tokens != nil {
			token = s.tokens.RefreshIfNeeded(ctx, req.Auth.Params, token)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	s.log.Debug().Str("method", method).Str("url", target.String()).Msg("submitting form")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "[Submit] %s %s", method, target.String())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "[Submit] read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}

	out := &Response{StatusCode: resp.StatusCode}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out.JSON); err != nil {
			out.Body = string(raw)
		}
	} else {
		out.Body = string(raw)
	}
	return out, nil
}
