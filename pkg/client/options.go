package client

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Option configures the Aviary client.
type Option func(*options)

type options struct {
	apiKey       string
	httpClient   *http.Client
	timeout      time.Duration
	headers      map[string]string
	retryPolicy  RetryPolicy
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       zerolog.Logger
}

func defaultOptions() *options {
	return &options{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		timeout:      30 * time.Second,
		headers:      make(map[string]string),
		retryPolicy:  DefaultRetryPolicy(),
		pollInterval: 5 * time.Second,
		pollTimeout:  10 * time.Minute,
		logger:       zerolog.Nop(),
	}
}

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithHTTPClient allows providing a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithTimeout sets the default timeout for HTTP requests.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
		if o.httpClient != nil {
			o.httpClient.Timeout = d
		}
	}
}

// WithHeader adds a custom header to all requests.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.headers[key] = value
	}
}

// WithRetryPolicy overrides the retry behavior for idempotent requests.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) {
		o.retryPolicy = p
	}
}

// WithPollInterval sets the delay between status polls in RunTask.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WithPollTimeout bounds how long RunTask waits for a terminal status.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) {
		o.pollTimeout = d
	}
}

// WithLogger attaches a structured logger; the client is silent by default.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// applyHeaders sets auth and custom headers on an outgoing request.
func (o *options) applyHeaders(req *http.Request) {
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
}
