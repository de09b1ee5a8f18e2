package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"prooffarm/internal/farm/model"
	appErr "prooffarm/pkg/errors"
	"prooffarm/pkg/utils/logger"
)

// HTTPConfig configures the HTTP theorem compiler client.
type HTTPConfig struct {
	BaseURL string `yaml:"baseURL"`

	// RequestTimeout bounds a single generate call.
	RequestTimeout time.Duration `yaml:"requestTimeout"`

	// MaxAttempts is the total number of tries per generate call.
	MaxAttempts int `yaml:"maxAttempts"`

	// RetryBackoff is the initial delay between tries. It doubles per
	// attempt up to RetryBackoffMax.
	RetryBackoff    time.Duration `yaml:"retryBackoff"`
	RetryBackoffMax time.Duration `yaml:"retryBackoffMax"`
}

// HTTPCompiler implements TheoremCompiler against the compiler
// service's REST API.
type HTTPCompiler struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPCompiler creates an HTTP compiler client.
func NewHTTPCompiler(cfg HTTPConfig) (*HTTPCompiler, error) {
	if cfg.BaseURL == "" {
		return nil, appErr.Newf(appErr.InvalidParams, "compiler baseURL is required")
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.RetryBackoffMax == 0 {
		cfg.RetryBackoffMax = 8 * time.Second
	}
	return &HTTPCompiler{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

type generateRequest struct {
	Theorem model.Theorem      `json:"theorem"`
	Options model.ProofOptions `json:"options"`
}

type generateResponse struct {
	ProofCode string `json:"proof_code"`
	Message   string `json:"message,omitempty"`
}

// GenerateProof calls the compiler service, retrying transient failures
// with bounded exponential backoff.
func (c *HTTPCompiler) GenerateProof(ctx context.Context, theorem model.Theorem, options model.ProofOptions) (string, error) {
	body, err := json.Marshal(generateRequest{Theorem: theorem, Options: options})
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "encode generate request")
	}

	backoff := c.cfg.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			logger.Warn(ctx, "retrying proof generation",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", appErr.Wrapf(ctx.Err(), appErr.CompilerUnavailable, "generate proof canceled")
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.cfg.RetryBackoffMax {
				backoff = c.cfg.RetryBackoffMax
			}
		}

		code, retryable, err := c.generateOnce(ctx, body)
		if err == nil {
			return code, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
	}
	return "", appErr.Wrapf(lastErr, appErr.CompilerUnavailable, "generate proof failed after %d attempts", c.cfg.MaxAttempts)
}

func (c *HTTPCompiler) generateOnce(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/proofs/generate", bytes.NewReader(body))
	if err != nil {
		return "", false, appErr.Wrapf(err, appErr.InternalServerError, "build generate request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", true, appErr.Wrapf(err, appErr.CompilerUnavailable, "compiler request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", true, appErr.Wrapf(err, appErr.CompilerError, "read compiler response")
	}

	switch {
	case resp.StatusCode >= 500:
		return "", true, appErr.Newf(appErr.CompilerUnavailable, "compiler returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", false, appErr.Newf(appErr.CompilerError, "compiler returned %d: %s", resp.StatusCode, string(data))
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", false, appErr.Wrapf(err, appErr.CompilerError, "decode compiler response")
	}
	if out.ProofCode == "" {
		msg := out.Message
		if msg == "" {
			msg = "empty proof code"
		}
		return "", false, appErr.Newf(appErr.ProofGenerationError, "compiler produced no proof: %s", msg)
	}
	return out.ProofCode, false, nil
}

// Ping checks the compiler health endpoint.
func (c *HTTPCompiler) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/healthz", nil)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "build ping request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return appErr.Wrapf(err, appErr.CompilerUnavailable, "compiler unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return appErr.Newf(appErr.CompilerUnavailable, "compiler health returned %d", resp.StatusCode)
	}
	return nil
}
