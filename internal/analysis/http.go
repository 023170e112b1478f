package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Simplici0/resinquote/internal/pricing"
)

// HTTPClient calls the print-preparation service over HTTP.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger

	initialInterval time.Duration
	maxElapsed      time.Duration
}

// NewHTTPClient returns a client for the service at baseURL. timeout bounds
// each attempt; retries stop after four timeouts have elapsed.
func NewHTTPClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:          logger,
		initialInterval: 500 * time.Millisecond,
		maxElapsed:      4 * timeout,
	}
}

// Analyze uploads the model and returns the measured volume and print time.
// Network failures and 5xx answers are retried with exponential backoff.
func (c *HTTPClient) Analyze(ctx context.Context, filename string, data []byte) (pricing.AnalysisResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	policy.MaxElapsedTime = c.maxElapsed

	var result pricing.AnalysisResult
	err := backoff.RetryNotify(
		func() error {
			r, err := c.analyzeOnce(ctx, filename, data)
			if err != nil {
				return err
			}
			result = r
			return nil
		},
		backoff.WithContext(policy, ctx),
		func(err error, next time.Duration) {
			c.logger.Warn("analysis request failed, retrying",
				zap.String("filename", filename),
				zap.Error(err),
				zap.Duration("next_attempt_in", next))
		},
	)
	if err != nil {
		return pricing.AnalysisResult{}, fmt.Errorf("analyze %s: %w", filename, err)
	}
	return result, nil
}

func (c *HTTPClient) analyzeOnce(ctx context.Context, filename string, data []byte) (pricing.AnalysisResult, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return pricing.AnalysisResult{}, backoff.Permanent(fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(data); err != nil {
		return pricing.AnalysisResult{}, backoff.Permanent(fmt.Errorf("write form file: %w", err))
	}
	if err := mw.Close(); err != nil {
		return pricing.AnalysisResult{}, backoff.Permanent(fmt.Errorf("close multipart: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", body)
	if err != nil {
		return pricing.AnalysisResult{}, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return pricing.AnalysisResult{}, backoff.Permanent(ctxErr)
		}
		return pricing.AnalysisResult{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		if resp.StatusCode >= 500 {
			return pricing.AnalysisResult{}, statusErr
		}
		return pricing.AnalysisResult{}, backoff.Permanent(statusErr)
	}

	var result pricing.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pricing.AnalysisResult{}, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if err := check(result); err != nil {
		return pricing.AnalysisResult{}, backoff.Permanent(err)
	}
	return result, nil
}

// IsUnavailable reports whether err means the service could not produce an
// answer, as opposed to rejecting the model.
func IsUnavailable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	return !errors.Is(err, ErrInvalidResult) && !errors.Is(err, context.Canceled)
}
