// Package strategos is the HTTP gateway to the Strategos worker-spawning
// service. The service is a black box: inquest spawns a worker from a
// template, polls its status line until it reaches a terminal word, reads
// its output, and deletes it. All judgment happens inside the worker; this
// package only moves requests and classifies failures.
package strategos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"inquest/internal/logging"
)

// Gateway is the interface the engine consumes. Satisfied by Client;
// tests substitute fakes.
type Gateway interface {
	Spawn(ctx context.Context, req SpawnRequest) (string, error)
	Status(ctx context.Context, workerID string) (string, error)
	Output(ctx context.Context, workerID string, lines int) (string, error)
	Signal(ctx context.Context, workerID string) error
	WaitForDone(ctx context.Context, workerID string, timeout time.Duration) (string, error)
	Delete(ctx context.Context, workerID string) error
}

// SpawnRequest describes one worker to spawn.
type SpawnRequest struct {
	Template        string
	Label           string
	WorkingDir      string
	ParentWorkerID  string
	TaskDescription string
}

// Config holds gateway settings.
type Config struct {
	BaseURL      string
	PollInterval time.Duration // status poll cadence, default 5s
	PollTimeout  time.Duration // per status call, default 30s
	SpawnRetries int           // default 3
	RetryBase    time.Duration // backoff base, default 3s
	HTTPTimeout  time.Duration // default 60s
}

// Client talks to one Strategos instance.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
	spawnRetries int
	retryBase    time.Duration
}

// DefaultTimeout bounds WaitForDone when the caller passes none.
const DefaultTimeout = 30 * time.Minute

// NewClient creates a gateway client, filling zero config fields with
// defaults.
func NewClient(cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.SpawnRetries <= 0 {
		cfg.SpawnRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 3 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.HTTPTimeout},
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		spawnRetries: cfg.SpawnRetries,
		retryBase:    cfg.RetryBase,
	}
}

// ValidationError is a non-transient rejection from the service. Spawn
// fails immediately on these instead of retrying.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("spawn rejected: %s", e.Message)
}

// validationPattern matches service rejections that retrying cannot fix.
var validationPattern = regexp.MustCompile(
	`(?i)(label too long|invalid template|unknown template|control characters?|validation (failed|error)|must (be|not))`)

// spawnBody is the wire request for POST /spawn-from-template.
type spawnBody struct {
	Template       string    `json:"template"`
	Label          string    `json:"label"`
	ProjectPath    string    `json:"projectPath"`
	ParentWorkerID string    `json:"parentWorkerId,omitempty"`
	Task           spawnTask `json:"task"`
}

type spawnTask struct {
	Description string `json:"description"`
}

type spawnResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// Spawn creates a worker from a template and returns its id. Transient
// failures (network errors, missing id, unclassified errors) retry with
// exponential backoff: base 3s, doubling, up to SpawnRetries attempts
// beyond the first. Validation rejections fail immediately.
func (c *Client) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	body := spawnBody{
		Template:       req.Template,
		Label:          req.Label,
		ProjectPath:    req.WorkingDir,
		ParentWorkerID: req.ParentWorkerID,
		Task:           spawnTask{Description: req.TaskDescription},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal spawn request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.spawnRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 3s, 6s, 12s
			delay := c.retryBase * time.Duration(1<<uint(attempt-1))
			logging.GatewayDebug("Spawn retry %d for %q after %v: %v", attempt, req.Label, delay, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		id, err := c.spawnOnce(ctx, payload)
		if err == nil {
			logging.Gateway("Spawned worker %s (template=%s, label=%s)", id, req.Template, req.Label)
			return id, nil
		}

		var verr *ValidationError
		if errors.As(err, &verr) {
			logging.Get(logging.CategoryGateway).Error("Spawn rejected for %q: %v", req.Label, err)
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("spawn failed after %d retries: %w", c.spawnRetries, lastErr)
}

func (c *Client) spawnOnce(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/spawn-from-template", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("spawn request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read spawn response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := strings.TrimSpace(string(data))
		if validationPattern.MatchString(msg) {
			return "", &ValidationError{Message: msg}
		}
		return "", fmt.Errorf("spawn failed with status %d: %s", resp.StatusCode, msg)
	}

	var sr spawnResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return "", fmt.Errorf("failed to parse spawn response: %w", err)
	}
	if sr.Error != "" {
		if validationPattern.MatchString(sr.Error) {
			return "", &ValidationError{Message: sr.Error}
		}
		return "", fmt.Errorf("spawn error: %s", sr.Error)
	}
	if sr.ID == "" {
		// Missing id is treated as transient: the service occasionally
		// returns an empty body under load.
		return "", fmt.Errorf("spawn response missing worker id")
	}
	return sr.ID, nil
}

// Status fetches the worker's plain-text status line
// ("status health progress% step").
func (c *Client) Status(ctx context.Context, workerID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/status/"+url.PathEscape(workerID), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read status: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return "not_found", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return strings.TrimSpace(string(data)), nil
}

// Output fetches the worker's output with ANSI codes stripped. lines <= 0
// fetches everything.
func (c *Client) Output(ctx context.Context, workerID string, lines int) (string, error) {
	u := c.baseURL + "/output/" + url.PathEscape(workerID) + "?strip_ansi=true"
	if lines > 0 {
		u += fmt.Sprintf("&lines=%d", lines)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("output request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read output: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("output failed with status %d", resp.StatusCode)
	}
	return string(data), nil
}

// Signal pokes a worker's control loop (POST /ralph/signal/by-worker/{id}).
func (c *Client) Signal(ctx context.Context, workerID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/ralph/signal/by-worker/"+url.PathEscape(workerID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("signal request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signal failed with status %d", resp.StatusCode)
	}
	return nil
}

// Delete removes a worker. The service treats delete as idempotent;
// callers invoke this best-effort and ignore the error.
func (c *Client) Delete(ctx context.Context, workerID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/workers/"+url.PathEscape(workerID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent &&
		resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete failed with status %d", resp.StatusCode)
	}
	return nil
}

// Terminal status words. A worker deleted externally reads as not_found,
// which counts as success: its output file either exists or it doesn't,
// and the executor handles both.
var (
	successWords = []string{"done", "completed", "awaiting_review", "not_found"}
	failureWords = []string{"error", "failed", "blocked"}
)

func matchWord(statusLine string, words []string) string {
	first := statusLine
	if i := strings.IndexAny(statusLine, " \t"); i >= 0 {
		first = statusLine[:i]
	}
	first = strings.ToLower(first)
	for _, w := range words {
		if first == w {
			return w
		}
	}
	return ""
}

// WaitForDone polls the worker status until a terminal word appears or the
// timeout elapses. Network blips re-poll without counting as failure. A
// terminal failure word or the timeout returns an error; the final status
// line is returned either way when available.
func (c *Client) WaitForDone(ctx context.Context, workerID string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	logging.GatewayDebug("Waiting for worker %s (timeout=%v)", workerID, timeout)

	for {
		statusLine, err := c.Status(ctx, workerID)
		if err != nil {
			// Transient: the poll itself failed. Keep waiting.
			logging.GatewayDebug("Status poll blip for %s: %v", workerID, err)
		} else {
			if w := matchWord(statusLine, successWords); w != "" {
				logging.Gateway("Worker %s terminal: %s", workerID, w)
				return statusLine, nil
			}
			if w := matchWord(statusLine, failureWords); w != "" {
				logging.Gateway("Worker %s failed: %s", workerID, statusLine)
				return statusLine, fmt.Errorf("worker %s terminated with status %q", workerID, w)
			}
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("worker %s timed out after %v", workerID, timeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
