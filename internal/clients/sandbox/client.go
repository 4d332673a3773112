package sandbox

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

	"github.com/hatchpad/hatchpad-backend/internal/pkg/envutil"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/httpx"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
)

// DevServer is a handle onto a running dev process inside the sandbox.
type DevServer struct {
	ProcessID    string `json:"process_id"`
	EphemeralURL string `json:"ephemeral_url"`
	IsNew        bool   `json:"is_new"`
}

// Client is the gateway to the live development sandbox: git operations on
// the project repo plus process control for the dev server.
type Client interface {
	// RequestDevServer ensures a dev process is running with the given env
	// and returns a handle to it. Requesting a dev server also allow-lists
	// the handle's ephemeral domain with the backend's auth layer, which is
	// why restores acquire the handle before touching the database.
	RequestDevServer(ctx context.Context, repoRef string, env map[string]string) (DevServer, error)
	GetLatestCommit(ctx context.Context, repoRef string) (string, error)
	ResetToCommit(ctx context.Context, processID, commitHash string) error
	CommitAndPush(ctx context.Context, processID, message string) (string, error)
	DeleteRepo(ctx context.Context, repoRef string) error
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := envutil.GetEnv("SANDBOX_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("missing SANDBOX_API_KEY")
	}
	baseURL := envutil.GetEnv("SANDBOX_API_URL", "", log)
	if baseURL == "" {
		return nil, fmt.Errorf("missing SANDBOX_API_URL")
	}

	return &client{
		log:     log.With("service", "SandboxClient"),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: envutil.DurationSecondsFromEnv("SANDBOX_HTTP_TIMEOUT_SECONDS", 120),
		},
		maxRetries: envutil.GetEnvAsInt("SANDBOX_MAX_RETRIES", 2, log),
	}, nil
}

func (c *client) RequestDevServer(ctx context.Context, repoRef string, env map[string]string) (DevServer, error) {
	body := map[string]any{
		"repo": repoRef,
		"env":  env,
	}
	raw, err := c.doJSON(ctx, http.MethodPost, "/dev-servers", body, "request dev server")
	if err != nil {
		return DevServer{}, err
	}
	var handle DevServer
	if err := json.Unmarshal(raw, &handle); err != nil {
		return DevServer{}, fmt.Errorf("sandbox: decode dev server handle: %w", err)
	}
	if handle.ProcessID == "" {
		return DevServer{}, fmt.Errorf("sandbox: dev server response missing process id")
	}
	return handle, nil
}

func (c *client) GetLatestCommit(ctx context.Context, repoRef string) (string, error) {
	raw, err := c.doJSON(ctx, http.MethodGet, "/repos/"+url.PathEscape(repoRef)+"/head", nil, "get latest commit")
	if err != nil {
		return "", err
	}
	var body struct {
		CommitHash string `json:"commit_hash"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("sandbox: decode head response: %w", err)
	}
	if strings.TrimSpace(body.CommitHash) == "" {
		return "", fmt.Errorf("sandbox: head response missing commit hash")
	}
	return strings.TrimSpace(body.CommitHash), nil
}

func (c *client) ResetToCommit(ctx context.Context, processID, commitHash string) error {
	body := map[string]any{"commit_hash": commitHash}
	_, err := c.doJSON(ctx, http.MethodPost, "/processes/"+url.PathEscape(processID)+"/git/reset", body, "reset to commit")
	return err
}

func (c *client) CommitAndPush(ctx context.Context, processID, message string) (string, error) {
	body := map[string]any{"message": message}
	raw, err := c.doJSON(ctx, http.MethodPost, "/processes/"+url.PathEscape(processID)+"/git/commit", body, "commit and push")
	if err != nil {
		return "", err
	}
	var resp struct {
		CommitHash string `json:"commit_hash"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("sandbox: decode commit response: %w", err)
	}
	return strings.TrimSpace(resp.CommitHash), nil
}

func (c *client) DeleteRepo(ctx context.Context, repoRef string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, "/repos/"+url.PathEscape(repoRef), nil, "delete repo")
	return err
}

func (c *client) doJSON(ctx context.Context, method, path string, body any, operation string) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("sandbox: marshal %s request: %w", operation, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("sandbox: build %s request: %w", operation, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("sandbox: %s: %w", operation, err)
			if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
				return nil, lastErr
			}
			time.Sleep(httpx.JitterSleep(time.Duration(attempt+1) * 500 * time.Millisecond))
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("sandbox: read %s response: %w", operation, readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}

		lastErr = fmt.Errorf("sandbox: %s failed with status %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(data)))
		if httpx.IsRetryableHTTPStatus(resp.StatusCode) && attempt < c.maxRetries {
			time.Sleep(httpx.RetryAfterDuration(resp, httpx.JitterSleep(time.Duration(attempt+1)*500*time.Millisecond), 30*time.Second))
			continue
		}
		return nil, lastErr
	}
	return nil, lastErr
}
