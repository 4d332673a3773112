package neon

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

	redisclient "github.com/hatchpad/hatchpad-backend/internal/clients/redis"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/envutil"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/httpx"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
)

// Client is the typed façade over the Neon control plane used by the
// versioning engine.
type Client interface {
	CreateProject(ctx context.Context, name string) (CreatedProject, error)
	DeleteProject(ctx context.Context, projectID string) error
	GetAllBranches(ctx context.Context, projectID string) ([]Branch, error)
	GetProductionBranch(ctx context.Context, projectID string) (*Branch, error)
	GetConnectionURI(ctx context.Context, projectID, branchID string) (string, error)
	CreateSnapshot(ctx context.Context, projectID string, opts SnapshotOptions) (string, error)
	ApplySnapshot(ctx context.Context, projectID, snapshotID, targetBranchID string) error
	ListAuthDomains(ctx context.Context, projectID string) ([]AuthDomain, error)
	AddAuthDomain(ctx context.Context, projectID, domain string) error
	GetOperation(ctx context.Context, projectID, operationID string) (Operation, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
	poller     *Poller
	pollOpts   PollOptions

	maxRetries int
}

// NewClient builds the control-plane client. A non-nil bus receives one
// progress event per poller fetch while the client waits for operations to
// settle; a nil bus disables that without changing any other behavior.
func NewClient(log *logger.Logger, bus redisclient.ProgressBus) (Client, error) {
	apiKey := envutil.GetEnv("NEON_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("missing NEON_API_KEY")
	}

	baseURL := envutil.GetEnv("NEON_BASE_URL", "https://console.neon.tech/api/v2", log)
	baseURL = strings.TrimRight(baseURL, "/")

	c := &client{
		log:     log.With("service", "NeonClient"),
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: envutil.DurationSecondsFromEnv("NEON_HTTP_TIMEOUT_SECONDS", 60),
		},
		pollOpts: PollOptions{
			Interval: envutil.DurationMillisFromEnv("NEON_POLL_INTERVAL_MS", 5000),
			Timeout:  envutil.DurationMillisFromEnv("NEON_POLL_TIMEOUT_MS", 300000),
		},
		maxRetries: envutil.GetEnvAsInt("NEON_MAX_RETRIES", 3, log),
	}
	c.poller = NewPoller(c, log)
	if bus != nil {
		c.pollOpts.OnUpdate = func(projectID, operationID string, status OperationStatus) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err := bus.Publish(ctx, redisclient.ProgressEvent{
				ProjectID:   projectID,
				Stage:       "backend-operation",
				OperationID: operationID,
				Status:      string(status),
			})
			if err != nil {
				c.log.Warn("Dropping poller progress event",
					"project_id", projectID, "operation_id", operationID, "error", err)
			}
		}
	}
	return c, nil
}

func (c *client) CreateProject(ctx context.Context, name string) (CreatedProject, error) {
	body := map[string]any{
		"project": map[string]any{"name": name},
	}
	raw, err := c.doJSON(ctx, http.MethodPost, "/projects", body, "create project")
	if err != nil {
		return CreatedProject{}, err
	}

	projectID := extractProjectID(raw)
	if projectID == "" {
		return CreatedProject{}, fmt.Errorf("neon: create project response missing project id")
	}
	databaseURL := extractConnectionURI(raw)
	if databaseURL == "" {
		return CreatedProject{}, fmt.Errorf("neon: create project response missing connection uri")
	}

	// The connection URI can point at a compute that is still starting.
	// Wait for every creation operation to settle before handing it out.
	ops := extractOperations(raw)
	ids := make([]string, 0, len(ops))
	for _, op := range ops {
		ids = append(ids, op.ID)
	}
	statuses, err := c.poller.WaitForMany(ctx, projectID, ids, c.pollOpts)
	if err != nil {
		return CreatedProject{}, fmt.Errorf("neon: waiting for project creation: %w", err)
	}
	for operationID, status := range statuses {
		if !status.Succeeded() {
			return CreatedProject{}, fmt.Errorf("neon: project creation operation %s ended %q", operationID, status)
		}
	}

	return CreatedProject{ProjectID: projectID, DatabaseURL: databaseURL}, nil
}

func (c *client) DeleteProject(ctx context.Context, projectID string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, "/projects/"+url.PathEscape(projectID), nil, "delete project")
	return err
}

func (c *client) GetAllBranches(ctx context.Context, projectID string) ([]Branch, error) {
	raw, err := c.doJSON(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/branches", nil, "list branches")
	if err != nil {
		return nil, err
	}
	return normalizeBranchList(raw), nil
}

// GetProductionBranch resolves the writable branch by name: "main", falling
// back to "production". Resolved fresh on every call: a restore can change
// which branch plays this role, so the result is never cached.
func (c *client) GetProductionBranch(ctx context.Context, projectID string) (*Branch, error) {
	branches, err := c.GetAllBranches(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"main", "production"} {
		for _, b := range branches {
			if b.Name == name {
				return &b, nil
			}
		}
	}
	return nil, nil
}

func (c *client) GetConnectionURI(ctx context.Context, projectID, branchID string) (string, error) {
	path := "/projects/" + url.PathEscape(projectID) + "/connection_uri"
	if branchID != "" {
		path += "?branch_id=" + url.QueryEscape(branchID)
	}
	raw, err := c.doJSON(ctx, http.MethodGet, path, nil, "get connection uri")
	if err != nil {
		return "", err
	}
	uri := extractConnectionURI(raw)
	if uri == "" {
		return "", fmt.Errorf("neon: connection uri response missing uri")
	}
	return uri, nil
}

// CreateSnapshot captures the production branch. A project with no writable
// branch cannot be checkpointed, so that is a fail-fast error.
func (c *client) CreateSnapshot(ctx context.Context, projectID string, opts SnapshotOptions) (string, error) {
	production, err := c.GetProductionBranch(ctx, projectID)
	if err != nil {
		return "", err
	}
	if production == nil {
		return "", ErrProductionBranchNotFound
	}

	body := map[string]any{}
	if opts.Name != "" {
		body["name"] = opts.Name
	}
	if opts.Timestamp != nil {
		body["timestamp"] = opts.Timestamp.UTC().Format(time.RFC3339)
	}
	path := "/projects/" + url.PathEscape(projectID) + "/branches/" + url.PathEscape(production.ID) + "/snapshot"
	raw, err := c.doJSON(ctx, http.MethodPost, path, body, "create snapshot")
	if err != nil {
		return "", err
	}
	snapshotID := extractSnapshotID(raw)
	if snapshotID == "" {
		return "", fmt.Errorf("neon: snapshot response missing snapshot id")
	}
	return snapshotID, nil
}

// ApplySnapshot restores a snapshot onto the target branch. The control plane
// fans the restore out into several server-side operations (timeline
// unarchive, branch creation, compute suspend); all of them must settle
// before the restore counts as done. Some control-plane versions return no
// operations for trivial restores; that is treated as already settled.
func (c *client) ApplySnapshot(ctx context.Context, projectID, snapshotID, targetBranchID string) error {
	body := map[string]any{
		"target_branch_id": targetBranchID,
	}
	path := "/projects/" + url.PathEscape(projectID) + "/snapshots/" + url.PathEscape(snapshotID) + "/restore"
	raw, err := c.doJSON(ctx, http.MethodPost, path, body, "apply snapshot")
	if err != nil {
		return err
	}

	ops := extractOperations(raw)
	if len(ops) == 0 {
		c.log.Info("Snapshot restore returned no operations; treating as settled",
			"project_id", projectID, "snapshot_id", snapshotID)
		return nil
	}

	ids := make([]string, 0, len(ops))
	for _, op := range ops {
		ids = append(ids, op.ID)
	}
	statuses, err := c.poller.WaitForMany(ctx, projectID, ids, c.pollOpts)
	if err != nil {
		return fmt.Errorf("neon: waiting for snapshot restore: %w", err)
	}
	for operationID, status := range statuses {
		if !status.Succeeded() {
			return fmt.Errorf("neon: snapshot restore operation %s ended %q", operationID, status)
		}
	}
	return nil
}

func (c *client) ListAuthDomains(ctx context.Context, projectID string) ([]AuthDomain, error) {
	raw, err := c.doJSON(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/auth/domains", nil, "list auth domains")
	if err != nil {
		return nil, err
	}
	var body struct {
		Domains []AuthDomain `json:"domains"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("neon: decode auth domains: %w", err)
	}
	return body.Domains, nil
}

// AddAuthDomain is idempotent by pre-check: the domain list is consulted
// first and an identical entry skips the add. Matching is on the full
// (domain, provider) pair; this client adds provider-less entries, so an
// entry claimed by a specific provider never satisfies the pre-check.
// A pre-check failure is non-fatal; the add is attempted anyway and the
// control plane arbitrates.
func (c *client) AddAuthDomain(ctx context.Context, projectID, domain string) error {
	existing, err := c.ListAuthDomains(ctx, projectID)
	if err != nil {
		c.log.Warn("Auth domain pre-check failed; attempting add anyway",
			"project_id", projectID, "domain", domain, "error", err)
	} else {
		for _, d := range existing {
			if d.Domain == domain && d.Provider == "" {
				return nil
			}
		}
	}

	body := map[string]any{"domain": domain}
	_, err = c.doJSON(ctx, http.MethodPost, "/projects/"+url.PathEscape(projectID)+"/auth/domains", body, "add auth domain")
	return err
}

func (c *client) GetOperation(ctx context.Context, projectID, operationID string) (Operation, error) {
	path := "/projects/" + url.PathEscape(projectID) + "/operations/" + url.PathEscape(operationID)
	raw, err := c.doJSON(ctx, http.MethodGet, path, nil, "get operation")
	if err != nil {
		return Operation{}, err
	}
	op, ok := normalizeOperation(raw)
	if !ok {
		return Operation{}, fmt.Errorf("neon: operation response missing id")
	}
	return op, nil
}

func (c *client) doJSON(ctx context.Context, method, path string, body any, operation string) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("neon: marshal %s request: %w", operation, err)
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
			return nil, fmt.Errorf("neon: build %s request: %w", operation, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("neon: %s: %w", operation, err)
			if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
				return nil, lastErr
			}
			time.Sleep(httpx.JitterSleep(time.Duration(attempt+1) * 500 * time.Millisecond))
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("neon: read %s response: %w", operation, readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}

		cpErr := &ControlPlaneError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
		if httpx.IsRetryableHTTPStatus(resp.StatusCode) && attempt < c.maxRetries {
			lastErr = cpErr
			time.Sleep(httpx.RetryAfterDuration(resp, httpx.JitterSleep(time.Duration(attempt+1)*500*time.Millisecond), 30*time.Second))
			continue
		}
		return nil, cpErr
	}
	return nil, lastErr
}
