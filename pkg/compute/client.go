// Package compute is a thin client for the compute platform API: the
// project registry, per-project job listings and the staging-area file
// store. It owns no audit logic; callers get typed listings with
// timestamps already converted from epoch milliseconds.
package compute

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	httpTimeout = 30 * time.Second

	// The platform caps page sizes; the cursor loop below follows
	// next tokens until the listing is exhausted.
	pageSize = 1000
)

// Project is a compute project visible to the audit.
type Project struct {
	ID      string
	Name    string
	Created time.Time
}

// Job is a pipeline job execution inside a project.
type Job struct {
	ID      string
	Name    string
	Created time.Time
	Stopped time.Time
}

// File is a data object in the staging area.
type File struct {
	Name    string
	Created time.Time
}

// Client talks to the compute platform API.
type Client struct {
	log     logrus.FieldLogger
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a compute platform client. requestsPerSecond
// bounds the query rate against the platform; zero disables limiting.
func NewClient(log logrus.FieldLogger, baseURL, token string, requestsPerSecond int) *Client {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}

	return &Client{
		log:     log.WithField("component", "compute-client"),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: httpTimeout},
		limiter: limiter,
	}
}

// Whoami verifies the token against the platform. Used as a login
// check before the audit starts querying.
func (c *Client) Whoami(ctx context.Context) error {
	var resp struct {
		User string `json:"user"`
	}

	if err := c.get(ctx, "/system/whoami", nil, &resp); err != nil {
		return fmt.Errorf("verifying credentials: %w", err)
	}

	c.log.WithField("user", resp.User).Info("Compute platform login successful")

	return nil
}

// FindProjects lists projects whose name matches the glob pattern and
// whose creation time falls inside [createdAfter, createdBefore].
func (c *Client) FindProjects(
	ctx context.Context, namePattern string, createdAfter, createdBefore time.Time,
) ([]Project, error) {
	params := url.Values{
		"name":           {namePattern},
		"name_mode":      {"glob"},
		"created_after":  {formatDate(createdAfter)},
		"created_before": {formatDate(createdBefore)},
	}

	var projects []Project

	err := c.paginate(ctx, "/projects", params, func(page json.RawMessage) error {
		var items []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Created int64  `json:"created"`
		}

		if err := json.Unmarshal(page, &items); err != nil {
			return err
		}

		for _, item := range items {
			projects = append(projects, Project{
				ID:      item.ID,
				Name:    item.Name,
				Created: fromEpochMillis(item.Created),
			})
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finding projects: %w", err)
	}

	return projects, nil
}

// ListFolders lists the top-level folder names in a project, with the
// leading slash removed.
func (c *Client) ListFolders(ctx context.Context, projectID string) ([]string, error) {
	var resp struct {
		Folders []string `json:"folders"`
	}

	path := fmt.Sprintf("/projects/%s/folders", url.PathEscape(projectID))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing folders in %s: %w", projectID, err)
	}

	folders := make([]string, 0, len(resp.Folders))
	for _, name := range resp.Folders {
		folders = append(folders, strings.TrimPrefix(name, "/"))
	}

	return folders, nil
}

// FindFiles lists files in a project folder whose name matches the
// glob pattern.
func (c *Client) FindFiles(
	ctx context.Context, projectID, folder, namePattern string,
) ([]File, error) {
	params := url.Values{
		"folder":    {folder},
		"name":      {namePattern},
		"name_mode": {"glob"},
		"class":     {"file"},
	}

	var files []File

	path := fmt.Sprintf("/projects/%s/files", url.PathEscape(projectID))

	err := c.paginate(ctx, path, params, func(page json.RawMessage) error {
		var items []struct {
			Name    string `json:"name"`
			Created int64  `json:"created"`
		}

		if err := json.Unmarshal(page, &items); err != nil {
			return err
		}

		for _, item := range items {
			files = append(files, File{
				Name:    item.Name,
				Created: fromEpochMillis(item.Created),
			})
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finding files in %s%s: %w", projectID, folder, err)
	}

	return files, nil
}

// FindJobs lists jobs in a project whose name matches the glob
// pattern. A zero window bound is omitted from the query. Only
// completed jobs carry a stopped time.
func (c *Client) FindJobs(
	ctx context.Context, projectID, namePattern, state string,
	createdAfter, createdBefore time.Time,
) ([]Job, error) {
	params := url.Values{
		"name":      {namePattern},
		"name_mode": {"glob"},
	}

	if state != "" {
		params.Set("state", state)
	}

	if !createdAfter.IsZero() {
		params.Set("created_after", formatDate(createdAfter))
	}

	if !createdBefore.IsZero() {
		params.Set("created_before", formatDate(createdBefore))
	}

	var jobs []Job

	path := fmt.Sprintf("/projects/%s/jobs", url.PathEscape(projectID))

	err := c.paginate(ctx, path, params, func(page json.RawMessage) error {
		var items []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Created int64  `json:"created"`
			Stopped int64  `json:"stopped_running,omitempty"`
		}

		if err := json.Unmarshal(page, &items); err != nil {
			return err
		}

		for _, item := range items {
			jobs = append(jobs, Job{
				ID:      item.ID,
				Name:    item.Name,
				Created: fromEpochMillis(item.Created),
				Stopped: fromEpochMillis(item.Stopped),
			})
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finding jobs in %s: %w", projectID, err)
	}

	return jobs, nil
}

// paginate issues GET requests for path, following the cursor token
// until the listing is exhausted. Each page's raw results array is
// handed to handle.
func (c *Client) paginate(
	ctx context.Context, path string, params url.Values,
	handle func(page json.RawMessage) error,
) error {
	cursor := ""

	for {
		pageParams := url.Values{}
		for k, v := range params {
			pageParams[k] = v
		}

		pageParams.Set("limit", fmt.Sprintf("%d", pageSize))

		if cursor != "" {
			pageParams.Set("cursor", cursor)
		}

		var resp struct {
			Results json.RawMessage `json:"results"`
			Next    string          `json:"next,omitempty"`
		}

		if err := c.get(ctx, path, pageParams, &resp); err != nil {
			return err
		}

		if len(resp.Results) > 0 {
			if err := handle(resp.Results); err != nil {
				return fmt.Errorf("parsing page: %w", err)
			}
		}

		if resp.Next == "" {
			return nil
		}

		cursor = resp.Next
	}
}

// get issues a single authenticated GET request and decodes the JSON
// response into out.
func (c *Client) get(
	ctx context.Context, path string, params url.Values, out any,
) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf(
			"compute api returned status %d for %s: %s",
			resp.StatusCode, path, strings.TrimSpace(string(body)),
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}

	return nil
}

// fromEpochMillis converts the platform's epoch-millisecond timestamps
// to time.Time. Zero stays the zero time.
func fromEpochMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms).UTC()
}

// formatDate renders a window bound the way the platform expects.
func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
