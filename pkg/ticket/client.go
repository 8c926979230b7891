// Package ticket is a client for the service desk that tracks run
// release tickets. It exposes the queue listing and per-ticket status
// changelogs the audit needs to date releases.
package ticket

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
)

const (
	httpTimeout = 30 * time.Second

	// The service desk returns queue issues in fixed pages.
	queuePageSize = 50

	// Timestamps come back as e.g. 2022-09-01T14:06:10.000+0100; the
	// fractional part and offset are dropped before parsing.
	timestampLayout = "2006-01-02T15:04:05"
)

// Issue is one ticket from a service desk queue.
type Issue struct {
	ID       string
	Key      string
	Summary  string
	Status   string
	Assay    string
	Created  time.Time
	Resolved time.Time
}

// Client talks to the service desk REST API using basic auth.
type Client struct {
	log     logrus.FieldLogger
	baseURL string
	email   string
	token   string
	http    *http.Client
}

// NewClient creates a service desk client.
func NewClient(log logrus.FieldLogger, baseURL, email, token string) *Client {
	return &Client{
		log:     log.WithField("component", "ticket-client"),
		baseURL: strings.TrimRight(baseURL, "/"),
		email:   email,
		token:   token,
		http:    &http.Client{Timeout: httpTimeout},
	}
}

// queueIssue is the wire shape of one issue in a queue listing.
type queueIssue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Status  struct {
			Name string `json:"name"`
		} `json:"status"`
		Created        string `json:"created"`
		ResolutionDate string `json:"resolutiondate"`
		AssayOptions   []struct {
			Value string `json:"value"`
		} `json:"customfield_10070"`
	} `json:"fields"`
}

// QueueIssues lists every issue in a service desk queue, paging
// through the listing until an empty page comes back.
func (c *Client) QueueIssues(ctx context.Context, serviceDeskID, queueID string) ([]Issue, error) {
	var issues []Issue

	path := fmt.Sprintf(
		"/rest/servicedeskapi/servicedesk/%s/queue/%s/issue",
		url.PathEscape(serviceDeskID), url.PathEscape(queueID),
	)

	for start := 0; ; start += queuePageSize {
		params := url.Values{"start": {fmt.Sprintf("%d", start)}}

		var resp struct {
			Values []queueIssue `json:"values"`
		}

		if err := c.get(ctx, path, params, &resp); err != nil {
			return nil, fmt.Errorf("listing queue %s: %w", queueID, err)
		}

		if len(resp.Values) == 0 {
			break
		}

		for _, raw := range resp.Values {
			issue := Issue{
				ID:       raw.ID,
				Key:      raw.Key,
				Summary:  raw.Fields.Summary,
				Status:   raw.Fields.Status.Name,
				Created:  parseTimestamp(raw.Fields.Created),
				Resolved: parseTimestamp(raw.Fields.ResolutionDate),
			}
			if len(raw.Fields.AssayOptions) > 0 {
				issue.Assay = raw.Fields.AssayOptions[0].Value
			}

			issues = append(issues, issue)
		}
	}

	c.log.WithFields(logrus.Fields{
		"queue":  queueID,
		"issues": len(issues),
	}).Debug("Fetched queue issues")

	return issues, nil
}

// Changelog returns the last transition time into each status a
// ticket has visited. Repeated visits keep the latest transition.
func (c *Client) Changelog(ctx context.Context, issueID string) (map[string]time.Time, error) {
	history := map[string]time.Time{}

	path := fmt.Sprintf("/rest/api/3/issue/%s/changelog", url.PathEscape(issueID))

	for start := 0; ; {
		params := url.Values{"startAt": {fmt.Sprintf("%d", start)}}

		var resp struct {
			Values []struct {
				Created string `json:"created"`
				Items   []struct {
					Field    string `json:"field"`
					ToString string `json:"toString"`
				} `json:"items"`
			} `json:"values"`
			IsLast     bool `json:"isLast"`
			MaxResults int  `json:"maxResults"`
		}

		if err := c.get(ctx, path, params, &resp); err != nil {
			return nil, fmt.Errorf("fetching changelog for %s: %w", issueID, err)
		}

		for _, entry := range resp.Values {
			when := parseTimestamp(entry.Created)

			for _, item := range entry.Items {
				if item.Field != "status" || item.ToString == "" {
					continue
				}

				history[item.ToString] = when
			}
		}

		if resp.IsLast || len(resp.Values) == 0 {
			break
		}

		start += len(resp.Values)
	}

	return history, nil
}

// get issues a single GET request with basic auth and decodes the
// JSON response into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf(
			"ticket api returned status %d for %s: %s",
			resp.StatusCode, path, strings.TrimSpace(string(body)),
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}

	return nil
}

// parseTimestamp parses a service desk timestamp, discarding the
// fractional seconds and offset. Empty or malformed values become the
// zero time.
func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	trimmed, _, _ := strings.Cut(raw, ".")

	t, err := time.Parse(timestampLayout, trimmed)
	if err != nil {
		return time.Time{}
	}

	return t
}
