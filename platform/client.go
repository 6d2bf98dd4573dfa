// Job-library client for the cloud and on-prem wrangling platforms.  Both speak the same
// /jobLibrary API; the on-prem variant usually sits behind a self-signed certificate, so TLS
// verification can be turned off per client.

package platform

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Fields the tracker cares about from a jobLibrary entry, in the wire casing the UI expects.
type JobSummary struct {
	JobRunID             int64    `json:"jobRunId"`
	JobGroupID           int64    `json:"jobGroupId"`
	Status               string   `json:"status"`
	FlowID               *int64   `json:"flowId"`
	FlowName             *string  `json:"flowName"`
	CreatedAt            string   `json:"createdAt"`
	UpdatedAt            string   `json:"updatedAt"`
	ExecutionTimeMinutes *float64 `json:"executionTimeMinutes"`
	ExecutionLanguage    *string  `json:"executionLanguage"`
	DatabricksJobID      *string  `json:"databricksJobId"`
}

type APIError struct {
	Host string
	Err  error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Platform API at %s failed\n%v", e.Host, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a job-library client.  insecure disables certificate verification.
func NewClient(baseURL, token string, insecure bool, timeout time.Duration) *Client {
	transport := http.DefaultTransport
	if insecure {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// GetJobsForFlow fetches recent job runs whose flow name matches flowName.
func (c *Client) GetJobsForFlow(flowName string, limit int, ranfor string) ([]JobSummary, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("filter", flowName)
	params.Set("ranfor", ranfor)

	req, err := http.NewRequest("GET", c.baseURL+"/jobLibrary?"+params.Encode(), nil)
	if err != nil {
		return nil, &APIError{c.baseURL, err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, &APIError{c.baseURL,
				fmt.Errorf("Unreachable, timed out fetching jobs for '%s'", flowName)}
		}
		return nil, &APIError{c.baseURL, err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &APIError{c.baseURL,
			fmt.Errorf("Failed to fetch jobs for flow '%s': %s: %s", flowName, resp.Status, string(body))}
	}

	var payload struct {
		Data []json.RawMessage `json:"data"`
	}
	err = json.NewDecoder(resp.Body).Decode(&payload)
	if err != nil {
		return nil, &APIError{c.baseURL, err}
	}

	jobs := make([]JobSummary, 0, len(payload.Data))
	for _, raw := range payload.Data {
		var entry jobLibraryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		jobs = append(jobs, extractJobSummary(&entry))
	}
	return jobs, nil
}

// The jobLibrary wire shape, only what extraction needs.  The interesting execution details
// live one level down in jobs.data[0].
type jobLibraryEntry struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
	WrangledDataset *struct {
		Flow *struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"flow"`
	} `json:"wrangledDataset"`
	Jobs *struct {
		Data []struct {
			ExecutionLanguage *string `json:"executionLanguage"`
			CpJobID           *string `json:"cpJobId"`
		} `json:"data"`
	} `json:"jobs"`
}

func extractJobSummary(entry *jobLibraryEntry) JobSummary {
	summary := JobSummary{
		JobRunID:   entry.ID,
		JobGroupID: entry.ID,
		Status:     entry.Status,
		CreatedAt:  entry.CreatedAt,
		UpdatedAt:  entry.UpdatedAt,
	}
	if wd := entry.WrangledDataset; wd != nil && wd.Flow != nil {
		summary.FlowID = &wd.Flow.ID
		summary.FlowName = &wd.Flow.Name
	}
	summary.ExecutionTimeMinutes = computeExecutionMinutes(entry.CreatedAt, entry.UpdatedAt)
	if entry.Jobs != nil && len(entry.Jobs.Data) > 0 {
		inner := entry.Jobs.Data[0]
		summary.ExecutionLanguage = inner.ExecutionLanguage
		// cpJobId is a JSON string holding the Databricks linkage, e.g.
		// {"databricksWorkspaceId":"...","databricksJobId":"943293893227722"}
		if inner.CpJobID != nil {
			var cp struct {
				DatabricksJobID string `json:"databricksJobId"`
			}
			if err := json.Unmarshal([]byte(*inner.CpJobID), &cp); err == nil && cp.DatabricksJobID != "" {
				summary.DatabricksJobID = &cp.DatabricksJobID
			}
		}
	}
	return summary
}

// Timestamps arrive as '2026-01-29T19:32:42.000Z'.
func parseISO(ts string) (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func computeExecutionMinutes(createdAt, updatedAt string) *float64 {
	created, okc := parseISO(createdAt)
	updated, oku := parseISO(updatedAt)
	if !okc || !oku {
		return nil
	}
	minutes := math.Round(updated.Sub(created).Minutes()*10) / 10
	return &minutes
}
