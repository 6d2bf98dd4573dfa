// Databricks REST client, just run details and cluster events.

package platform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	. "sparkalyze/common"
)

type DatabricksError struct {
	Op  string
	Err error
}

func (e *DatabricksError) Error() string {
	return fmt.Sprintf("Databricks %s failed\n%v", e.Op, e.Err)
}

func (e *DatabricksError) Unwrap() error {
	return e.Err
}

type Autoscale struct {
	MinWorkers *int64 `json:"minWorkers"`
	MaxWorkers *int64 `json:"maxWorkers"`
}

type RunTiming struct {
	StartTime           *string `json:"startTime"`
	EndTime             *string `json:"endTime"`
	SetupDurationMS     *int64  `json:"setupDurationMs"`
	ExecutionDurationMS *int64  `json:"executionDurationMs"`
	CleanupDurationMS   *int64  `json:"cleanupDurationMs"`
}

type RunDetails struct {
	JobName            *string           `json:"jobName"`
	SparkConf          map[string]string `json:"sparkConf"`
	ClusterID          *string           `json:"clusterId"`
	NodeTypeID         *string           `json:"nodeTypeId"`
	Autoscale          *Autoscale        `json:"autoscale"`
	Timing             RunTiming         `json:"timing"`
	ClusterEventsError string            `json:"clusterEventsError,omitempty"`
}

type ClusterEvent struct {
	Timestamp int64          `json:"timestamp"`
	IsoTime   *string        `json:"isoTime"`
	EventType string         `json:"eventType"`
	Details   map[string]any `json:"details"`
}

type DatabricksClient struct {
	host   string
	token  string
	client *http.Client
}

func NewDatabricksClient(host, token string) *DatabricksClient {
	return &DatabricksClient{
		host:  host,
		token: token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *DatabricksClient) call(method, endpoint string, query url.Values, body, result any) error {
	u := c.host + endpoint
	if query != nil {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: %s", resp.Status, string(text))
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// GetRunDetails fetches a job run and extracts the cluster sizing and timing fields.  The
// cluster config lives in the first task, or in cluster_spec for single-task runs.
func (c *DatabricksClient) GetRunDetails(runID int64) (*RunDetails, error) {
	var run struct {
		RunName           *string `json:"run_name"`
		StartTime         *int64  `json:"start_time"`
		EndTime           *int64  `json:"end_time"`
		SetupDuration     *int64  `json:"setup_duration"`
		ExecutionDuration *int64  `json:"execution_duration"`
		CleanupDuration   *int64  `json:"cleanup_duration"`
		Tasks             []struct {
			ClusterInstance *struct {
				ClusterID *string `json:"cluster_id"`
			} `json:"cluster_instance"`
			NewCluster *newCluster `json:"new_cluster"`
		} `json:"tasks"`
		ClusterSpec *struct {
			NewCluster *newCluster `json:"new_cluster"`
		} `json:"cluster_spec"`
	}

	query := url.Values{}
	query.Set("run_id", fmt.Sprint(runID))
	err := c.call("GET", "/api/2.1/jobs/runs/get", query, nil, &run)
	if err != nil {
		return nil, &DatabricksError{fmt.Sprintf("jobs/runs/get(%d)", runID), err}
	}

	details := &RunDetails{
		JobName:   run.RunName,
		SparkConf: map[string]string{},
		Timing: RunTiming{
			SetupDurationMS:     run.SetupDuration,
			ExecutionDurationMS: run.ExecutionDuration,
			CleanupDurationMS:   run.CleanupDuration,
		},
	}
	if run.StartTime != nil {
		details.Timing.StartTime = MsToISO(*run.StartTime)
	}
	if run.EndTime != nil {
		details.Timing.EndTime = MsToISO(*run.EndTime)
	}

	if len(run.Tasks) > 0 {
		task := run.Tasks[0]
		if task.ClusterInstance != nil {
			details.ClusterID = task.ClusterInstance.ClusterID
		}
		applyNewCluster(details, task.NewCluster)
	}
	if len(details.SparkConf) == 0 && run.ClusterSpec != nil {
		applyNewCluster(details, run.ClusterSpec.NewCluster)
	}
	return details, nil
}

type newCluster struct {
	SparkConf  map[string]string `json:"spark_conf"`
	NodeTypeID *string           `json:"node_type_id"`
	Autoscale  *struct {
		MinWorkers *int64 `json:"min_workers"`
		MaxWorkers *int64 `json:"max_workers"`
	} `json:"autoscale"`
}

func applyNewCluster(details *RunDetails, nc *newCluster) {
	if nc == nil {
		return
	}
	if len(nc.SparkConf) > 0 {
		details.SparkConf = nc.SparkConf
	}
	if details.NodeTypeID == nil {
		details.NodeTypeID = nc.NodeTypeID
	}
	if details.Autoscale == nil && nc.Autoscale != nil {
		details.Autoscale = &Autoscale{
			MinWorkers: nc.Autoscale.MinWorkers,
			MaxWorkers: nc.Autoscale.MaxWorkers,
		}
	}
}

const clusterEventLimit = 50

// GetClusterEvents fetches up to clusterEventLimit recent cluster events, returned oldest first.
func (c *DatabricksClient) GetClusterEvents(clusterID string) ([]ClusterEvent, error) {
	if clusterID == "" {
		return nil, nil
	}
	var reply struct {
		Events []struct {
			Timestamp int64  `json:"timestamp"`
			Type      string `json:"type"`
			Details   *struct {
				Cause  *string `json:"cause"`
				Reason *struct {
					Code *string `json:"code"`
				} `json:"reason"`
				CurrentNumWorkers *int64 `json:"current_num_workers"`
				TargetNumWorkers  *int64 `json:"target_num_workers"`
			} `json:"details"`
		} `json:"events"`
	}
	body := map[string]any{
		"cluster_id": clusterID,
		"limit":      clusterEventLimit,
	}
	err := c.call("POST", "/api/2.0/clusters/events", nil, body, &reply)
	if err != nil {
		return nil, &DatabricksError{fmt.Sprintf("clusters/events(%s)", clusterID), err}
	}

	events := make([]ClusterEvent, 0, len(reply.Events))
	for _, ev := range reply.Events {
		details := map[string]any{}
		if d := ev.Details; d != nil {
			if d.Cause != nil {
				details["cause"] = *d.Cause
			}
			if d.Reason != nil && d.Reason.Code != nil {
				details["reasonCode"] = *d.Reason.Code
			}
			if d.CurrentNumWorkers != nil {
				details["currentWorkers"] = *d.CurrentNumWorkers
			}
			if d.TargetNumWorkers != nil {
				details["targetWorkers"] = *d.TargetNumWorkers
			}
		}
		events = append(events, ClusterEvent{
			Timestamp: ev.Timestamp,
			IsoTime:   MsToISO(ev.Timestamp),
			EventType: ev.Type,
			Details:   details,
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	return events, nil
}
