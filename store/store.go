// Persistence for flows, run-details caches and analysis artifacts.
//
// Two implementations: a file store laying flows out as directories, and a Postgres store for
// structured rows.  Event logs and analysis.json artifacts stay on disk in both, the analyzer
// works against files.

package store

import (
	"encoding/json"

	"sparkalyze/platform"
)

// FlowMeta is the per-flow configuration captured when a flow is fetched.
type FlowMeta struct {
	AacBaseURL         string   `json:"aacBaseUrl"`
	OnpremBaseURL      string   `json:"onpremBaseUrl"`
	OnpremEnabled      bool     `json:"onpremEnabled"`
	MatchWindowMinutes int      `json:"matchWindowMinutes"`
	Errors             []string `json:"errors"`
}

type FlowData struct {
	Name  string          `json:"name"`
	Pairs []platform.Pair `json:"pairs"`
	FlowMeta
	LastFetched string `json:"lastFetched"`

	// Filled in by LoadFlow from the artifact directories.
	AnalyzedJobs  []string `json:"analyzedJobs"`
	DbxCachedJobs []string `json:"dbxCachedJobs"`
}

type FlowSummary struct {
	Name        string `json:"name"`
	LastFetched string `json:"lastFetched"`
	JobCount    int    `json:"jobCount"`
}

type Store interface {
	ListFlows() ([]FlowSummary, error)

	// LoadFlow returns nil (and nil error) when the flow does not exist.
	LoadFlow(name string) (*FlowData, error)

	SaveFlow(name string, pairs []platform.Pair, meta FlowMeta) error

	// MergeJobs folds freshly fetched pairs into the saved flow, keyed by run id: existing
	// pairs are updated in place, new runs are appended, saved pairs that did not reappear
	// are kept.  Returns the merged pair list.
	MergeJobs(name string, newPairs []platform.Pair, meta FlowMeta) ([]platform.Pair, error)

	DeleteFlow(name string) (bool, error)

	// Run-details cache, one JSON document per (flow, job run).
	LoadRunDetails(flow, jobRunID string) (json.RawMessage, error)
	SaveRunDetails(flow, jobRunID string, data json.RawMessage) error
	ClearRunDetails(flow, jobRunID string) (bool, error)
	ListRunDetailsCached(flow string) ([]string, error)

	// EventlogDir returns (creating if needed) the directory holding the event log and
	// analysis artifact for a job run.
	EventlogDir(flow, jobRunID string) (string, error)

	// Job runs under flow that have an analysis.json artifact.
	ListAnalyzedJobs(flow string) ([]string, error)

	Close()
}

// Shared merge logic.  The stores differ only in how they load and save.
func mergePairs(existing, newPairs []platform.Pair) []platform.Pair {
	index := make(map[string]int, len(existing))
	for i := range existing {
		if key := platform.PairKey(&existing[i]); key != "" {
			index[key] = i
		}
	}
	for i := range newPairs {
		p := &newPairs[i]
		key := platform.PairKey(p)
		if key == "" {
			continue
		}
		if at, found := index[key]; found {
			old := &existing[at]
			if p.Aac != nil {
				old.Aac = p.Aac
			}
			if p.Onprem != nil {
				old.Onprem = p.Onprem
			}
			old.Matched = p.Matched
		} else {
			existing = append(existing, *p)
			index[key] = len(existing) - 1
		}
	}
	return existing
}
