// File-based store.
//
// Layout:
//   <dataDir>/<flowName>/
//       flow_data.json        pairs, metadata, base URLs
//       dbx/<jobRunId>.json   cached run details
//       eventlogs/<jobRunId>/
//           eventlog          assembled event log
//           analysis.json     analysis artifact

package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	. "sparkalyze/common"
	"sparkalyze/platform"
)

type FileStore struct {
	dataDir string
}

func NewFileStore(dataDir string) *FileStore {
	return &FileStore{dataDir: dataDir}
}

var (
	unsafeChars   = regexp.MustCompile(`[^\w\s\-.]`)
	spaceCollapse = regexp.MustCompile(`\s+`)
)

// Flow names come from user input and go into directory names.
func sanitizeName(name string) string {
	safe := unsafeChars.ReplaceAllString(name, "_")
	safe = strings.TrimSpace(spaceCollapse.ReplaceAllString(safe, " "))
	if safe == "" {
		return "unnamed"
	}
	return safe
}

func (fs *FileStore) flowDir(name string) string {
	return filepath.Join(fs.dataDir, sanitizeName(name))
}

func readJSON(path string, data any) (bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, data)
}

func writeJSON(path string, data any) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0644)
}

func (fs *FileStore) ListFlows() ([]FlowSummary, error) {
	entries, err := os.ReadDir(fs.dataDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	result := make([]FlowSummary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var data FlowData
		found, err := readJSON(filepath.Join(fs.dataDir, entry.Name(), "flow_data.json"), &data)
		if err != nil {
			Log.Warningf("Skipping unreadable flow %s: %v", entry.Name(), err)
			continue
		}
		if !found {
			continue
		}
		name := data.Name
		if name == "" {
			name = entry.Name()
		}
		result = append(result, FlowSummary{
			Name:        name,
			LastFetched: data.LastFetched,
			JobCount:    len(data.Pairs),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (fs *FileStore) LoadFlow(name string) (*FlowData, error) {
	var data FlowData
	found, err := readJSON(filepath.Join(fs.flowDir(name), "flow_data.json"), &data)
	if err != nil || !found {
		return nil, err
	}
	data.AnalyzedJobs, err = fs.ListAnalyzedJobs(name)
	if err != nil {
		return nil, err
	}
	data.DbxCachedJobs, err = fs.ListRunDetailsCached(name)
	if err != nil {
		return nil, err
	}
	return &data, nil
}

func (fs *FileStore) SaveFlow(name string, pairs []platform.Pair, meta FlowMeta) error {
	data := FlowData{
		Name:        name,
		Pairs:       pairs,
		FlowMeta:    meta,
		LastFetched: NowISO(),
	}
	err := writeJSON(filepath.Join(fs.flowDir(name), "flow_data.json"), &data)
	if err != nil {
		return err
	}
	Log.Infof("Saved flow '%s' with %d pairs", name, len(pairs))
	return nil
}

func (fs *FileStore) MergeJobs(name string, newPairs []platform.Pair, meta FlowMeta) ([]platform.Pair, error) {
	existing, err := fs.LoadFlow(name)
	if err != nil {
		return nil, err
	}
	if existing == nil || len(existing.Pairs) == 0 {
		return newPairs, fs.SaveFlow(name, newPairs, meta)
	}
	merged := mergePairs(existing.Pairs, newPairs)
	return merged, fs.SaveFlow(name, merged, meta)
}

func (fs *FileStore) DeleteFlow(name string) (bool, error) {
	dir := fs.flowDir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return false, nil
	}
	err := os.RemoveAll(dir)
	if err != nil {
		return false, err
	}
	Log.Infof("Deleted flow '%s'", name)
	return true, nil
}

func (fs *FileStore) runDetailsPath(flow, jobRunID string) string {
	return filepath.Join(fs.flowDir(flow), "dbx", jobRunID+".json")
}

func (fs *FileStore) LoadRunDetails(flow, jobRunID string) (json.RawMessage, error) {
	raw, err := os.ReadFile(fs.runDetailsPath(flow, jobRunID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (fs *FileStore) SaveRunDetails(flow, jobRunID string, data json.RawMessage) error {
	path := fs.runDetailsPath(flow, jobRunID)
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return err
	}
	err = os.WriteFile(path, data, 0644)
	if err != nil {
		return err
	}
	Log.Infof("Cached run details for flow='%s' job=%s", flow, jobRunID)
	return nil
}

func (fs *FileStore) ClearRunDetails(flow, jobRunID string) (bool, error) {
	path := fs.runDetailsPath(flow, jobRunID)
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (fs *FileStore) ListRunDetailsCached(flow string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.flowDir(flow), "dbx"))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if name, found := strings.CutSuffix(entry.Name(), ".json"); found {
			ids = append(ids, name)
		}
	}
	return ids, nil
}

func (fs *FileStore) EventlogDir(flow, jobRunID string) (string, error) {
	dir := filepath.Join(fs.flowDir(flow), "eventlogs", jobRunID)
	return dir, os.MkdirAll(dir, 0755)
}

func (fs *FileStore) ListAnalyzedJobs(flow string) ([]string, error) {
	root := filepath.Join(fs.flowDir(flow), "eventlogs")
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, entry.Name(), "analysis.json")); err == nil {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}

func (fs *FileStore) Close() {
}
