// Postgres-backed store for structured rows.  Event logs and analysis artifacts stay on disk
// under dataDir, only flow and run-details rows move into the database.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jackc/pgx/v5"

	. "sparkalyze/common"
	"sparkalyze/platform"
)

type PgStore struct {
	// The connection is not thread-safe; every operation takes the lock.
	conn    *pgx.Conn
	lock    sync.Mutex
	dataDir string
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS flows (
    name            TEXT PRIMARY KEY,
    pairs           JSONB,
    aac_base_url    TEXT,
    onprem_base_url TEXT,
    onprem_enabled  BOOLEAN DEFAULT TRUE,
    match_window    INTEGER DEFAULT 10,
    errors          JSONB,
    last_fetched    TEXT
);

CREATE TABLE IF NOT EXISTS run_cache (
    flow_name       TEXT,
    job_run_id      TEXT,
    data            JSONB,
    cached_at       TEXT,
    PRIMARY KEY (flow_name, job_run_id)
);
`

// OpenPgStore connects, bootstraps the schema, and returns the store.  dataDir holds the
// on-disk artifacts exactly as in the file store.
func OpenPgStore(databaseURI, dataDir string) (*PgStore, error) {
	conn, err := pgx.Connect(context.Background(), databaseURI)
	if err != nil {
		return nil, fmt.Errorf("Unable to connect to database\n%w", err)
	}
	_, err = conn.Exec(context.Background(), pgSchema)
	if err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("Unable to initialize database schema\n%w", err)
	}
	return &PgStore{conn: conn, dataDir: dataDir}, nil
}

func (ps *PgStore) Close() {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	ps.conn.Close(context.Background())
}

func (ps *PgStore) ListFlows() ([]FlowSummary, error) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	rows, err := ps.conn.Query(context.Background(),
		`SELECT name, COALESCE(last_fetched, ''), COALESCE(jsonb_array_length(pairs), 0)
		 FROM flows ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]FlowSummary, 0)
	for rows.Next() {
		var s FlowSummary
		err := rows.Scan(&s.Name, &s.LastFetched, &s.JobCount)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (ps *PgStore) LoadFlow(name string) (*FlowData, error) {
	ps.lock.Lock()
	var data FlowData
	var pairsJSON, errorsJSON []byte
	err := ps.conn.QueryRow(context.Background(),
		`SELECT name, COALESCE(pairs, '[]'), COALESCE(aac_base_url, ''),
		        COALESCE(onprem_base_url, ''), onprem_enabled, match_window,
		        COALESCE(errors, '[]'), COALESCE(last_fetched, '')
		 FROM flows WHERE name = $1`, name).
		Scan(&data.Name, &pairsJSON, &data.AacBaseURL, &data.OnpremBaseURL,
			&data.OnpremEnabled, &data.MatchWindowMinutes, &errorsJSON, &data.LastFetched)
	ps.lock.Unlock()
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(pairsJSON, &data.Pairs)
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(errorsJSON, &data.Errors)
	if err != nil {
		return nil, err
	}
	data.AnalyzedJobs, err = ps.ListAnalyzedJobs(name)
	if err != nil {
		return nil, err
	}
	data.DbxCachedJobs, err = ps.ListRunDetailsCached(name)
	if err != nil {
		return nil, err
	}
	return &data, nil
}

func (ps *PgStore) SaveFlow(name string, pairs []platform.Pair, meta FlowMeta) error {
	pairsJSON, err := json.Marshal(pairs)
	if err != nil {
		return err
	}
	errorsJSON, err := json.Marshal(meta.Errors)
	if err != nil {
		return err
	}

	ps.lock.Lock()
	defer ps.lock.Unlock()
	_, err = ps.conn.Exec(context.Background(),
		`INSERT INTO flows (name, pairs, aac_base_url, onprem_base_url, onprem_enabled,
		                    match_window, errors, last_fetched)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (name) DO UPDATE SET
		     pairs = excluded.pairs,
		     aac_base_url = excluded.aac_base_url,
		     onprem_base_url = excluded.onprem_base_url,
		     onprem_enabled = excluded.onprem_enabled,
		     match_window = excluded.match_window,
		     errors = excluded.errors,
		     last_fetched = excluded.last_fetched`,
		name, pairsJSON, meta.AacBaseURL, meta.OnpremBaseURL, meta.OnpremEnabled,
		meta.MatchWindowMinutes, errorsJSON, NowISO())
	if err != nil {
		return err
	}
	Log.Infof("Saved flow '%s' with %d pairs", name, len(pairs))
	return nil
}

func (ps *PgStore) MergeJobs(name string, newPairs []platform.Pair, meta FlowMeta) ([]platform.Pair, error) {
	existing, err := ps.LoadFlow(name)
	if err != nil {
		return nil, err
	}
	if existing == nil || len(existing.Pairs) == 0 {
		return newPairs, ps.SaveFlow(name, newPairs, meta)
	}
	merged := mergePairs(existing.Pairs, newPairs)
	return merged, ps.SaveFlow(name, merged, meta)
}

func (ps *PgStore) DeleteFlow(name string) (bool, error) {
	ps.lock.Lock()
	_, err := ps.conn.Exec(context.Background(),
		"DELETE FROM run_cache WHERE flow_name = $1", name)
	if err != nil {
		ps.lock.Unlock()
		return false, err
	}
	tag, err := ps.conn.Exec(context.Background(),
		"DELETE FROM flows WHERE name = $1", name)
	ps.lock.Unlock()
	if err != nil {
		return false, err
	}
	// Artifacts on disk go too.
	os.RemoveAll(filepath.Join(ps.dataDir, sanitizeName(name)))
	deleted := tag.RowsAffected() > 0
	if deleted {
		Log.Infof("Deleted flow '%s'", name)
	}
	return deleted, nil
}

func (ps *PgStore) LoadRunDetails(flow, jobRunID string) (json.RawMessage, error) {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	var data []byte
	err := ps.conn.QueryRow(context.Background(),
		"SELECT data FROM run_cache WHERE flow_name = $1 AND job_run_id = $2",
		flow, jobRunID).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (ps *PgStore) SaveRunDetails(flow, jobRunID string, data json.RawMessage) error {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	_, err := ps.conn.Exec(context.Background(),
		`INSERT INTO run_cache (flow_name, job_run_id, data, cached_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (flow_name, job_run_id) DO UPDATE SET
		     data = excluded.data, cached_at = excluded.cached_at`,
		flow, jobRunID, []byte(data), NowISO())
	if err != nil {
		return err
	}
	Log.Infof("Cached run details for flow='%s' job=%s", flow, jobRunID)
	return nil
}

func (ps *PgStore) ClearRunDetails(flow, jobRunID string) (bool, error) {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	tag, err := ps.conn.Exec(context.Background(),
		"DELETE FROM run_cache WHERE flow_name = $1 AND job_run_id = $2", flow, jobRunID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (ps *PgStore) ListRunDetailsCached(flow string) ([]string, error) {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	rows, err := ps.conn.Query(context.Background(),
		"SELECT job_run_id FROM run_cache WHERE flow_name = $1", flow)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (ps *PgStore) EventlogDir(flow, jobRunID string) (string, error) {
	dir := filepath.Join(ps.dataDir, sanitizeName(flow), "eventlogs", jobRunID)
	return dir, os.MkdirAll(dir, 0755)
}

func (ps *PgStore) ListAnalyzedJobs(flow string) ([]string, error) {
	root := filepath.Join(ps.dataDir, sanitizeName(flow), "eventlogs")
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

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*PgStore)(nil)
)
