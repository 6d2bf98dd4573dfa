// Event log assembly.
//
// The platform stores Spark event logs under /trifacta/logs/<cluster_id>/eventlog/<r1>/<r2>/.
// Long-running jobs roll the log: `eventlog` holds the most recent events as plain text, and
// `eventlog-YYYY-MM-DD--HH-MM.gz` archives hold older events.  Assembly discovers the directory,
// downloads every file, decompresses the archives, and concatenates everything oldest to newest
// into one local file the analyzer can read.

package assemble

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"

	. "sparkalyze/common"
)

// Failure kinds, so callers can distinguish "cluster has no logs" from transport trouble.
const (
	AssemblyDiscovery  = "discovery"
	AssemblyDownload   = "download"
	AssemblyDecompress = "decompress"
)

type AssemblyError struct {
	Kind      string
	ClusterID string
	Err       error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("Event log assembly for cluster %s failed during %s\n%v",
		e.ClusterID, e.Kind, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

const maxSearchDepth = 5

// FindEventlogDir locates the directory holding the eventlog files for a cluster, searching
// at most maxSearchDepth levels below the cluster's log root.
func FindEventlogDir(client DbfsAPI, clusterID string) (string, error) {
	basePath := "/trifacta/logs/" + clusterID + "/eventlog"
	Log.Infof("Searching for event log directory under %s", basePath)

	items, err := client.List(basePath)
	if err != nil {
		return "", &AssemblyError{AssemblyDiscovery, clusterID,
			fmt.Errorf("Cannot access DBFS path '%s'\n%w", basePath, err)}
	}
	if len(items) == 0 {
		return "", &AssemblyError{AssemblyDiscovery, clusterID,
			fmt.Errorf("No contents found at '%s', the cluster may not have event logs", basePath)}
	}

	dir := searchEventlogDir(client, basePath, 0)
	if dir == "" {
		return "", &AssemblyError{AssemblyDiscovery, clusterID,
			fmt.Errorf("No eventlog files found under '%s'", basePath)}
	}
	Log.Infof("Found event log directory %s", dir)
	return dir, nil
}

func searchEventlogDir(client DbfsAPI, path string, depth int) string {
	if depth > maxSearchDepth {
		return ""
	}
	children, err := client.List(path)
	if err != nil {
		Log.Warningf("Error listing '%s': %v", path, err)
		return ""
	}
	for _, item := range children {
		if !item.IsDir && strings.HasPrefix(filepath.Base(item.Path), "eventlog") {
			return path
		}
	}
	for _, item := range children {
		if item.IsDir {
			if found := searchEventlogDir(client, item.Path, depth+1); found != "" {
				return found
			}
		}
	}
	return ""
}

var timestampRe = regexp.MustCompile(`eventlog-(\d{4}-\d{2}-\d{2}--\d{2}-\d{2})`)

// Timestamped archives come first, oldest to newest; the plain `eventlog` file holding the
// most recent events comes last.  The timestamp format sorts correctly as a string.
func sortKey(filename string) (int, string) {
	if m := timestampRe.FindStringSubmatch(filename); m != nil {
		return 0, m[1]
	}
	return 1, filename
}

func olderThan(a, b string) bool {
	ra, ka := sortKey(a)
	rb, kb := sortKey(b)
	if ra != rb {
		return ra < rb
	}
	return ka < kb
}

// Assemble downloads, decompresses and concatenates a cluster's event log fragments into
// <localDir>/eventlog, returning the path of the unified file.
func Assemble(client DbfsAPI, clusterID, localDir string) (string, error) {
	eventlogDir, err := FindEventlogDir(client, clusterID)
	if err != nil {
		return "", err
	}

	items, err := client.List(eventlogDir)
	if err != nil {
		return "", &AssemblyError{AssemblyDiscovery, clusterID,
			fmt.Errorf("Cannot list eventlog directory '%s'\n%w", eventlogDir, err)}
	}
	files := make([]DbfsFile, 0, len(items))
	for _, item := range items {
		if !item.IsDir {
			files = append(files, item)
		}
	}
	if len(files) == 0 {
		return "", &AssemblyError{AssemblyDiscovery, clusterID,
			fmt.Errorf("No files in eventlog directory '%s'", eventlogDir)}
	}
	Log.Infof("Found %d eventlog file(s) in %s", len(files), eventlogDir)

	tmpDir := filepath.Join(localDir, "_eventlog_parts")
	err = os.MkdirAll(tmpDir, 0755)
	if err != nil {
		return "", &AssemblyError{AssemblyDownload, clusterID, err}
	}
	defer os.RemoveAll(tmpDir)

	type part struct {
		name      string // remote name, carries the sort key
		localPath string
	}
	parts := make([]part, 0, len(files))

	for _, f := range files {
		name := filepath.Base(f.Path)
		localPath := filepath.Join(tmpDir, name)
		Log.Infof("Downloading %s (%d bytes)", f.Path, f.FileSize)

		err := downloadTo(client, f.Path, localPath)
		if err != nil {
			return "", &AssemblyError{AssemblyDownload, clusterID,
				fmt.Errorf("Failed to download '%s'\n%w", f.Path, err)}
		}

		if strings.HasSuffix(name, ".gz") {
			plainPath := localPath[:len(localPath)-3]
			Log.Infof("Decompressing %s", name)
			err := gunzipFile(localPath, plainPath)
			if err != nil {
				return "", &AssemblyError{AssemblyDecompress, clusterID,
					fmt.Errorf("Failed to decompress '%s'\n%w", name, err)}
			}
			os.Remove(localPath)
			parts = append(parts, part{name, plainPath})
		} else {
			parts = append(parts, part{name, localPath})
		}
	}

	// Oldest to newest.
	slices.SortStableFunc(parts, func(a, b part) int {
		if olderThan(a.name, b.name) {
			return -1
		}
		if olderThan(b.name, a.name) {
			return 1
		}
		return 0
	})

	finalPath := filepath.Join(localDir, "eventlog")
	out, err := os.Create(finalPath)
	if err != nil {
		return "", &AssemblyError{AssemblyDownload, clusterID, err}
	}
	defer out.Close()

	var totalBytes int64
	for _, p := range parts {
		in, err := os.Open(p.localPath)
		if err != nil {
			return "", &AssemblyError{AssemblyDownload, clusterID, err}
		}
		n, err := io.Copy(out, in)
		in.Close()
		if err != nil {
			return "", &AssemblyError{AssemblyDownload, clusterID, err}
		}
		totalBytes += n
		// Separator so JSON lines from adjacent fragments don't merge.
		_, err = out.Write([]byte("\n"))
		if err != nil {
			return "", &AssemblyError{AssemblyDownload, clusterID, err}
		}
		Log.Infof("Appended %s (%d bytes)", p.name, n)
	}
	Log.Infof("Unified eventlog: %d bytes in %s", totalBytes, finalPath)

	return finalPath, nil
}

func downloadTo(client DbfsAPI, remotePath, localPath string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = client.Download(remotePath, f)
	return err
}

func gunzipFile(gzPath, outPath string) error {
	in, err := os.Open(gzPath)
	if err != nil {
		return err
	}
	defer in.Close()
	zr, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer zr.Close()
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, zr)
	return err
}
