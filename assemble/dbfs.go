// Minimal DBFS REST client, just the two endpoints the assembler needs.

package assemble

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type DbfsFile struct {
	Path     string `json:"path"`
	IsDir    bool   `json:"is_dir"`
	FileSize int64  `json:"file_size"`
}

// The subset of DBFS used by the assembler.  Tests substitute a fake.
type DbfsAPI interface {
	// List the files and directories directly under path.
	List(path string) ([]DbfsFile, error)

	// Stream the file at path into w, returning the byte count.
	Download(path string, w io.Writer) (int64, error)
}

type DbfsClient struct {
	host   string
	token  string
	client *http.Client
}

// The read endpoint returns at most 1MB of base64 data per call.
const dbfsReadChunk = 1024 * 1024

func NewDbfsClient(host, token string) *DbfsClient {
	return &DbfsClient{
		host:  host,
		token: token,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *DbfsClient) get(endpoint string, query url.Values, result any) error {
	req, err := http.NewRequest("GET", c.host+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("DBFS request %s failed: %s: %s", endpoint, resp.Status, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func (c *DbfsClient) List(path string) ([]DbfsFile, error) {
	var listing struct {
		Files []DbfsFile `json:"files"`
	}
	query := url.Values{}
	query.Set("path", path)
	err := c.get("/api/2.0/dbfs/list", query, &listing)
	if err != nil {
		return nil, err
	}
	return listing.Files, nil
}

func (c *DbfsClient) Download(path string, w io.Writer) (int64, error) {
	var total int64
	for {
		var chunk struct {
			BytesRead int64  `json:"bytes_read"`
			Data      string `json:"data"`
		}
		query := url.Values{}
		query.Set("path", path)
		query.Set("offset", strconv.FormatInt(total, 10))
		query.Set("length", strconv.Itoa(dbfsReadChunk))
		err := c.get("/api/2.0/dbfs/read", query, &chunk)
		if err != nil {
			return total, err
		}
		if chunk.BytesRead == 0 {
			return total, nil
		}
		decoded, err := base64.StdEncoding.DecodeString(chunk.Data)
		if err != nil {
			return total, fmt.Errorf("DBFS read of %s returned bad data: %w", path, err)
		}
		_, err = w.Write(decoded)
		if err != nil {
			return total, err
		}
		total += chunk.BytesRead
	}
}
