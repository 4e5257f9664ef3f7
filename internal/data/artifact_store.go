package data

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/talkingphoto/pipeline/internal/core"
)

// FSArtifactStore implements core.ArtifactStore on the local filesystem. It
// downloads provider results into a job-scoped path under BaseDir and serves
// them at PublicBaseURL + the relative path.
type FSArtifactStore struct {
	baseDir       string
	publicBaseURL string
	httpc         *http.Client
}

// FSArtifactStoreConfig configures an FSArtifactStore.
type FSArtifactStoreConfig struct {
	BaseDir       string
	PublicBaseURL string
	HTTPClient    *http.Client
}

// NewFSArtifactStore creates the store and its base directory.
func NewFSArtifactStore(cfg FSArtifactStoreConfig) (*FSArtifactStore, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("artifact base dir is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 60 * time.Second}
	}
	return &FSArtifactStore{
		baseDir:       cfg.BaseDir,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		httpc:         httpc,
	}, nil
}

// Store downloads the result at srcURL into <baseDir>/<jobID>.mp4.
// stub:// URLs (from the local stub provider) produce an empty placeholder
// file instead of a download.
func (s *FSArtifactStore) Store(ctx context.Context, jobID, srcURL string) (*core.StoredArtifact, error) {
	name := jobID + ".mp4"
	path := filepath.Join(s.baseDir, name)

	var size int64
	if strings.HasPrefix(srcURL, "stub://") {
		if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
			return nil, fmt.Errorf("write placeholder artifact: %w", err)
		}
	} else {
		n, err := s.download(ctx, srcURL, path)
		if err != nil {
			return nil, err
		}
		size = n
	}

	return &core.StoredArtifact{
		Path: path,
		URL:  s.publicBaseURL + "/" + name,
		Size: size,
	}, nil
}

// Delete removes a stored artifact.
func (s *FSArtifactStore) Delete(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

func (s *FSArtifactStore) download(ctx context.Context, srcURL, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build artifact request: %w", err)
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download artifact: unexpected status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create artifact file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("write artifact file: %w", err)
	}
	return n, nil
}
