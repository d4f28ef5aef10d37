// Package packager archives a completed job's output directory and
// resolves named artifacts within it for download. It archives with the
// standard library's archive/tar + compress/gzip rather than a pack
// dependency — see DESIGN.md for why no third-party archiver from the
// example corpus was a better fit.
package packager

import (
	"archive/tar"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/rs/zerolog"
)

// ArtifactGlobs maps a symbolic artifact name to the glob pattern that
// resolves it under a job directory. Ambiguity is resolved by taking the
// first match; absence is a not-found error.
var ArtifactGlobs = map[string]string{
	"island_catalog":    "catalog-island-*.txt",
	"component_catalog":  "catalog-component-*.txt",
	"island_catalog_json": "catalog-island-*.json",
	"component_catalog_json": "catalog-component-*.json",
	"preview":            "preview-*.png",
}

// Packager archives job directories and resolves artifacts within them.
type Packager struct {
	logger zerolog.Logger
}

// New constructs a Packager.
func New() *Packager {
	return &Packager{logger: log.WithComponent("packager")}
}

// ArchiveName is the fixed archive filename packaged inside every job
// directory.
func ArchiveName(jobID string) string {
	return fmt.Sprintf("job_%s.tar.gz", jobID)
}

// Package verifies jobDir exists and, if no archive is already present,
// tars and gzips the directory into it. It is idempotent: a second call
// after the archive exists is a no-op success, matching the reconciliation
// engine's "invoke exactly once, but safe to retry" contract.
func (p *Packager) Package(jobDir, jobID string) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PackagingDuration)

	info, err := os.Stat(jobDir)
	if err != nil || !info.IsDir() {
		metrics.PackagingFailedTotal.Inc()
		return fmt.Errorf("job directory %s does not exist: %w", jobDir, err)
	}

	archivePath := filepath.Join(jobDir, ArchiveName(jobID))
	if _, err := os.Stat(archivePath); err == nil {
		return nil // already packaged
	}

	if err := p.writeArchive(jobDir, archivePath); err != nil {
		metrics.PackagingFailedTotal.Inc()
		return fmt.Errorf("failed to package job directory %s: %w", jobDir, err)
	}
	return nil
}

func (p *Packager) writeArchive(jobDir, archivePath string) error {
	tmpPath := archivePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	walkErr := filepath.Walk(jobDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == archivePath {
			return nil
		}
		rel, err := filepath.Rel(jobDir, path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = rel

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})

	if walkErr != nil {
		tw.Close()
		gw.Close()
		f.Close()
		return walkErr
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, archivePath)
}

// ResolveArtifact returns the single file under jobDir matching the glob
// pattern registered for name. More than one match resolves to the first;
// no match is a not-found error.
func (p *Packager) ResolveArtifact(jobDir, name string) (string, error) {
	pattern, ok := ArtifactGlobs[name]
	if !ok {
		return "", fmt.Errorf("unknown artifact name %q", name)
	}
	matches, err := filepath.Glob(filepath.Join(jobDir, pattern))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("artifact %q not found in %s", name, jobDir)
	}
	return matches[0], nil
}

// ArchivePath returns the job's archive path if it exists.
func (p *Packager) ArchivePath(jobDir, jobID string) (string, error) {
	path := filepath.Join(jobDir, ArchiveName(jobID))
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("archive not found for job %s: %w", jobID, err)
	}
	return path, nil
}

// ReadArtifactBase64 reads an artifact file fully and base64-encodes it,
// for the preview-image endpoint's JSON envelope.
func ReadArtifactBase64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
