package corpus

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultArchive is the name of the dataset archive expected in the data root
const DefaultArchive = "reqres_readable (8).zip"

// EnsureDataset extracts archive into root when the host directory is missing.
// It is a no-op when the host directory exists or the archive is absent.
func EnsureDataset(root, host, archive string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(filepath.Join(root, host)); err == nil {
		return nil
	}

	archivePath := filepath.Join(root, archive)
	if _, err := os.Stat(archivePath); os.IsNotExist(err) {
		logger.Debug("no dataset archive found", "path", archivePath)
		return nil
	}

	logger.Info("extracting dataset archive", "path", archivePath)
	n, err := extractZip(archivePath, root)
	if err != nil {
		return fmt.Errorf("failed to extract dataset archive: %w", err)
	}
	logger.Info("dataset archive extracted", "files", n)
	return nil
}

func extractZip(archivePath, dest string) (int, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	count := 0
	for _, f := range r.File {
		name := filepath.FromSlash(f.Name)
		if !filepath.IsLocal(name) {
			return count, fmt.Errorf("archive entry %q escapes destination", f.Name)
		}
		target := filepath.Join(dest, name)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return count, err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return count, fmt.Errorf("%s: %w", f.Name, err)
		}
		count++
	}
	return count, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
