package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Dir zips a directory tree into <Name>.zip with entries under <Name>/.
// Version control metadata and the archive itself are skipped.
type Dir struct {
	Root   string
	OutDir string
	Name   string
	Logger *slog.Logger
}

var skippedDirs = map[string]bool{".git": true, ".hg": true, ".svn": true, "__pycache__": true}

func (d Dir) Create(ctx context.Context) (string, error) {
	root, err := resolveDir(d.Root)
	if err != nil {
		return "", err
	}
	name := d.Name
	if name == "" {
		name = filepath.Base(root)
	}
	out := filepath.Join(outputDir(d.OutDir, root), name+".zip")

	tmp, err := os.CreateTemp(filepath.Dir(out), "."+name+"-*.zip")
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	zw := zip.NewWriter(tmp)
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() {
			if path != root && skippedDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if path == out || path == tmpPath || !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, name+"/"+filepath.ToSlash(rel))
	})
	if walkErr != nil {
		zw.Close()
		tmp.Close()
		return "", fmt.Errorf("zip %s: %w", root, walkErr)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("finish archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("finish archive: %w", err)
	}
	if err := os.Rename(tmpPath, out); err != nil {
		return "", fmt.Errorf("finish archive: %w", err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("archive created", "path", out)
	return out, nil
}

func addFile(zw *zip.Writer, path, entryName string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = strings.TrimPrefix(entryName, "/")
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
