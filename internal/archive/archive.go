package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Builder produces a plugin archive and returns its path.
type Builder interface {
	Create(ctx context.Context) (string, error)
}

// ErrNotRepository is returned by Git when Dir has no current branch
// (not a work tree, detached HEAD, or git missing).
var ErrNotRepository = errors.New("not a git repository with a checked-out branch")

// Git zips the checked-out branch of the repository in Dir with
// `git archive`. The archive is named <repo>-<branch>.zip and every entry
// is prefixed with <repo>-<branch>/.
type Git struct {
	Dir string
	// OutDir defaults to Dir.
	OutDir string
	// Fallback zips the working directory with Dir when git cannot be used.
	Fallback bool
	Logger   *slog.Logger
}

func (g Git) Create(ctx context.Context) (string, error) {
	dir, err := resolveDir(g.Dir)
	if err != nil {
		return "", err
	}
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}

	branch, err := currentBranch(ctx, dir)
	if err != nil {
		if !g.Fallback {
			return "", err
		}
		logger.Debug("git archive unavailable, zipping directory", "dir", dir, "error", err)
		return Dir{Root: dir, OutDir: g.OutDir, Name: filepath.Base(dir), Logger: logger}.Create(ctx)
	}

	name := filepath.Base(dir) + "-" + branch
	out := filepath.Join(outputDir(g.OutDir, dir), name+".zip")
	cmd := exec.CommandContext(ctx, "git", "archive", "--format=zip", "--prefix="+name+"/", "-o", out, branch)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git archive failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	logger.Debug("archive created", "path", out)
	return out, nil
}

func currentBranch(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "branch", "--show-current")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotRepository, err)
	}
	branch := strings.TrimSpace(string(output))
	if branch == "" {
		return "", ErrNotRepository
	}
	return branch, nil
}

func resolveDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	return abs, nil
}

func outputDir(outDir, fallback string) string {
	if outDir != "" {
		return outDir
	}
	return fallback
}
