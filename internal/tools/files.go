package tools

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkamenev/toolgate/internal/model"
	"github.com/pkamenev/toolgate/internal/scope"
)

const (
	maxReadBytes     = 1 << 20 // 1 MiB per read
	maxSearchResults = 200
)

// SearchFiles finds files by name substring under an allowed root.
type SearchFiles struct {
	Guard *scope.Guard
}

func (SearchFiles) Capability() model.Capability { return model.CapSearchFiles }

func (t SearchFiles) Invoke(ctx context.Context, params map[string]string) (string, error) {
	root, err := requireParam(params, "path")
	if err != nil {
		return "", err
	}
	pattern, err := requireParam(params, "pattern")
	if err != nil {
		return "", err
	}
	if err := t.Guard.CheckPath(root); err != nil {
		return "", err
	}

	lower := strings.ToLower(pattern)
	var matches []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if strings.Contains(strings.ToLower(d.Name()), lower) {
			matches = append(matches, path)
			if len(matches) >= maxSearchResults {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("tools: search files: %w", err)
	}
	if len(matches) == 0 {
		return "no files matched", nil
	}
	return strings.Join(matches, "\n"), nil
}

// ReadFile returns the contents of a file under an allowed root,
// truncated at a fixed byte cap.
type ReadFile struct {
	Guard *scope.Guard
}

func (ReadFile) Capability() model.Capability { return model.CapReadFile }

func (t ReadFile) Invoke(_ context.Context, params map[string]string) (string, error) {
	path, err := requireParam(params, "path")
	if err != nil {
		return "", err
	}
	if err := t.Guard.CheckPath(path); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("tools: open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxReadBytes+1))
	if err != nil {
		return "", fmt.Errorf("tools: read file: %w", err)
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + "\n[truncated]", nil
	}
	return string(data), nil
}
