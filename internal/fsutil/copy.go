package fsutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vk/modforge/internal/ctxlog"
)

// CopyTree copies the files under src that m selects into dst, keeping
// their relative layout and permissions. It returns the copied relative
// paths.
func CopyTree(ctx context.Context, src, dst string, m Matcher) ([]string, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := Walk(src, m)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", src, err)
	}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		from := filepath.Join(src, filepath.FromSlash(rel))
		to := filepath.Join(dst, filepath.FromSlash(rel))
		if err := CopyFile(from, to); err != nil {
			return nil, err
		}
	}
	logger.Debug("Copied tree.", "from", src, "to", dst, "files", len(files))
	return files, nil
}

// CopyFile copies one file, creating parent directories as needed.
func CopyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return fmt.Errorf("opening %s: %w", from, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", from, err)
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", to, err)
	}
	out, err := os.OpenFile(to, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", to, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", from, err)
	}
	return out.Close()
}
