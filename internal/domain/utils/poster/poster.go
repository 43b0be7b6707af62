package poster

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Save copies the poster at src into dir as poster_<eventID>_<timestamp><ext>
// and returns the new path. dir is created when missing.
func Save(dir, src, eventID string, now time.Time) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open poster: %w", err)
	}
	defer in.Close()

	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create posters dir: %w", err)
	}

	name := fmt.Sprintf("poster_%s_%s%s", eventID, now.Format("20060102150405"), filepath.Ext(src))
	dst := filepath.Join(dir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create poster: %w", err)
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("copy poster: %w", err)
	}
	if err = out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("copy poster: %w", err)
	}
	return dst, nil
}

// Stored reports whether path already lives in dir.
func Stored(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && filepath.Dir(rel) == "." && rel != "."
}
