package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

var frameExts = []string{".png", ".jpg", ".jpeg", ".webp", ".gif"}

// dirFrames serves the images of a directory in name order, looping.
type dirFrames struct {
	mu    sync.Mutex
	files []string
	next  int
}

func newDirFrames(dir string) (*dirFrames, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("frames: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(frameExts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("frames: no images in %s", dir)
	}
	slices.Sort(files)
	return &dirFrames{files: files}, nil
}

// Capture returns the next image as a data-URL.
func (f *dirFrames) Capture(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	path := f.files[f.next]
	f.next = (f.next + 1) % len(f.files)
	f.mu.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("frame %s: %w", path, err)
	}
	typ := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if typ == "" {
		typ = "application/octet-stream"
	}
	return "data:" + typ + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
