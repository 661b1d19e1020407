package bridge

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/discode-ai/discode/internal/messaging"
)

const (
	maxAttachmentSize = 25 << 20 // 25 MiB
	maxCachedFiles    = 100
	filesSubdir       = ".discode/files"
	downloadTimeout   = 60 * time.Second
)

// supportedExtensions whitelists text-family attachments whose content
// type is missing or generic.
var supportedExtensions = map[string]bool{
	".txt": true, ".md": true, ".log": true, ".json": true, ".yaml": true,
	".yml": true, ".toml": true, ".csv": true, ".xml": true, ".html": true,
	".css": true, ".go": true, ".py": true, ".js": true, ".ts": true,
	".tsx": true, ".jsx": true, ".sh": true, ".sql": true, ".diff": true,
	".patch": true, ".pdf": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".webp": true, ".svg": true,
}

// attachmentSupported accepts image, PDF and text-family files, by content
// type first and extension as fallback.
func attachmentSupported(att messaging.Attachment) bool {
	ct := strings.ToLower(att.ContentType)
	switch {
	case strings.HasPrefix(ct, "image/"), strings.HasPrefix(ct, "text/"),
		ct == "application/pdf", ct == "application/json":
		return true
	}
	return supportedExtensions[strings.ToLower(filepath.Ext(att.Name))]
}

// sanitizeFilename keeps a conservative character set so attachment names
// cannot escape the cache directory or confuse shells.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "file"
	}
	return sb.String()
}

// downloadAttachments fetches supported attachments into the project's
// file cache and returns one "[file:/abs/path]" marker per saved file.
// Every failure is logged and skipped; the message still goes through.
func (r *Router) downloadAttachments(projectPath string, atts []messaging.Attachment) []string {
	dir := filepath.Join(projectPath, filesSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("create file cache dir failed", "dir", dir, "error", err)
		return nil
	}

	var markers []string
	for _, att := range atts {
		if !attachmentSupported(att) {
			slog.Debug("skipping unsupported attachment", "name", att.Name, "content_type", att.ContentType)
			continue
		}
		if att.Size > maxAttachmentSize {
			slog.Warn("skipping oversized attachment", "name", att.Name, "size", att.Size)
			continue
		}
		path, err := r.downloadOne(dir, att)
		if err != nil {
			slog.Warn("attachment download failed", "name", att.Name, "error", err)
			continue
		}
		markers = append(markers, "[file:"+path+"]")
	}

	if len(markers) > 0 {
		PruneFileCache(dir, maxCachedFiles)
	}
	return markers
}

func (r *Router) downloadOne(dir string, att messaging.Attachment) (string, error) {
	req, err := http.NewRequest(http.MethodGet, att.URL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if auth, ok := r.client.(messaging.AttachmentAuthorizer); ok {
		if header := auth.AttachmentAuthHeader(att.URL); header != "" {
			req.Header.Set("Authorization", header)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	name := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), sanitizeFilename(att.Name))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(resp.Body, maxAttachmentSize+1))
	closeErr := f.Close()
	if err == nil && n > maxAttachmentSize {
		err = fmt.Errorf("exceeds %d bytes", maxAttachmentSize)
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// PruneFileCache keeps the newest keep files in dir, deleting the rest.
// The maintenance sweeper also calls this for idle projects.
func PruneFileCache(dir string, keep int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type fileAge struct {
		name string
		mod  time.Time
	}
	var files []fileAge
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileAge{name: e.Name(), mod: info.ModTime()})
	}
	if len(files) <= keep {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	for _, f := range files[keep:] {
		if err := os.Remove(filepath.Join(dir, f.name)); err != nil {
			slog.Warn("prune cached file failed", "file", f.name, "error", err)
		}
	}
}
