// Package upload stores message attachments on local disk.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"chat-core/domain"
	"chat-core/domain/mimetypes"
	"chat-core/errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const sniffSize = 512

// DiskStore writes each upload under {root}/{owner}/{uuid}{ext}. The returned
// reference doubles as the durable file id of the message.
type DiskStore struct {
	root     string
	maxBytes int64
	log      *slog.Logger
}

func NewDiskStore(root string, maxBytes int64, log *slog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{root: root, maxBytes: maxBytes, log: log}, nil
}

// Save sniffs the content type from the first bytes, never from the filename.
func (d *DiskStore) Save(_ context.Context, owner domain.UserID, filename string, r io.Reader) (string, error) {
	if owner == "" || strings.ContainsAny(string(owner), `/\.`) {
		return "", errors.Invalid("invalid upload owner %q", owner)
	}
	sniffBuf := make([]byte, sniffSize)
	n, err := io.ReadFull(r, sniffBuf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return "", errors.Invalid("empty upload")
	}
	sniffBuf = sniffBuf[:n]

	detected := mimetype.Detect(sniffBuf)
	if _, ok := mimetypes.Allowed(detected.String()); !ok {
		return "", fmt.Errorf("%w: %s (%s)", errors.ErrUnsupportedFile, detected.String(), filename)
	}

	ref := path.Join(string(owner), uuid.NewString()+detected.Extension())
	target := filepath.Join(d.root, filepath.FromSlash(ref))
	if err = os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("create owner dir: %w", err)
	}
	file, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	// One byte over the limit is enough to reject
	content := io.MultiReader(bytes.NewReader(sniffBuf), r)
	written, err := io.Copy(file, io.LimitReader(content, d.maxBytes+1))
	closeErr := file.Close()
	switch {
	case err != nil:
		d.discard(target)
		return "", fmt.Errorf("write upload: %w", err)
	case closeErr != nil:
		d.discard(target)
		return "", fmt.Errorf("close upload: %w", closeErr)
	case written > d.maxBytes:
		d.discard(target)
		return "", errors.Invalid("upload larger than %d bytes", d.maxBytes)
	}
	d.log.Debug("Upload stored", "owner", owner, "ref", ref, "mime", detected.String(), "size", written)
	return ref, nil
}

// Resolve checks that ref names a stored upload and returns its file id.
func (d *DiskStore) Resolve(_ context.Context, ref string) (string, error) {
	clean := path.Clean("/" + ref)[1:]
	if clean == "" || clean != ref {
		return "", errors.Invalid("malformed file reference %q", ref)
	}
	info, err := os.Stat(filepath.Join(d.root, filepath.FromSlash(clean)))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("file %s: %w", ref, errors.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", errors.Invalid("file reference %q is a directory", ref)
	}
	return clean, nil
}

// Open returns the stored file for download.
func (d *DiskStore) Open(ctx context.Context, ref string) (*os.File, error) {
	clean, err := d.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(d.root, filepath.FromSlash(clean)))
}

func (d *DiskStore) discard(target string) {
	if err := os.Remove(target); err != nil {
		d.log.Warn("Failed to remove partial upload", "path", target, "error", err)
	}
}
