// Package upload stores profile images in a content directory.
//
// Stored names have the form
//
//	<unix-millis>_<xid>_<sanitised original name>
//
// and are the only thing persisted with the user record. The original
// filename is untrusted input: it is reduced to a base name over a small
// charset before it gets anywhere near a path.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	// Decoders registered for DetectFormat.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/rs/xid"

	"github.com/sakif/account-portal/internal/apperror"
)

// fallbackName replaces an original name that sanitises to nothing.
const fallbackName = "image"

// ErrUnsupportedFormat is returned by DetectFormat for bytes that are not
// a recognised image.
var ErrUnsupportedFormat = errors.New("upload: unsupported image format")

// Intake writes uploaded images into the content directory.
type Intake struct {
	dir    string
	cfg    Config
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// New creates an Intake and makes sure the content directory exists.
func New(cfg Config, logger *slog.Logger) (*Intake, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = DefaultConfig().MaxNameLength
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("upload: resolving %q: %w", cfg.Dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: creating content directory: %w", err)
	}

	return &Intake{
		dir:    dir,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return xid.New().String() },
	}, nil
}

// Dir is the absolute path of the content directory.
func (i *Intake) Dir() string {
	return i.dir
}

// Store writes data under a new collision-resistant name and returns that
// name. An existing file is never overwritten. Any failure is reported as
// an apperror.ErrIntake.
func (i *Intake) Store(ctx context.Context, originalName string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperror.IntakeFailed(err)
	}

	ref := strconv.FormatInt(i.now().UnixMilli(), 10) + "_" + i.newID() + "_" +
		SanitizeName(originalName, i.cfg.MaxNameLength)

	path, err := i.path(ref)
	if err != nil {
		return "", apperror.IntakeFailed(err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", apperror.IntakeFailed(fmt.Errorf("upload: creating %q: %w", ref, err))
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", apperror.IntakeFailed(fmt.Errorf("upload: writing %q: %w", ref, err))
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", apperror.IntakeFailed(fmt.Errorf("upload: closing %q: %w", ref, err))
	}

	i.logger.Debug("image stored",
		slog.String("ref", ref),
		slog.Int("bytes", len(data)),
	)

	return ref, nil
}

// Remove deletes a stored image. Removing a name that does not exist is
// not an error.
func (i *Intake) Remove(ctx context.Context, ref string) error {
	path, err := i.path(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("upload: removing %q: %w", ref, err)
	}

	i.logger.Debug("image removed", slog.String("ref", ref))
	return nil
}

// path resolves ref inside the content directory, refusing anything that
// is not a plain file name.
func (i *Intake) path(ref string) (string, error) {
	if ref == "" || ref == "." || ref == ".." || strings.ContainsAny(ref, `/\`) {
		return "", fmt.Errorf("upload: invalid stored name %q", ref)
	}

	path := filepath.Join(i.dir, ref)
	if filepath.Dir(path) != i.dir {
		return "", fmt.Errorf("upload: stored name %q escapes content directory", ref)
	}
	return path, nil
}

// SanitizeName reduces an untrusted upload filename to a safe base name:
// directories are dropped, traversal sequences removed, and every byte
// outside [A-Za-z0-9._-] becomes '_'. The result is at most maxLen bytes
// and never empty.
func SanitizeName(name string, maxLen int) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name = b.String()

	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", ".")
	}
	name = strings.TrimLeft(name, ".")

	if maxLen > 0 && len(name) > maxLen {
		ext := filepath.Ext(name)
		if len(ext) >= maxLen {
			ext = ""
		}
		name = name[:maxLen-len(ext)] + ext
	}

	if strings.Trim(name, "._-") == "" {
		return fallbackName
	}
	return name
}

// DetectFormat reports the image format of data ("png", "jpeg", "gif",
// "bmp", "tiff" or "webp") by decoding only its header.
func DetectFormat(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrUnsupportedFormat
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return format, nil
}
