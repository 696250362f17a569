// Package transfer moves files between the host filesystem and chat
// attachments. Both directions buffer or stream whole files, so both are
// capped in size.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"adminbot/internal/models"
)

// MaxFileBytes is the default cap for downloads and uploads (20 MiB).
const MaxFileBytes = 20 << 20

var (
	ErrNotFound    = errors.New("file not found")
	ErrIsDirectory = errors.New("path is a directory")
	ErrTooLarge    = errors.New("file too large")
	ErrCreateDir   = errors.New("create directory")
	ErrInvalidName = errors.New("invalid file name")
)

// Fetcher opens the content of an attachment held by the transport.
type Fetcher interface {
	Open(ctx context.Context, att models.Attachment) (io.ReadCloser, error)
}

type Options struct {
	MaxDownloadBytes int64
	MaxUploadBytes   int64
	Logger           *zap.Logger
}

type Manager struct {
	fetcher     Fetcher
	maxDownload int64
	maxUpload   int64
	logger      *zap.Logger
}

func New(fetcher Fetcher, opts Options) *Manager {
	if opts.MaxDownloadBytes <= 0 {
		opts.MaxDownloadBytes = MaxFileBytes
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = MaxFileBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		fetcher:     fetcher,
		maxDownload: opts.MaxDownloadBytes,
		maxUpload:   opts.MaxUploadBytes,
		logger:      opts.Logger,
	}
}

// MaxDownloadBytes reports the download cap.
func (m *Manager) MaxDownloadBytes() int64 {
	return m.maxDownload
}

func (m *Manager) MaxUploadBytes() int64 {
	return m.maxUpload
}

// StoredFile describes an uploaded file after it was written.
type StoredFile struct {
	Name string
	Path string
	Size int64
}

// Upload writes the attachment to dir/<base name of att.FileName>, creating
// dir and its parents as needed. The file appears atomically.
func (m *Manager) Upload(ctx context.Context, att models.Attachment, dir string) (StoredFile, error) {
	name := SafeName(att.FileName)
	if name == "" {
		return StoredFile{}, fmt.Errorf("%w: %q", ErrInvalidName, att.FileName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("%w %s: %v", ErrCreateDir, dir, err)
	}
	if att.Size > m.maxUpload {
		return StoredFile{}, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge, HumanSize(att.Size), HumanSize(m.maxUpload))
	}

	src, err := m.fetcher.Open(ctx, att)
	if err != nil {
		return StoredFile{}, fmt.Errorf("fetch attachment: %w", err)
	}
	defer src.Close()

	path := filepath.Join(dir, name)
	size, err := writeAtomic(path, io.LimitReader(src, m.maxUpload+1), m.maxUpload)
	if err != nil {
		return StoredFile{}, err
	}
	m.logger.Info("file uploaded", zap.String("path", path), zap.Int64("size", size))
	return StoredFile{Name: name, Path: path, Size: size}, nil
}

func writeAtomic(path string, r io.Reader, limit int64) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".adminbot-upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if n > limit {
		_ = tmp.Close()
		return 0, fmt.Errorf("%w: more than %s", ErrTooLarge, HumanSize(limit))
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}

// File is a host file loaded for sending.
type File struct {
	Name string
	Path string
	Data []byte
}

// Download loads the file at path. The size cap is checked from file
// metadata before anything is read.
func (m *Manager) Download(path string) (File, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return File{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return File{}, err
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}
	if info.Size() > m.maxDownload {
		return File{}, fmt.Errorf("%w: %s is %s", ErrTooLarge, path, HumanSize(info.Size()))
	}

	f, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, m.maxDownload+1))
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > m.maxDownload {
		return File{}, fmt.Errorf("%w: %s grew past %s", ErrTooLarge, path, HumanSize(m.maxDownload))
	}
	m.logger.Info("file read for download", zap.String("path", path), zap.Int("size", len(data)))
	return File{Name: filepath.Base(path), Path: path, Data: data}, nil
}

// SafeName reduces a client-supplied file name to a bare name that cannot
// leave the target directory. It returns "" when nothing usable remains.
func SafeName(name string) string {
	base := filepath.Base(filepath.Clean("/" + name))
	switch base {
	case "/", ".", "..":
		return ""
	}
	return base
}

// HumanSize formats a byte count for messages, e.g. "1.5 MiB".
func HumanSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
