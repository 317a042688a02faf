package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var ErrNoMedia = errors.New("controller: message has no downloadable media")

// Downloader fetches remote media.
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// SaveMedia downloads the media of message id into the profile's media
// directory and returns the file path. Existing files are never overwritten.
func (c *Controller) SaveMedia(ctx context.Context, id string) (string, error) {
	_, conv, err := c.conversation()
	if err != nil {
		return "", err
	}
	m, ok := c.store.Get(conv, id)
	if !ok {
		return "", ErrUnknownMessage
	}
	if m.Media == nil || m.Media.URL == "" || m.Optimistic() || c.downloader == nil {
		return "", ErrNoMedia
	}

	name := m.Media.FileName
	if name == "" {
		name = path.Base(strings.SplitN(m.Media.URL, "?", 2)[0])
	}
	name = filepath.Base(name)
	if name == "." || name == "/" {
		name = m.ID
	}
	if err := os.MkdirAll(c.downloadDir, 0700); err != nil {
		return "", err
	}
	f, dst, err := createUnique(c.downloadDir, name)
	if err != nil {
		return "", err
	}
	n, err := c.downloader.Download(ctx, m.Media.URL, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("save media: %w", err)
	}
	c.logger.Info("media saved", zap.String("msg_id", id), zap.String("path", dst), zap.Int64("bytes", n))
	return dst, nil
}

// createUnique creates name in dir, or name-1, name-2... when taken.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		p := filepath.Join(dir, candidate)
		f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			return f, p, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no free file name for %s in %s", name, dir)
}
