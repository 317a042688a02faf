package controller

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/parley/internal/store"
)

type fakeDownloader struct {
	urls []string
	err  error
}

func (d *fakeDownloader) Download(_ context.Context, url string, w io.Writer) (int64, error) {
	d.urls = append(d.urls, url)
	if d.err != nil {
		_, _ = io.WriteString(w, "partial")
		return 7, d.err
	}
	n, err := io.WriteString(w, "jpeg")
	return int64(n), err
}

func TestSaveMedia(t *testing.T) {
	f := newFixture(t)
	dl := &fakeDownloader{}
	dir := filepath.Join(t.TempDir(), "media")
	f.ctl.downloader, f.ctl.downloadDir = dl, dir

	photo := incoming("m1", "bob", "", base)
	photo.Type = store.TypeImage
	photo.Media = &store.Media{URL: "https://cdn.example/u/beach.jpg?sig=1"}
	f.engine.IngestMessage(photo)
	f.engine.IngestMessage(incoming("m2", "bob", "just text", base))
	if err := f.ctl.OpenConversation(context.Background(), "bob"); err != nil {
		t.Fatal(err)
	}

	first, err := f.ctl.SaveMedia(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if first != filepath.Join(dir, "beach.jpg") {
		t.Errorf("path = %s", first)
	}
	second, err := f.ctl.SaveMedia(context.Background(), "m1")
	if err != nil || second != filepath.Join(dir, "beach-1.jpg") {
		t.Errorf("second save = %s, %v", second, err)
	}
	if data, _ := os.ReadFile(first); string(data) != "jpeg" {
		t.Errorf("content = %q", data)
	}

	if _, err := f.ctl.SaveMedia(context.Background(), "m2"); !errors.Is(err, ErrNoMedia) {
		t.Errorf("text message error = %v", err)
	}
	if _, err := f.ctl.SaveMedia(context.Background(), "nope"); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("unknown message error = %v", err)
	}

	dl.err = errors.New("connection reset")
	if _, err := f.ctl.SaveMedia(context.Background(), "m1"); err == nil {
		t.Fatal("expected download error")
	}
	if _, err := os.Stat(filepath.Join(dir, "beach-2.jpg")); !os.IsNotExist(err) {
		t.Error("partial download left on disk")
	}
}

func TestSaveMediaNeedsConversation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ctl.SaveMedia(context.Background(), "m1"); !errors.Is(err, ErrNoConversation) {
		t.Errorf("error = %v, want ErrNoConversation", err)
	}
}
