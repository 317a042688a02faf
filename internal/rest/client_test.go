package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "tok", "me", time.Second, nil)
}

func TestContactsEnvelopes(t *testing.T) {
	bodies := []string{
		`{"data":{"contacts":[{"id":"a","name":"Ana","isOnline":true}]}}`,
		`{"data":[{"id":"a","name":"Ana","isOnline":true}]}`,
		`{"following":[{"user":{"_id":"a","displayName":"Ana","online":true}}]}`,
		`[{"id":"a","username":"Ana","isOnline":true}]`,
	}
	for _, body := range bodies {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/contacts" {
				t.Errorf("path = %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("auth = %q", r.Header.Get("Authorization"))
			}
			_, _ = io.WriteString(w, body)
		})
		got, err := c.Contacts(context.Background())
		if err != nil {
			t.Fatalf("Contacts(%s) error = %v", body, err)
		}
		if len(got) != 1 || got[0].ID != "a" || got[0].Name != "Ana" || !got[0].IsOnline || !got[0].IsFollowing {
			t.Errorf("Contacts(%s) = %+v", body, got)
		}
	}
}

func TestContactsLastMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"a","lastMessage":{"text":"yo","createdAt":"2026-03-01T10:00:00Z"},"unreadCount":2},{"name":"no id"}]`)
	})
	got, err := c.Contacts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("contacts = %+v", got)
	}
	if got[0].LastMessage != "yo" || got[0].UnreadCount != 2 || got[0].LastMessageTime.IsZero() {
		t.Errorf("contact = %+v", got[0])
	}
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"token expired"}`)
	})
	_, err := c.Contacts(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized || !strings.Contains(apiErr.Error(), "token expired") {
		t.Errorf("apiErr = %v", apiErr)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping() = nil on 401")
	}
}

func TestHistoryPaging(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/messages/bob" {
			t.Errorf("path = %s", r.URL.Path)
		}
		switch r.URL.Query().Get("before") {
		case "":
			_, _ = io.WriteString(w, `{"data":{"messages":[
				{"id":"m2","senderId":"bob","text":"2","createdAt":"2026-03-01T10:01:00Z"},
				{"id":"m3","senderId":"me","recipientId":"bob","text":"3","createdAt":"2026-03-01T10:02:00Z"}
			],"hasMore":true}}`)
		case "m2":
			_, _ = io.WriteString(w, `{"data":{"messages":[{"id":"m1","senderId":"bob","text":"1"}],"hasMore":false}}`)
		default:
			t.Errorf("before = %s", r.URL.Query().Get("before"))
		}
	})

	page, err := c.History(context.Background(), "bob", "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 2 || !page.HasMore || page.NextCursor != "m2" {
		t.Fatalf("page = %+v", page)
	}
	if page.Messages[1].ConversationID != "bob_me" {
		t.Errorf("conversation = %s", page.Messages[1].ConversationID)
	}

	page, err = c.History(context.Background(), "bob", page.NextCursor, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 1 || page.HasMore || page.NextCursor != "" {
		t.Errorf("second page = %+v", page)
	}
}

func TestHistoryExplicitCursor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "50" {
			t.Errorf("limit = %s", r.URL.Query().Get("limit"))
		}
		_, _ = io.WriteString(w, `{"messages":[{"id":"m1","senderId":"bob"}],"nextCursor":"cur-9","hasMore":true}`)
	})
	page, err := c.History(context.Background(), "bob", "", 50)
	if err != nil {
		t.Fatal(err)
	}
	if page.NextCursor != "cur-9" || !page.HasMore {
		t.Errorf("page = %+v", page)
	}
}

func TestWallpaper(t *testing.T) {
	var (
		mu     sync.Mutex
		stored string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/wallpapers":
			_, _ = io.WriteString(w, `{"data":[{"id":"w1","name":"Dunes"},{"name":"no id"}]}`)
		case r.URL.Path == "/api/conversations/a_b/wallpaper" && r.Method == http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			mu.Lock()
			stored = string(b)
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/api/conversations/a_b/wallpaper":
			_, _ = io.WriteString(w, `{"data":{"wallpaperId":"w1"}}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	list, err := c.Wallpapers(ctx)
	if err != nil || len(list) != 1 || list[0].Name != "Dunes" {
		t.Fatalf("Wallpapers() = %+v, %v", list, err)
	}
	if err := c.SetWallpaper(ctx, "a_b", "w1"); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	if stored != `{"wallpaperId":"w1"}` {
		t.Errorf("stored body = %s", stored)
	}
	mu.Unlock()
	id, err := c.Wallpaper(ctx, "a_b")
	if err != nil || id != "w1" {
		t.Errorf("Wallpaper() = %q, %v", id, err)
	}
	id, err = c.Wallpaper(ctx, "x_y")
	if err != nil || id != "" {
		t.Errorf("Wallpaper(unset) = %q, %v", id, err)
	}
}

func TestUploadFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/media/upload" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if string(b) != "png-bytes" || hdr.Filename != "cat.png" {
			t.Errorf("uploaded %q as %q", b, hdr.Filename)
		}
		_, _ = io.WriteString(w, `{"data":{"url":"https://cdn/cat.png","size":9}}`)
	})

	path := filepath.Join(t.TempDir(), "cat.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	up, err := c.UploadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if up.URL != "https://cdn/cat.png" || up.MimeType != "image/png" || up.FileName != "cat.png" || up.Size != 9 {
		t.Errorf("upload = %+v", up)
	}

	if _, err := c.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("UploadFile(missing) succeeded")
	}
}

func TestEditDeleteFallbacks(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if err := c.EditMessage(context.Background(), "s1", "new"); err != nil {
		t.Errorf("EditMessage() error = %v", err)
	}
	if err := c.DeleteMessage(context.Background(), "s1"); err == nil {
		t.Error("DeleteMessage() = nil on 403")
	}
	want := []string{"PATCH /api/messages/s1", "DELETE /api/messages/s1"}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v", calls)
	}
}

func TestSearchUsers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "an a" {
			t.Errorf("q = %q", r.URL.Query().Get("q"))
		}
		_, _ = io.WriteString(w, `{"data":{"users":[{"id":"a","name":"Ana","isFollowing":true},{"id":"b","name":"Anabel"}]}}`)
	})
	got, err := c.SearchUsers(context.Background(), "an a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got[0].IsFollowing || got[1].IsFollowing {
		t.Errorf("users = %+v", got)
	}
}

func TestDownload(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "bytes of "+r.URL.Path)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "tok", "me", time.Second, nil)

	var b strings.Builder
	n, err := c.Download(context.Background(), "/uploads/a.jpg", &b)
	if err != nil || b.String() != "bytes of /uploads/a.jpg" || n != int64(b.Len()) {
		t.Fatalf("Download() = %d, %v, %q", n, err, b.String())
	}

	b.Reset()
	if _, err := c.Download(context.Background(), srv.URL+"/cdn/b.png", &b); err != nil {
		t.Fatal(err)
	}
	if auth[0] != "Bearer tok" || auth[1] != "Bearer tok" {
		t.Errorf("auth headers = %q", auth)
	}

	var apiErr *APIError
	if _, err := c.Download(context.Background(), "missing", io.Discard); !errors.As(err, &apiErr) || !apiErr.NotFound() {
		t.Errorf("Download(missing) error = %v", err)
	}
}
