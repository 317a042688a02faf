package rest

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

// Upload is the server's view of an uploaded file.
type Upload struct {
	URL          string
	ThumbnailURL string
	MimeType     string
	FileName     string
	Size         int64
}

// UploadFile uploads the file at path as multipart form data.
func (c *Client) UploadFile(ctx context.Context, path string) (Upload, error) {
	f, err := os.Open(path)
	if err != nil {
		return Upload{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return c.Upload(ctx, filepath.Base(path), f)
}

// Upload streams r to the server under name.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (Upload, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	mimeType := MimeType(name)

	go func() {
		part, err := mw.CreatePart(fileHeader(name, mimeType))
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	raw, err := c.do(ctx, http.MethodPost, "/api/media/upload", nil, pr, mw.FormDataContentType())
	_ = pr.Close()
	if err != nil {
		return Upload{}, err
	}

	res := unwrap(gjson.ParseBytes(raw), "file", "media", "upload")
	up := Upload{
		URL:          firstString(res, "url", "fileUrl", "mediaUrl"),
		ThumbnailURL: firstString(res, "thumbnailUrl", "thumbnail"),
		MimeType:     firstString(res, "mimeType", "contentType"),
		FileName:     firstString(res, "fileName", "name"),
		Size:         res.Get("size").Int(),
	}
	if up.URL == "" {
		return Upload{}, fmt.Errorf("upload %s: response without url", name)
	}
	if up.MimeType == "" {
		up.MimeType = mimeType
	}
	if up.FileName == "" {
		up.FileName = name
	}
	return up, nil
}

// mediaTypes covers extensions the system mime table often lacks.
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".heic": "image/heic",
}

// MimeType guesses a content type from a file name.
func MimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func fileHeader(name, mimeType string) textproto.MIMEHeader {
	return textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename=%q`, name)},
		"Content-Type":        {mimeType},
	}
}
