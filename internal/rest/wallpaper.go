package rest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// Wallpaper is a background preset offered by the server.
type Wallpaper struct {
	ID   string
	Name string
	URL  string
}

// Wallpapers lists the available presets.
func (c *Client) Wallpapers(ctx context.Context) ([]Wallpaper, error) {
	r, err := c.getJSON(ctx, "/api/wallpapers", nil)
	if err != nil {
		return nil, err
	}
	var out []Wallpaper
	for _, item := range unwrap(r, "wallpapers").Array() {
		w := Wallpaper{
			ID:   firstString(item, "id", "_id", "key"),
			Name: firstString(item, "name", "title"),
			URL:  firstString(item, "url", "imageUrl"),
		}
		if w.ID != "" {
			out = append(out, w)
		}
	}
	return out, nil
}

// Wallpaper returns the wallpaper id chosen for a conversation, empty if
// none is set.
func (c *Client) Wallpaper(ctx context.Context, conversationID string) (string, error) {
	r, err := c.getJSON(ctx, "/api/conversations/"+url.PathEscape(conversationID)+"/wallpaper", nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			return "", nil
		}
		return "", err
	}
	v := unwrap(r, "wallpaper")
	if v.IsObject() {
		return firstString(v, "id", "wallpaperId", "key"), nil
	}
	if id := firstString(r, "data.wallpaperId", "wallpaperId"); id != "" {
		return id, nil
	}
	return v.String(), nil
}

// SetWallpaper stores the wallpaper of a conversation. An empty id clears it.
func (c *Client) SetWallpaper(ctx context.Context, conversationID, wallpaperID string) error {
	_, err := c.sendJSON(ctx, http.MethodPut, "/api/conversations/"+url.PathEscape(conversationID)+"/wallpaper",
		map[string]string{"wallpaperId": wallpaperID})
	return err
}
