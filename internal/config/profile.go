package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Profile is the per-identity settings file,
// ~/.parley/profiles/<name>/profile.toml.
type Profile struct {
	UserID      string `toml:"user_id"`
	DisplayName string `toml:"display_name"`
	AccessToken string `toml:"access_token"`

	Server ServerConfig `toml:"server"`
	Chat   ChatConfig   `toml:"chat"`
	Call   CallConfig   `toml:"call"`
	Log    LogConfig    `toml:"log"`
}

type ServerConfig struct {
	APIURL         string   `toml:"api_url"`
	MessagingURL   string   `toml:"messaging_url"`
	SignalURL      string   `toml:"signal_url"`
	RequestTimeout Duration `toml:"request_timeout"`
}

type ChatConfig struct {
	HistoryPageSize int      `toml:"history_page_size"`
	TypingInterval  Duration `toml:"typing_interval"`
}

type CallConfig struct {
	RingTimeout Duration `toml:"ring_timeout"`
	ICEServers  []string `toml:"ice_servers"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Duration wraps time.Duration so it reads and writes as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Defaults returns a profile with every tunable set.
func Defaults() Profile {
	return Profile{
		Server: ServerConfig{
			APIURL:         "http://localhost:8080",
			MessagingURL:   "ws://localhost:8080/ws/chat",
			SignalURL:      "ws://localhost:8080/ws/signal",
			RequestTimeout: Duration{15 * time.Second},
		},
		Chat: ChatConfig{
			HistoryPageSize: 50,
			TypingInterval:  Duration{3 * time.Second},
		},
		Call: CallConfig{
			RingTimeout: Duration{45 * time.Second},
			ICEServers:  []string{"stun:stun.l.google.com:19302"},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Environment overrides applied by LoadProfile.
const (
	EnvAccessToken = "PARLEY_ACCESS_TOKEN"
	EnvAPIURL      = "PARLEY_API_URL"
)

// LoadProfile reads a profile file on top of Defaults. A missing file is not
// an error; the defaults plus environment overrides are returned.
func LoadProfile(path string) (*Profile, error) {
	p := Defaults()
	if _, err := toml.DecodeFile(path, &p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if v := os.Getenv(EnvAccessToken); v != "" {
		p.AccessToken = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		p.Server.APIURL = v
	}
	return &p, nil
}

// SaveProfile writes p to path with 0600 permissions.
func SaveProfile(path string, p *Profile) error {
	return writeTOML(path, p)
}

// Validate reports the first setting that makes the profile unusable.
func (p *Profile) Validate() error {
	if p.UserID == "" {
		return errors.New("user_id is required")
	}
	if p.AccessToken == "" {
		return fmt.Errorf("access_token is required (or set %s)", EnvAccessToken)
	}
	for name, raw := range map[string]string{
		"server.api_url":       p.Server.APIURL,
		"server.messaging_url": p.Server.MessagingURL,
		"server.signal_url":    p.Server.SignalURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s: invalid url %q", name, raw)
		}
	}
	if p.Chat.HistoryPageSize <= 0 {
		return fmt.Errorf("chat.history_page_size must be positive, got %d", p.Chat.HistoryPageSize)
	}
	return nil
}
