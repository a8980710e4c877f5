package media

import (
	"context"
	"net/url"
	"strings"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
)

// #region types

// Handle points at a media artifact downloaded to local storage.
type Handle struct {
	ID              string
	Path            string
	SourceURL       string
	DurationSeconds float64
}

// Fetcher acquires media for a content reference. Size, duration and source limits
// are enforced by the implementation.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (Handle, error)
	Release(ctx context.Context, h Handle) error
}

// #endregion types

// #region default-hosts

// DefaultAllowedHosts lists the content sources accepted when none are configured.
func DefaultAllowedHosts() []string {
	return []string{"youtube.com", "www.youtube.com", "m.youtube.com", "youtu.be"}
}

// #endregion default-hosts

// #region validate

// ValidateReference checks that raw is an absolute http(s) URL whose host is in
// allowedHosts. An empty allowlist accepts any host.
func ValidateReference(raw string, allowedHosts []string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, auditerr.New(auditerr.KindInvalidInput, "content reference is empty")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, auditerr.New(auditerr.KindInvalidInput, "malformed content reference: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, auditerr.New(auditerr.KindInvalidInput, "unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, auditerr.New(auditerr.KindInvalidInput, "content reference has no host")
	}
	if u.User != nil {
		return nil, auditerr.New(auditerr.KindInvalidInput, "credentials in content reference are not allowed")
	}
	if len(allowedHosts) == 0 {
		return u, nil
	}
	for _, allowed := range allowedHosts {
		if host == strings.ToLower(strings.TrimSpace(allowed)) {
			return u, nil
		}
	}
	return nil, auditerr.New(auditerr.KindInvalidInput, "host %q is not an allowed content source", host)
}

// #endregion validate
