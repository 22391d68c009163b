package discovery

import (
	"context"
	"time"
)

// Browser finds routers on the local network.
type Browser interface {
	// BrowseRouters streams routers as they are found, once per instance.
	// The channel is closed when ctx ends.
	BrowseRouters(ctx context.Context) (<-chan *RouterService, error)

	// FindRouter returns the first router found, or ErrNotFound when the
	// browse timeout passes first.
	FindRouter(ctx context.Context) (*RouterService, error)
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindRouter.
	// Default: 5 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// FindRouter browses the local network for up to timeout and returns the
// host:port of the first router found.
func FindRouter(ctx context.Context, timeout time.Duration) (string, error) {
	cfg := DefaultBrowserConfig()
	if timeout > 0 {
		cfg.BrowseTimeout = timeout
	}
	svc, err := NewMDNSBrowser(cfg).FindRouter(ctx)
	if err != nil {
		return "", err
	}
	return svc.Address(), nil
}
