// browser.go provides the Rod-backed Driver used by the conference sessions.
// Each BrowserClient owns one Chrome process configured for fake media.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// BrowserConfig configures Chrome launch options.
type BrowserConfig struct {
	Headless bool          // Run in headless mode (default: true)
	Timeout  time.Duration // Default operation timeout (default: 30s)
	Bin      string        // Chrome binary; empty lets Rod find or download one
}

// DefaultBrowserConfig returns sensible defaults for E2E testing.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless: true,
		Timeout:  30 * time.Second,
	}
}

// BrowserClient drives one Chrome instance through Rod.
// It implements Driver and MediaDebugger.
type BrowserClient struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	timeout  time.Duration

	mu     sync.Mutex
	page   *rod.Page
	closed bool
}

var (
	_ Driver        = (*BrowserClient)(nil)
	_ MediaDebugger = (*BrowserClient)(nil)
)

// NewBrowserClient launches Chrome with WebRTC flags:
//   - Fake camera and microphone streams
//   - Auto-granted media permissions
//   - No sandbox (for container compatibility)
//   - Autoplay without user gesture
func NewBrowserClient(cfg BrowserConfig) (*BrowserClient, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("use-fake-device-for-media-stream").
		Set("use-fake-ui-for-media-stream").
		Set("autoplay-policy", "no-user-gesture-required")
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultBrowserConfig().Timeout
	}

	return &BrowserClient{
		launcher: l,
		browser:  browser,
		timeout:  timeout,
	}, nil
}

// Launch adapts NewBrowserClient to the fixture's launcher signature.
func Launch(cfg BrowserConfig) func(ctx context.Context, name string) (Driver, error) {
	return func(ctx context.Context, name string) (Driver, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := NewBrowserClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return c, nil
	}
}

// Navigate opens url in a fresh tab and waits for the load event. The
// previous tab is closed first so it leaves its room.
func (c *BrowserClient) Navigate(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}

	if c.page != nil {
		if err := c.page.Close(); err != nil {
			return fmt.Errorf("failed to close previous page: %w", err)
		}
		c.page = nil
	}

	page, err := c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	c.page = page

	p := page.Context(ctx).Timeout(c.timeout)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed to load %s: %w", url, err)
	}
	return nil
}

// Page returns the current page, or nil if none open.
func (c *BrowserClient) Page() *rod.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

func (c *BrowserClient) currentPage(ctx context.Context) (*rod.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrSessionClosed
	}
	if c.page == nil {
		return nil, ErrNoPage
	}
	return c.page.Context(ctx), nil
}

// HasXPath checks the DOM once without waiting.
func (c *BrowserClient) HasXPath(ctx context.Context, xpath string) (bool, error) {
	page, err := c.currentPage(ctx)
	if err != nil {
		return false, err
	}
	has, _, err := page.HasX(xpath)
	if err != nil {
		return false, fmt.Errorf("xpath %s: %w", xpath, err)
	}
	return has, nil
}

// ClickByID waits up to the client timeout for the element and clicks it.
func (c *BrowserClient) ClickByID(ctx context.Context, id string) error {
	page, err := c.currentPage(ctx)
	if err != nil {
		return err
	}
	p := page.Timeout(c.timeout)
	defer p.CancelTimeout()

	el, err := p.Element("#" + id)
	if err != nil {
		return fmt.Errorf("element #%s: %w", id, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click #%s: %w", id, err)
	}
	return nil
}

// Eval executes a JavaScript function expression and returns its value.
func (c *BrowserClient) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	page, err := c.currentPage(ctx)
	if err != nil {
		return gson.New(nil), err
	}
	result, err := page.Eval(js, args...)
	if err != nil {
		return gson.New(nil), fmt.Errorf("eval failed: %w", err)
	}
	return result.Value, nil
}

// WaitStable waits for the page to be stable (no DOM changes).
func (c *BrowserClient) WaitStable(ctx context.Context) error {
	page, err := c.currentPage(ctx)
	if err != nil {
		return err
	}
	return page.WaitStable(c.timeout)
}

// LocalJID returns APP.xmpp.myJid().
func (c *BrowserClient) LocalJID(ctx context.Context) (string, error) {
	v, err := c.Eval(ctx, LocalJIDScript)
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", errors.New("local jid not available")
	}
	return v.Str(), nil
}

// RemoteVideo inspects APP.RTC.remoteStreams[jid] in one guarded evaluation.
func (c *BrowserClient) RemoteVideo(ctx context.Context, jid string) (RemoteVideoState, error) {
	var state RemoteVideoState
	v, err := c.Eval(ctx, RemoteVideoScript, jid)
	if err != nil {
		return state, err
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return state, fmt.Errorf("encode remote video state: %w", err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return state, fmt.Errorf("decode remote video state: %w", err)
	}
	return state, nil
}

// Close cleans up browser resources.
// Always call this (via defer) to prevent orphaned Chrome processes.
func (c *BrowserClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.page = nil

	err := c.browser.Close()
	c.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("failed to close Chrome: %w", err)
	}
	return nil
}
