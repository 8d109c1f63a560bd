package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"nyaymitra/client/internal/fault"
)

// percentEncodeForDataURL encodes a string for use in a data URL
// Unlike url.QueryEscape, this properly encodes spaces as %20 for data URLs
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				fmt.Fprintf(&result, "%%%02X", b)
			}
		}
	}
	return result.String()
}

// ChromeRenderer captures HTML with headless Chromium.
type ChromeRenderer struct {
	execPath string
	// Width is the viewport width in CSS pixels.
	Width int64
	// Scale is the device scale factor; 2 keeps text crisp when printed.
	Scale float64
	// Background fills transparent areas of the capture.
	Background cdp.RGBA
}

var chromeBinaries = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

// NewChromeRenderer locates a Chromium binary. Without one, capture is an
// unsupported capability.
func NewChromeRenderer() (*ChromeRenderer, error) {
	for _, name := range chromeBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return &ChromeRenderer{
				execPath:   path,
				Width:      1280,
				Scale:      2,
				Background: cdp.RGBA{R: 18, G: 18, B: 18, A: 1},
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: chromium not installed", fault.ErrUnsupportedCapability)
}

// Capture renders html and returns a full-page PNG screenshot.
func (r *ChromeRenderer) Capture(ctx context.Context, html, exclude string) ([]byte, error) {
	// Chrome options for headless mode in container
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(r.execPath),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)

	var (
		removed int
		png     []byte
	)
	err := chromedp.Run(taskCtx,
		chromedp.EmulateViewport(r.Width, 900, chromedp.EmulateScale(r.Scale)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			bg := r.Background
			return emulation.SetDefaultBackgroundColorOverride().WithColor(&bg).Do(ctx)
		}),
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(removeElementsScript(exclude), &removed),
		chromedp.FullScreenshot(&png, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome capture failed: %w", err)
	}
	return png, nil
}

// removeElementsScript deletes every element matching selector and
// evaluates to the number removed.
func removeElementsScript(selector string) string {
	if selector == "" {
		return "0"
	}
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => { const els = document.querySelectorAll(%s); els.forEach(e => e.remove()); return els.length; })()`, quoted)
}

// sanitizeFilename creates a safe filename, keeping the extension dot.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		case r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}

	result := strings.TrimLeft(b.String(), ".")
	if len(result) > 80 {
		result = result[:80]
	}
	if result == "" {
		result = "report"
	}
	return result
}
