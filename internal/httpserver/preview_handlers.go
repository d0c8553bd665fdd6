package httpserver

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
)

const (
	maxPreviewHTMLBytes = 2 * 1024 * 1024
	previewTimeoutMs    = 30000
	previewUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

func isBlockedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		if ip4[0] == 169 && ip4[1] == 254 {
			return true
		}
	}
	return false
}

// validatePreviewURL rejects anything that could reach internal
// infrastructure: non-http schemes, local hostnames, and hosts resolving to
// private or otherwise blocked addresses.
func validatePreviewURL(targetURL string) error {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return fmt.Errorf("invalid url")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("invalid url scheme")
	}
	hostname := strings.ToLower(parsedURL.Hostname())
	if hostname == "" || hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") || strings.HasSuffix(hostname, ".local") {
		return fmt.Errorf("target host is not allowed")
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("failed to resolve host")
	}
	if len(ips) == 0 {
		return fmt.Errorf("host has no addresses")
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return fmt.Errorf("target host is not allowed")
		}
	}
	return nil
}

// previewRenderer owns one headless browser shared by all preview requests.
// Booting the playwright driver and Chromium per request costs seconds; the
// instance is started on first use and kept for the life of the server.
// Each request still gets its own isolated browser context.
type previewRenderer struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

func newPreviewRenderer() *previewRenderer {
	return &previewRenderer{}
}

// ensureBrowser boots the driver and browser on first use and relaunches the
// browser if it has died since.
func (p *previewRenderer) ensureBrowser() (playwright.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browser != nil && p.browser.IsConnected() {
		return p.browser, nil
	}
	if p.pw == nil {
		pw, err := playwright.Run()
		if err != nil {
			return nil, fmt.Errorf("start playwright: %w", err)
		}
		p.pw = pw
	}
	browser, err := p.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	p.browser = browser
	return browser, nil
}

// render loads the page in a throwaway browser context and returns its HTML.
func (p *previewRenderer) render(targetURL string) (string, error) {
	browser, err := p.ensureBrowser()
	if err != nil {
		return "", err
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(previewUserAgent),
	})
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}

	if _, err = page.Goto(targetURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(previewTimeoutMs),
	}); err != nil {
		return "", fmt.Errorf("goto %s: %w", targetURL, err)
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return content, nil
}

// @Summary      Link preview
// @Description  Render a shared link in a headless browser and return capped HTML
// @Tags         preview
// @Security     BearerAuth
// @Produce      html
// @Param        url  query  string  true  "Target URL"
// @Success      200
// @Failure      400  {string}  string
// @Router       /preview [get]
func handleLinkPreview(previews *previewRenderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targetURL := r.URL.Query().Get("url")
		if targetURL == "" {
			http.Error(w, "missing url parameter", http.StatusBadRequest)
			return
		}

		if err := validatePreviewURL(targetURL); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		content, err := previews.render(targetURL)
		if err != nil {
			log.Printf("preview %s: %v", targetURL, err)
			http.Error(w, "failed to load page", http.StatusBadGateway)
			return
		}
		if len(content) > maxPreviewHTMLBytes {
			http.Error(w, "response too large", http.StatusBadGateway)
			return
		}

		// Inject <base> so relative links resolve against the original page.
		baseTag := `<base href="` + targetURL + `">`
		if strings.Contains(content, "<head>") {
			content = strings.Replace(content, "<head>", "<head>"+baseTag, 1)
		} else {
			content = baseTag + content
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(content))
	}
}
