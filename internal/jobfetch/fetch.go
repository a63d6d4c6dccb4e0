// Package jobfetch turns a job posting URL into markdown job description text.
package jobfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"resumate/internal/shared/telemetry"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultUserAgent = "ResuMate/1.0 (+https://shlok-bhakta.github.io/ResuMate/)"
	maxBodyBytes     = 4 << 20
)

var (
	ErrInvalidURL     = errors.New("job url must be an absolute http(s) url")
	ErrUpstreamStatus = errors.New("job page returned an error status")
	ErrEmptyContent   = errors.New("job page has no readable text")
)

// descriptionClasses are the containers job boards put the posting body in,
// tried in order before falling back to the whole page.
var descriptionClasses = []string{"job-description", "description", "show-more-less-html__markup", "description__text"}

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// Fetcher downloads and converts job postings.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{Client: &http.Client{Timeout: timeout}, UserAgent: DefaultUserAgent}
}

// Fetch downloads rawURL and returns its posting text as markdown. Plain text
// responses are returned as they are.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		telemetry.Warn("jobfetch.upstream_status", map[string]any{"host": u.Host, "status": resp.StatusCode})
		return "", fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	var text string
	if isPlainText(resp.Header.Get("Content-Type")) {
		text = string(body)
	} else {
		text, err = toMarkdown(string(body))
		if err != nil {
			return "", err
		}
	}

	text = strings.TrimSpace(blankRunRe.ReplaceAllString(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n"))
	if text == "" {
		return "", ErrEmptyContent
	}
	telemetry.Info("jobfetch.fetched", map[string]any{"host": u.Host, "chars": len(text)})
	return text, nil
}

func isPlainText(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/plain"
}

// toMarkdown converts the posting body, or the whole page when no known
// description container exists.
func toMarkdown(page string) (string, error) {
	fragment := page
	if doc, err := html.Parse(strings.NewReader(page)); err == nil {
		if n := findDescription(doc); n != nil {
			fragment = renderChildren(n)
		}
	}
	md, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return md, nil
}

func findDescription(doc *html.Node) *html.Node {
	if n := find(doc, func(n *html.Node) bool { return getAttr(n, "data-automation") == "jobDescription" }); n != nil {
		return n
	}
	for _, cls := range descriptionClasses {
		if n := find(doc, func(n *html.Node) bool { return hasClass(n, cls) }); n != nil {
			return n
		}
	}
	return nil
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, className string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == className {
			return true
		}
	}
	return false
}

// renderChildren returns the inner HTML of a node.
func renderChildren(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return sb.String()
}
