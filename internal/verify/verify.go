// Package verify checks generated HTML for dangling delivery URLs.
//
// The Markdown rewrite path predicts URLs without waiting for uploads, so a
// failed background upload leaves pages linking at resources the service
// never received. Running this after a build finds them.
package verify

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Report summarizes a verification run.
type Report struct {
	Checked int
	Missing []string // delivery URLs that did not resolve
}

// Verifier HEAD-checks delivery URLs referenced by generated pages.
type Verifier struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a verifier for URLs under the given delivery base URL.
func New(baseURL string) *Verifier {
	return &Verifier{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
	}
}

// VerifyDir extracts delivery URLs from every .html file beneath dir and
// checks each exactly once.
func (v *Verifier) VerifyDir(ctx context.Context, dir string) (*Report, error) {
	seen := make(map[string]struct{})

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}

		file, err := os.Open(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("failed to open HTML file %s: %w", path, err)
		}
		defer func() {
			_ = file.Close() // Ignore close errors on read-only operation
		}()

		urls, err := ExtractDeliveryURLs(file, v.baseURL)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		for _, u := range urls {
			seen[u] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	report := &Report{}
	for _, u := range urls {
		report.Checked++
		ok, err := v.exists(ctx, u)
		if err != nil {
			return report, err
		}
		if !ok {
			report.Missing = append(report.Missing, u)
		}
	}
	return report, nil
}

func (v *Verifier) exists(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("failed to create request for %s: %w", url, err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request for %s failed: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// ExtractDeliveryURLs collects img src and srcset references under baseURL
// from an HTML document.
func ExtractDeliveryURLs(r io.Reader, baseURL string) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var urls []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			if src := getAttr(n, "src"); strings.HasPrefix(src, baseURL) {
				urls = append(urls, src)
			}
			for _, u := range srcsetURLs(getAttr(n, "srcset")) {
				if strings.HasPrefix(u, baseURL) {
					urls = append(urls, u)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return urls, nil
}

func getAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// srcsetURLs splits a srcset value into its candidate URLs. Entries are
// separated by ", "; splitting on a bare comma would break transformation
// directives like f_auto,q_auto inside the URLs themselves.
func srcsetURLs(srcset string) []string {
	if srcset == "" {
		return nil
	}
	var urls []string
	for _, entry := range strings.Split(srcset, ", ") {
		fields := strings.Fields(entry)
		if len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return urls
}
