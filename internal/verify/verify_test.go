package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractDeliveryURLs_SrcAndSrcset(t *testing.T) {
	page := `<html><body>
	<img src="https://res.cloudinary.com/demo/image/upload/f_auto,q_auto/images/a.jpg"
	     srcset="https://res.cloudinary.com/demo/image/upload/f_auto,q_auto,w_300/images/a.jpg 300w, https://res.cloudinary.com/demo/image/upload/f_auto,q_auto,w_800/images/a.jpg 800w">
	<img src="/local/b.png">
	<img src="https://elsewhere.example/c.jpg">
	</body></html>`

	urls, err := ExtractDeliveryURLs(strings.NewReader(page), "https://res.cloudinary.com/")
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://res.cloudinary.com/demo/image/upload/f_auto,q_auto/images/a.jpg",
		"https://res.cloudinary.com/demo/image/upload/f_auto,q_auto,w_300/images/a.jpg",
		"https://res.cloudinary.com/demo/image/upload/f_auto,q_auto,w_800/images/a.jpg",
	}, urls)
}

func TestVerifyDir_ReportsMissingResources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	base := server.URL + "/"
	dir := t.TempDir()
	page := `<html><body>
	<img src="` + base + `demo/image/upload/ok.jpg">
	<img src="` + base + `demo/image/upload/missing.jpg">
	</body></html>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte(page), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	v := New(base)
	report, err := v.VerifyDir(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 2, report.Checked)
	require.Equal(t, []string{base + "demo/image/upload/missing.jpg"}, report.Missing)
}

func TestVerifyDir_DeduplicatesAcrossPages(t *testing.T) {
	var heads int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		heads++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	base := server.URL + "/"
	dir := t.TempDir()
	img := `<img src="` + base + `demo/image/upload/a.jpg">`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.html"), []byte(img), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.html"), []byte(img), 0644))

	report, err := New(base).VerifyDir(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 1, report.Checked)
	require.Equal(t, 1, heads)
	require.Empty(t, report.Missing)
}
