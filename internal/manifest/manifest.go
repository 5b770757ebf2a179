// Package manifest resolves a nightly date to the commit hash published
// for it, the date-to-commit half of the nightly/commit resolver.
// It keeps a shared *http.Client, an optional disk cache keyed by the
// day's manifest path (never revalidated once written), and a typed
// not-found error distinguishing "no nightly that day" from any other
// fetch failure.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tcbisect/tcbisect"
)

// ErrNotFound reports that the manifest server has no entry for a date,
// i.e. no nightly was published (or has since been pruned).
type ErrNotFound struct{ URL *url.URL }

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%v: HTTP status 404", e.URL)
}

var httpClient = &http.Client{Transport: &http.Transport{
	MaxIdleConnsPerHost: 10,
}}

// Resolver fetches the commit manifest published for a given nightly date.
type Resolver struct {
	// BaseURL is the manifest server root, e.g.
	// "https://static.rust-lang.org/dist".
	BaseURL string
	// CacheDir, if non-empty, caches each day's manifest on disk (a
	// published day's manifest never changes, so no revalidation is
	// attempted once a file is cached).
	CacheDir string
}

// NewResolver returns a Resolver rooted at baseURL, caching under the
// user's cache directory.
func NewResolver(baseURL string) *Resolver {
	dir := ""
	if ucd, err := os.UserCacheDir(); err == nil {
		dir = filepath.Join(ucd, "tcbisect", "manifests")
	}
	return &Resolver{BaseURL: baseURL, CacheDir: dir}
}

// Resolve returns the commit hash of the nightly published on d. It
// returns *ErrNotFound when the manifest server has no entry for d.
func (r *Resolver) Resolve(ctx context.Context, d tcbisect.Date) (string, error) {
	fn := fmt.Sprintf("%s/channel-rust-nightly-git-commit-hash.txt", d.String())
	cacheFn := r.cacheFn(fn)
	if cacheFn != "" {
		if b, err := ioutil.ReadFile(cacheFn); err == nil {
			return strings.TrimSpace(string(b)), nil
		}
	}

	u := r.BaseURL + "/" + fn
	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", &ErrNotFound{URL: req.URL}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: HTTP status %s", u, resp.Status)
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	hash := strings.TrimSpace(string(body))

	if cacheFn != "" {
		if err := os.MkdirAll(filepath.Dir(cacheFn), 0755); err != nil {
			return hash, nil
		}
		_ = ioutil.WriteFile(cacheFn, []byte(hash), 0644)
	}
	return hash, nil
}

func (r *Resolver) cacheFn(fn string) string {
	if r.CacheDir == "" {
		return ""
	}
	return filepath.Join(r.CacheDir, strings.ReplaceAll(fn, "/", "_"))
}

// IsNotFound reports whether err is (or wraps) *ErrNotFound.
func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}
