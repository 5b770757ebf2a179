// Package installer implements the concrete toolchain installer: download
// a toolchain archive per target, extract it, and install it under
// internal/env's toolchain store, tearing down cleanly on error. Uses an
// errgroup fan-out over the things that need downloading, and renameio
// for atomic "write to scratch, then move into place".
package installer

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"github.com/klauspost/pgzip"
	"github.com/tcbisect/tcbisect"
	"github.com/tcbisect/tcbisect/internal/env"
	"github.com/ulikunitz/xz"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// ErrNotFound reports that the archive server has nothing for a requested
// (spec, target) pair.
type ErrNotFound struct{ URL *url.URL }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("%v: HTTP status 404", e.URL) }

// Format is the compression format of a toolchain archive.
type Format int

const (
	FormatTarXZ Format = iota
	FormatTarGZ
)

// Installer downloads and installs toolchain archives from a base
// distribution server, mirroring rustup's own archive layout.
type Installer struct {
	// BaseURL is the archive server root, e.g.
	// "https://static.rust-lang.org/dist" for nightlies or a CI build
	// store root for CI toolchains.
	BaseURL string
	// Multiplexer is the toolchain-switcher binary queried by
	// DefaultNightly, "rustup" unless overridden.
	Multiplexer string
	client      *http.Client
}

// New returns an Installer rooted at baseURL.
func New(baseURL string) *Installer {
	return &Installer{
		BaseURL:     baseURL,
		Multiplexer: "rustup",
		client:      &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: 10}},
	}
}

// archiveExt maps a Format to its file extension.
func (f Format) archiveExt() string {
	if f == FormatTarGZ {
		return ".tar.gz"
	}
	return ".tar.xz"
}

// archiveURL builds the download URL for one (toolchain, target) archive in
// the given format: a base URL plus the date or commit (with an optional
// "-alt" suffix for CI) plus the target triple.
func (in *Installer) archiveURL(t tcbisect.Toolchain, target string, format Format) string {
	var name string
	switch t.Spec.Kind {
	case tcbisect.SpecNightly:
		name = fmt.Sprintf("%s/rust-nightly-%s", t.Spec.Date, target)
	default:
		sha := t.Spec.Commit
		suffix := ""
		if t.Spec.Alt {
			suffix = "-alt"
		}
		name = fmt.Sprintf("%s/rust-%s%s-%s", sha, sha, suffix, target)
	}
	return in.BaseURL + "/" + name + format.archiveExt()
}

// Install downloads and extracts the host archive and one archive per
// requested std target concurrently, installing everything into
// env.ToolchainDir(t.RustupName()). It returns linked=false: this
// installer always installs by copy, never by symlink.
func (in *Installer) Install(ctx context.Context, t tcbisect.Toolchain) (linked bool, err error) {
	dest := env.ToolchainDir(t.RustupName())
	scratch, err := env.ScratchDir()
	if err != nil {
		return false, err
	}
	work, err := os.MkdirTemp(scratch, "install-*")
	if err != nil {
		return false, err
	}
	defer os.RemoveAll(work)

	eg, egCtx := errgroup.WithContext(ctx)
	for _, target := range t.Targets {
		target := target
		eg.Go(func() error {
			if err := in.fetchAndExtract(egCtx, t, target, work); err != nil {
				return xerrors.Errorf("installing %s for %s: %w", t, target, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return false, err
	}
	if err := os.RemoveAll(dest); err != nil {
		return false, err
	}
	if err := os.Rename(work, dest); err != nil {
		return false, err
	}
	return false, nil
}

// fetchAndExtract downloads the archive for (t, target), trying the
// .tar.xz layout first and falling back to .tar.gz if the server has
// nothing at that URL: older CI builds and some mirrors only ever
// published gzip archives, so the format has to be discovered per
// toolchain rather than assumed.
func (in *Installer) fetchAndExtract(ctx context.Context, t tcbisect.Toolchain, target, destRoot string) error {
	var notFound *ErrNotFound
	for _, format := range []Format{FormatTarXZ, FormatTarGZ} {
		body, err := in.fetchArchive(ctx, t, target, format)
		if err != nil {
			if e, ok := err.(*ErrNotFound); ok {
				notFound = e
				continue
			}
			return err
		}
		defer body.Close()
		return extractArchive(body, format, destRoot)
	}
	return notFound
}

// fetchArchive issues the GET for (t, target) in the given format, mapping
// a 404 to *ErrNotFound so fetchAndExtract can try the next format.
func (in *Installer) fetchArchive(ctx context.Context, t tcbisect.Toolchain, target string, format Format) (io.ReadCloser, error) {
	u := in.archiveURL(t, target, format)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := in.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, &ErrNotFound{URL: req.URL}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: HTTP status %s", u, resp.Status)
	}
	return resp.Body, nil
}

func extractArchive(body io.Reader, format Format, destRoot string) error {
	var tr *tar.Reader
	switch format {
	case FormatTarXZ:
		xr, err := xz.NewReader(body)
		if err != nil {
			return err
		}
		tr = tar.NewReader(xr)
	case FormatTarGZ:
		gr, err := pgzip.NewReader(body)
		if err != nil {
			return err
		}
		defer gr.Close()
		tr = tar.NewReader(gr)
	}
	return extractTar(tr, destRoot)
}

func extractTar(tr *tar.Reader, destRoot string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		dest := filepath.Join(destRoot, filepath.Clean("/"+hdr.Name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return err
			}
			_ = os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return err
			}
			f, err := renameio.TempFile("", dest)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				return err
			}
			if err := f.Chmod(os.FileMode(hdr.Mode)); err != nil {
				return err
			}
			if err := f.CloseAtomicallyReplace(); err != nil {
				return err
			}
		}
	}
}

// Remove deletes the toolchain's install directory. linked is accepted
// for interface symmetry with callers that may have installed by symlink;
// this installer never does, so it is ignored here (see Install).
func (in *Installer) Remove(ctx context.Context, t tcbisect.Toolchain, linked bool) error {
	return os.RemoveAll(env.ToolchainDir(t.RustupName()))
}

// DefaultNightly asks the configured multiplexer which nightly is
// currently the default, returning (zero, false) if the multiplexer is
// absent or has no default, never an error.
func (in *Installer) DefaultNightly(ctx context.Context) (tcbisect.Date, bool) {
	out, err := exec.CommandContext(ctx, in.Multiplexer, "show", "active-toolchain").Output()
	if err != nil {
		return tcbisect.Date{}, false
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return tcbisect.Date{}, false
	}
	parts := strings.Split(fields[0], "-")
	for i := 0; i+3 <= len(parts); i++ {
		if d, err := tcbisect.ParseDate(strings.Join(parts[i:i+3], "-")); err == nil {
			return d, true
		}
	}
	return tcbisect.Date{}, false
}

// IsNotFound reports whether err is (or wraps) *ErrNotFound. Install wraps
// fetchAndExtract's error with xerrors.Errorf("...: %w", err), so this
// must unwrap rather than type-assert directly.
func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}
