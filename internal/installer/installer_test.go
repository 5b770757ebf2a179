package installer

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/tcbisect/tcbisect"
)

func TestArchiveURLNightly(t *testing.T) {
	in := New("https://example.test/dist")
	tc := tcbisect.NewToolchain(tcbisect.NightlySpec(tcbisect.Date{Year: 2019, Month: 1, Day: 1}), "x86_64-unknown-linux-gnu")
	got := in.archiveURL(tc, "x86_64-unknown-linux-gnu", FormatTarXZ)
	want := "https://example.test/dist/2019-01-01/rust-nightly-x86_64-unknown-linux-gnu.tar.xz"
	if got != want {
		t.Errorf("archiveURL = %q, want %q", got, want)
	}
}

func TestArchiveURLCIAlt(t *testing.T) {
	in := New("https://example.test/ci")
	tc := tcbisect.NewToolchain(tcbisect.CISpec("deadbeefcafe", true), "x86_64-unknown-linux-gnu")
	got := in.archiveURL(tc, "x86_64-unknown-linux-gnu", FormatTarGZ)
	want := "https://example.test/ci/deadbeefcafe/rust-deadbeefcafe-alt-x86_64-unknown-linux-gnu.tar.gz"
	if got != want {
		t.Errorf("archiveURL = %q, want %q", got, want)
	}
}

// TestFetchAndExtractFallsBackToTarGZ exercises the pgzip decode path: a
// server with nothing at the .tar.xz URL but a valid .tar.gz archive at
// the matching .tar.gz URL must still install successfully.
func TestFetchAndExtractFallsBackToTarGZ(t *testing.T) {
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	body := "#!/bin/sh\n"
	if err := tw.WriteHeader(&tar.Header{Name: "rustc/bin/rustc", Mode: 0755, Size: int64(len(body))}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	if _, err := gw.Write(tarBuf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if filepath.Ext(r.URL.Path) == ".xz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(gzBuf.Bytes())
	}))
	defer srv.Close()

	in := New(srv.URL)
	tc := tcbisect.NewToolchain(tcbisect.NightlySpec(tcbisect.Date{Year: 2019, Month: 1, Day: 1}), "x86_64-unknown-linux-gnu")
	dest := t.TempDir()
	if err := in.fetchAndExtract(context.Background(), tc, "x86_64-unknown-linux-gnu", dest); err != nil {
		t.Fatalf("fetchAndExtract: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "rustc/bin/rustc")); err != nil {
		t.Errorf("extracted file missing: %v", err)
	}
}

// TestFetchAndExtractNotFoundInBothFormats confirms a 404 in every format
// surfaces as *ErrNotFound, the signal internal/probe needs to treat a
// missing nightly as a scan-rollback case rather than a failure.
func TestFetchAndExtractNotFoundInBothFormats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	in := New(srv.URL)
	tc := tcbisect.NewToolchain(tcbisect.NightlySpec(tcbisect.Date{Year: 2019, Month: 1, Day: 1}), "x86_64-unknown-linux-gnu")
	err := in.fetchAndExtract(context.Background(), tc, "x86_64-unknown-linux-gnu", t.TempDir())
	if !IsNotFound(err) {
		t.Fatalf("fetchAndExtract error = %v, want *ErrNotFound", err)
	}
}

func TestExtractTarWritesFilesAndSymlinks(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	files := []struct {
		name string
		body string
	}{
		{"rustc/bin/rustc", "#!/bin/sh\n"},
	}
	for _, f := range files {
		if err := tw.WriteHeader(&tar.Header{Name: f.name, Mode: 0755, Size: int64(len(f.body))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(f.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.WriteHeader(&tar.Header{Name: "rustc/bin/rust-latest", Typeflag: tar.TypeSymlink, Linkname: "rustc"}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := extractTar(tar.NewReader(&buf), dest); err != nil {
		t.Fatalf("extractTar: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "rustc/bin/rustc"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(got) != "#!/bin/sh\n" {
		t.Errorf("extracted file contents = %q", got)
	}
	if target, err := os.Readlink(filepath.Join(dest, "rustc/bin/rust-latest")); err != nil || target != "rustc" {
		t.Errorf("symlink target = %q, err %v, want %q", target, err, "rustc")
	}
}
