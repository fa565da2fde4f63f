// Package fetch downloads a GitHub repository's source archive and locates a
// resource inside it. Repositories lay resources out in one of a few known
// structures; candidates are tried in order and the first match wins.
package fetch

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"agent-resources/internal/resource"
)

const (
	defaultBaseURL  = "https://github.com"
	defaultRef      = "main"
	defaultMaxBytes = 512 << 20
)

// Fetcher downloads and extracts resource repository archives.
type Fetcher struct {
	// BaseURL is the GitHub web root; tests point it at a local server.
	BaseURL string
	// Ref is the branch whose archive is fetched.
	Ref string
	// Client performs the download.
	Client *http.Client
	// Attempts and Delay govern retries of transient download failures.
	Attempts uint
	Delay    time.Duration
	// MaxBytes caps the archive download size.
	MaxBytes int64
}

// New returns a Fetcher with production defaults.
func New() *Fetcher {
	return &Fetcher{
		BaseURL:  defaultBaseURL,
		Ref:      defaultRef,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Attempts: 3,
		Delay:    500 * time.Millisecond,
		MaxBytes: defaultMaxBytes,
	}
}

// Resolved is a resource located inside an extracted archive.
type Resolved struct {
	// Path is the absolute path within the extraction dir.
	Path string
	// IsDir reports whether the resource is a bundle directory.
	IsDir bool
}

// Resource downloads the archive of <ref.Owner>/<repo> and locates the named
// resource. On success the returned cleanup func removes the extraction dir
// and must be called after the resource has been copied out.
func (f *Fetcher) Resource(ctx context.Context, ref resource.Ref, repo string, category resource.Category) (Resolved, func(), error) {
	root, cleanup, err := f.archive(ctx, ref.Owner, repo)
	if err != nil {
		return Resolved{}, nil, err
	}

	candidates := candidatePaths(category, ref.Name)
	tried := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		tried = append(tried, cand.rel)
		full := filepath.Join(root, filepath.FromSlash(cand.rel))
		info, err := os.Stat(full)
		if err != nil {
			// a layout prefix may exist as a regular file, making deeper
			// candidates fail with ENOTDIR
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
				continue
			}
			cleanup()
			return Resolved{}, nil, errors.Wrapf(err, "stat %s", cand.rel)
		}
		if info.IsDir() != cand.dir {
			continue
		}
		return Resolved{Path: full, IsDir: info.IsDir()}, cleanup, nil
	}

	cleanup()
	return Resolved{}, nil, &NotFoundError{
		Category: category,
		Ref:      ref,
		Repo:     repo,
		Tried:    tried,
	}
}

type candidate struct {
	rel string
	dir bool
}

// candidatePaths returns the layout locations checked for a resource. Each
// layout prefix is tried in order: .claude/ prefixed (claude-style repos),
// plural top-level dirs, singular top-level dirs (opencode-style). Skills
// are tried as bundle directories first, then as single markdown files.
func candidatePaths(category resource.Category, name string) []candidate {
	plural := string(category) + "s"
	prefixes := []string{
		path.Join(".claude", plural),
		plural,
		string(category),
	}

	var out []candidate
	if category.IsBundle() {
		for _, prefix := range prefixes {
			out = append(out, candidate{rel: path.Join(prefix, name), dir: true})
		}
	}
	for _, prefix := range prefixes {
		out = append(out, candidate{rel: path.Join(prefix, name+".md")})
	}
	return out
}

// archive downloads and extracts the repository tarball, returning the path
// of the repository root inside the extraction dir.
func (f *Fetcher) archive(ctx context.Context, owner, repo string) (string, func(), error) {
	url := strings.TrimSuffix(f.BaseURL, "/") + "/" + owner + "/" + repo + "/archive/refs/heads/" + f.Ref + ".tar.gz"

	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := f.Client.Do(req)
			if err != nil {
				return errors.Wrap(err, "download archive")
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(&RepoNotFoundError{Owner: owner, Repo: repo})
			case resp.StatusCode >= 500:
				return errors.Errorf("download archive: unexpected status %s", resp.Status)
			case resp.StatusCode != http.StatusOK:
				return retry.Unrecoverable(errors.Errorf("download archive: unexpected status %s", resp.Status))
			}

			maxBytes := f.MaxBytes
			if maxBytes <= 0 {
				maxBytes = defaultMaxBytes
			}
			body, err = io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
			if err != nil {
				return errors.Wrap(err, "read archive")
			}
			if int64(len(body)) > maxBytes {
				return retry.Unrecoverable(errors.Errorf("archive exceeds the %d byte download limit", maxBytes))
			}
			return nil
		},
		retry.Attempts(f.Attempts),
		retry.Delay(f.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", nil, err
	}

	tempDir, err := os.MkdirTemp("", "agent-resources-*")
	if err != nil {
		return "", nil, errors.Wrap(err, "create extraction dir")
	}
	cleanup := func() { _ = os.RemoveAll(tempDir) }

	if err := extractTarGz(bytes.NewReader(body), tempDir); err != nil {
		cleanup()
		return "", nil, errors.Wrap(err, "extract archive")
	}

	root, err := archiveRoot(tempDir)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return root, cleanup, nil
}

// archiveRoot finds the single top-level directory GitHub archives wrap the
// repository in (e.g. "<repo>-main").
func archiveRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

func extractTarGz(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()

	// resolve the extraction root once so parent checks compare real paths
	root, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := sanitizePath(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := ensureWithinRoot(root, filepath.Dir(target), hdr.Name); err != nil {
				return err
			}
			if err := writeFile(target, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := sanitizeLinkname(dest, hdr.Name, hdr.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := ensureWithinRoot(root, filepath.Dir(target), hdr.Name); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
}

// sanitizePath joins an archive entry name onto the extraction root,
// rejecting entries that would escape it.
func sanitizePath(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", errors.Errorf("archive entry escapes extraction dir: %s", name)
	}
	return target, nil
}

// sanitizeLinkname rejects symlink entries whose target resolves outside the
// extraction root, so later entries cannot route writes through them.
func sanitizeLinkname(dest, name, linkname string) error {
	if filepath.IsAbs(linkname) {
		return errors.Errorf("archive symlink escapes extraction dir: %s -> %s", name, linkname)
	}
	resolved := filepath.Join(dest, filepath.Dir(filepath.FromSlash(name)), filepath.FromSlash(linkname))
	if !strings.HasPrefix(resolved, filepath.Clean(dest)+string(os.PathSeparator)) {
		return errors.Errorf("archive symlink escapes extraction dir: %s -> %s", name, linkname)
	}
	return nil
}

// ensureWithinRoot verifies that a parent directory, with any symlinks in it
// resolved, still lies under the extraction root before writing through it.
func ensureWithinRoot(root, dir, name string) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(os.PathSeparator)) {
		return errors.Errorf("archive entry escapes extraction dir: %s", name)
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
