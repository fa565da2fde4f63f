package fetch

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-resources/internal/resource"
)

// buildArchive produces a gzipped tarball mimicking a GitHub source archive:
// every entry lives under a single "<repo>-main" top-level directory.
func buildArchive(t *testing.T, topDir string, files map[string]string) []byte {
	t.Helper()
	return buildArchiveWithLinks(t, topDir, files, nil)
}

func buildArchiveWithLinks(t *testing.T, topDir string, files, links map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{
			Name:     topDir + "/" + name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	for name, target := range links {
		hdr := &tar.Header{
			Name:     topDir + "/" + name,
			Mode:     0o777,
			Typeflag: tar.TypeSymlink,
			Linkname: target,
		}
		require.NoError(t, tw.WriteHeader(hdr))
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func newArchiveServer(t *testing.T, archive []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/archive/refs/heads/main.tar.gz") {
			_, _ = w.Write(archive)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func testFetcher(baseURL string) *Fetcher {
	return &Fetcher{
		BaseURL:  baseURL,
		Ref:      "main",
		Client:   &http.Client{},
		Attempts: 3,
		Delay:    time.Millisecond,
		MaxBytes: 10 << 20,
	}
}

func TestResourceSkillLayouts(t *testing.T) {
	tests := []struct {
		layout string
		path   string
	}{
		{"claude", ".claude/skills/test-skill/SKILL.md"},
		{"bare", "skills/test-skill/SKILL.md"},
		{"singular", "skill/test-skill/SKILL.md"},
	}
	for _, tt := range tests {
		t.Run(tt.layout, func(t *testing.T) {
			archive := buildArchive(t, "agent-resources-main", map[string]string{
				tt.path: "# Test Skill (" + tt.layout + ")",
			})
			server := newArchiveServer(t, archive)

			resolved, cleanup, err := testFetcher(server.URL).Resource(
				context.Background(),
				resource.Ref{Owner: "testuser", Name: "test-skill"},
				"agent-resources",
				resource.CategorySkill,
			)
			require.NoError(t, err)
			defer cleanup()

			assert.True(t, resolved.IsDir)
			assert.Equal(t, "test-skill", filepath.Base(resolved.Path))
			content, err := os.ReadFile(filepath.Join(resolved.Path, "SKILL.md"))
			require.NoError(t, err)
			assert.Contains(t, string(content), tt.layout)
		})
	}
}

func TestResourceSingleFileSkill(t *testing.T) {
	archive := buildArchive(t, "agent-resources-main", map[string]string{
		"skills/code-review.md": "# Code Review",
	})
	server := newArchiveServer(t, archive)

	resolved, cleanup, err := testFetcher(server.URL).Resource(
		context.Background(),
		resource.Ref{Owner: "testuser", Name: "code-review"},
		"agent-resources",
		resource.CategorySkill,
	)
	require.NoError(t, err)
	defer cleanup()

	assert.False(t, resolved.IsDir)
	content, err := os.ReadFile(resolved.Path)
	require.NoError(t, err)
	assert.Equal(t, "# Code Review", string(content))
}

func TestResourceCommand(t *testing.T) {
	archive := buildArchive(t, "agent-resources-main", map[string]string{
		"commands/deploy.md": "# Deploy command",
	})
	server := newArchiveServer(t, archive)

	resolved, cleanup, err := testFetcher(server.URL).Resource(
		context.Background(),
		resource.Ref{Owner: "testuser", Name: "deploy"},
		"agent-resources",
		resource.CategoryCommand,
	)
	require.NoError(t, err)
	defer cleanup()

	assert.False(t, resolved.IsDir)
	content, err := os.ReadFile(resolved.Path)
	require.NoError(t, err)
	assert.Equal(t, "# Deploy command", string(content))
}

func TestResourceClaudeLayoutWins(t *testing.T) {
	archive := buildArchive(t, "agent-resources-main", map[string]string{
		".claude/agents/reviewer.md": "claude layout",
		"agents/reviewer.md":         "bare layout",
	})
	server := newArchiveServer(t, archive)

	resolved, cleanup, err := testFetcher(server.URL).Resource(
		context.Background(),
		resource.Ref{Owner: "testuser", Name: "reviewer"},
		"agent-resources",
		resource.CategoryAgent,
	)
	require.NoError(t, err)
	defer cleanup()

	content, err := os.ReadFile(resolved.Path)
	require.NoError(t, err)
	assert.Equal(t, "claude layout", string(content))
}

func TestResourceNotFound(t *testing.T) {
	archive := buildArchive(t, "agent-resources-main", map[string]string{
		"README.md": "nothing here",
	})
	server := newArchiveServer(t, archive)

	_, _, err := testFetcher(server.URL).Resource(
		context.Background(),
		resource.Ref{Owner: "testuser", Name: "nonexistent"},
		"agent-resources",
		resource.CategorySkill,
	)
	require.Error(t, err)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nonexistent", notFound.Ref.Name)

	msg := err.Error()
	assert.Contains(t, msg, "Tried these locations:")
	assert.Contains(t, msg, ".claude/skills/nonexistent")
	assert.Contains(t, msg, "skills/nonexistent")
	assert.Contains(t, msg, "skill/nonexistent")
	assert.Contains(t, msg, "Quick fixes:")
	assert.Contains(t, msg, "--repo")
	assert.Contains(t, msg, "--dest")
}

func TestResourceRepoNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	_, _, err := testFetcher(server.URL).Resource(
		context.Background(),
		resource.Ref{Owner: "testuser", Name: "anything"},
		"missing-repo",
		resource.CategorySkill,
	)
	require.Error(t, err)

	var repoNotFound *RepoNotFoundError
	require.ErrorAs(t, err, &repoNotFound)
	assert.Equal(t, "missing-repo", repoNotFound.Repo)
}

func TestResourceRetriesServerErrors(t *testing.T) {
	archive := buildArchive(t, "agent-resources-main", map[string]string{
		"skills/flaky/SKILL.md": "# Flaky",
	})
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		_, _ = w.Write(archive)
	}))
	t.Cleanup(server.Close)

	resolved, cleanup, err := testFetcher(server.URL).Resource(
		context.Background(),
		resource.Ref{Owner: "testuser", Name: "flaky"},
		"agent-resources",
		resource.CategorySkill,
	)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, 3, attempts)
	assert.True(t, resolved.IsDir)
}

func TestResourceDoesNotRetryNotFound(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	_, _, err := testFetcher(server.URL).Resource(
		context.Background(),
		resource.Ref{Owner: "testuser", Name: "anything"},
		"agent-resources",
		resource.CategorySkill,
	)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestCleanupRemovesExtractionDir(t *testing.T) {
	archive := buildArchive(t, "agent-resources-main", map[string]string{
		"skills/tidy/SKILL.md": "# Tidy",
	})
	server := newArchiveServer(t, archive)

	resolved, cleanup, err := testFetcher(server.URL).Resource(
		context.Background(),
		resource.Ref{Owner: "testuser", Name: "tidy"},
		"agent-resources",
		resource.CategorySkill,
	)
	require.NoError(t, err)

	_, err = os.Stat(resolved.Path)
	require.NoError(t, err)
	cleanup()
	_, err = os.Stat(resolved.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestResourceSkillBundleKeepsSymlink(t *testing.T) {
	archive := buildArchiveWithLinks(t, "agent-resources-main",
		map[string]string{"skills/test-skill/SKILL.md": "# Test Skill"},
		map[string]string{"skills/test-skill/link.md": "SKILL.md"},
	)
	server := newArchiveServer(t, archive)

	resolved, cleanup, err := testFetcher(server.URL).Resource(
		context.Background(),
		resource.Ref{Owner: "testuser", Name: "test-skill"},
		"agent-resources",
		resource.CategorySkill,
	)
	require.NoError(t, err)
	defer cleanup()

	target, err := os.Readlink(filepath.Join(resolved.Path, "link.md"))
	require.NoError(t, err)
	assert.Equal(t, "SKILL.md", target)
}

func TestResourceSkipsLayoutPrefixThatIsAFile(t *testing.T) {
	// a stray file named ".claude" makes the first candidate fail with
	// ENOTDIR, which must not abort the remaining ones
	archive := buildArchive(t, "agent-resources-main", map[string]string{
		".claude":                    "stray file",
		"skills/test-skill/SKILL.md": "# Test Skill",
	})
	server := newArchiveServer(t, archive)

	resolved, cleanup, err := testFetcher(server.URL).Resource(
		context.Background(),
		resource.Ref{Owner: "testuser", Name: "test-skill"},
		"agent-resources",
		resource.CategorySkill,
	)
	require.NoError(t, err)
	defer cleanup()
	assert.True(t, resolved.IsDir)
}

func TestResourceArchiveTooLarge(t *testing.T) {
	archive := buildArchive(t, "agent-resources-main", map[string]string{
		"skills/big/SKILL.md": "# Big Skill",
	})
	server := newArchiveServer(t, archive)

	fetcher := testFetcher(server.URL)
	fetcher.MaxBytes = 10

	_, _, err := fetcher.Resource(
		context.Background(),
		resource.Ref{Owner: "testuser", Name: "big"},
		"agent-resources",
		resource.CategorySkill,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download limit")
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	content := "evil"
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "../escape.txt",
		Mode:     0o644,
		Size:     int64(len(content)),
		Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	err = extractTarGz(bytes.NewReader(buf.Bytes()), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes extraction dir")
}

func TestExtractRejectsSymlinkWriteThrough(t *testing.T) {
	// a symlink pointing outside the root, followed by a file entry routed
	// through it, must not write outside the extraction dir
	outside := t.TempDir()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "agent-resources-main/link",
		Mode:     0o777,
		Typeflag: tar.TypeSymlink,
		Linkname: outside,
	}))
	content := "overwritten"
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "agent-resources-main/link/escape.txt",
		Mode:     0o644,
		Size:     int64(len(content)),
		Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	err = extractTarGz(bytes.NewReader(buf.Bytes()), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes extraction dir")

	_, statErr := os.Stat(filepath.Join(outside, "escape.txt"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestExtractRejectsRelativeSymlinkEscape(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "agent-resources-main/link",
		Mode:     0o777,
		Typeflag: tar.TypeSymlink,
		Linkname: "../../somewhere-else",
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	err := extractTarGz(bytes.NewReader(buf.Bytes()), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes extraction dir")
}
