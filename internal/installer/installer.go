// Package installer writes fetched resources into their destination
// directories.
package installer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"agent-resources/internal/fetch"
	"agent-resources/internal/resource"
)

// ExistsError indicates the destination already holds the resource and
// --overwrite was not given.
type ExistsError struct {
	Path string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("%s already exists. Pass --overwrite to replace it", e.Path)
}

// Install copies a resolved resource into destDir and returns the installed
// path. Skill bundles land at <destDir>/<name>/, single-file resources at
// <destDir>/<name>.md. Existing destinations error unless overwrite is set,
// in which case they are replaced wholesale. The copy lands in a staging
// path next to the destination and is renamed into place, so a failed copy
// leaves any existing install untouched.
func Install(src fetch.Resolved, destDir, name string, overwrite bool) (string, error) {
	entry := name
	if !src.IsDir {
		entry = name + ".md"
	}
	dest := filepath.Join(destDir, entry)

	exists := false
	if _, err := os.Lstat(dest); err == nil {
		if !overwrite {
			return "", &ExistsError{Path: dest}
		}
		exists = true
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create destination %s: %w", destDir, err)
	}

	staging := filepath.Join(destDir, "."+entry+".partial")
	// leftover from a previous interrupted install
	if err := os.RemoveAll(staging); err != nil {
		return "", err
	}
	if err := copyResource(src, staging); err != nil {
		_ = os.RemoveAll(staging)
		return "", fmt.Errorf("install %s: %w", name, err)
	}

	if exists {
		if err := os.RemoveAll(dest); err != nil {
			_ = os.RemoveAll(staging)
			return "", fmt.Errorf("remove existing %s: %w", dest, err)
		}
	}
	if err := os.Rename(staging, dest); err != nil {
		_ = os.RemoveAll(staging)
		return "", fmt.Errorf("install %s: %w", name, err)
	}
	return dest, nil
}

func copyResource(src fetch.Resolved, dest string) error {
	if src.IsDir {
		return copyDir(src.Path, dest)
	}
	info, err := os.Stat(src.Path)
	if err != nil {
		return err
	}
	return copyFile(src.Path, dest, info.Mode())
}

// Metadata reads the SKILL.md frontmatter of an installed skill bundle.
// Best-effort: a missing or malformed SKILL.md yields zero metadata.
func Metadata(installedPath string) resource.Metadata {
	content, err := os.ReadFile(filepath.Join(installedPath, "SKILL.md"))
	if err != nil {
		return resource.Metadata{}
	}
	meta, err := resource.ParseFrontmatter(content)
	if err != nil {
		return resource.Metadata{}
	}
	return meta
}

func copyDir(srcDir, destDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		targetPath := filepath.Join(destDir, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.Type()&os.ModeSymlink != 0 {
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return err
			}
			if err := os.RemoveAll(targetPath); err != nil {
				return err
			}
			return os.Symlink(linkTarget, targetPath)
		}
		if info.IsDir() {
			return os.MkdirAll(targetPath, info.Mode())
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return err
		}
		return copyFile(path, targetPath, info.Mode())
	})
}

func copyFile(src, dest string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dest, mode)
}
