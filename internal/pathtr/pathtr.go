// Package pathtr translates between the three root directories wolfs deals
// with — the read-only source tree, the local on-disk cache, and the FUSE
// mount point — and a single canonical root-relative path shared by the
// other internal packages.
//
// Grounded on the Python prototype's libwolfs/translator.py: PathTranslator
// and the CachePath.toRootPath/toDestPath prefix-stripping helpers.
package pathtr

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Roots names the three directory trees a wolfs mount spans.
type Roots struct {
	Source string
	Cache  string
	Mount  string
}

// Translator converts between root-relative paths and paths rooted in any
// of the three trees. It is immutable after construction and safe for
// concurrent use.
type Translator struct {
	source string
	cache  string
	mount  string
}

// New validates that source, cache and mount all exist on disk and returns
// a Translator rooted at their absolute forms. The Python prototype exits
// the process outright (sys.exit(errno.ENOENT)) the moment one of these is
// missing; we return the same condition as an error so cmd/wolfs can log it
// and exit with the matching status instead of panicking mid-package.
func New(roots Roots) (*Translator, error) {
	abs := func(name, dir string) (string, error) {
		p, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%s %s: %w", name, p, err)
		}
		return p, nil
	}

	src, err := abs("source dir", roots.Source)
	if err != nil {
		return nil, err
	}
	cch, err := abs("cache dir", roots.Cache)
	if err != nil {
		return nil, err
	}
	mnt, err := abs("mount dir", roots.Mount)
	if err != nil {
		return nil, err
	}

	return &Translator{source: src, cache: cch, mount: mnt}, nil
}

func (t *Translator) Source() string { return t.source }
func (t *Translator) Cache() string  { return t.cache }
func (t *Translator) Mount() string  { return t.mount }

// toRootPath strips the given prefix trees from path, returning a clean
// leading-slash path. Mirrors CachePath.toRootPath's double .replace() call
// — order doesn't matter since a given path is only ever rooted under one
// of the two trees at a time.
func toRootPath(a, b, path string) string {
	root := strings.Replace(path, a, "", 1)
	root = strings.Replace(root, b, "", 1)
	root = strings.ReplaceAll("/"+root, "//", "/")
	if root == "" {
		return "/"
	}
	return root
}

func toDestPath(a, dest, path string) string {
	root := toRootPath(a, dest, path)
	result := strings.ReplaceAll(dest+root, "//", "/")
	return result
}

// ToRoot converts any path rooted in source, cache, or mount into the
// canonical root-relative form ("/" for the tree root).
func (t *Translator) ToRoot(path string) string {
	trimmed := toRootPath(t.source, t.cache, path)
	return toRootPath(t.mount, t.mount, trimmed)
}

// ToMount converts path into one rooted at the mount directory.
func (t *Translator) ToMount(path string) string {
	return toDestPath(t.mount, t.mount, t.ToRoot(path))
}

// ToSrc converts path into one rooted at the source directory.
func (t *Translator) ToSrc(path string) string {
	return toDestPath(t.source, t.source, t.ToRoot(path))
}

// ToTmp converts path into one rooted at the cache directory.
func (t *Translator) ToTmp(path string) string {
	return toDestPath(t.cache, t.cache, t.ToRoot(path))
}

// Parent returns the root-relative parent directory of path, "/" for
// top-level entries and the root itself.
func (t *Translator) Parent(path string) string {
	rpath := t.ToRoot(path)
	if strings.Count(rpath, "/") < 2 {
		return "/"
	}
	return rpath[:strings.LastIndex(rpath, "/")]
}
