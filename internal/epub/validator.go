package epub

import (
	"errors"
	"fmt"
	"strings"
)

// maxEntrySize caps a single entry's uncompressed size at 50 MiB. That is a
// generous ceiling for full-book HTML/XHTML content; archives hitting it are
// either image-heavy beyond what we serve or hostile.
const maxEntrySize int64 = 50 << 20

// Sentinel errors for archive validation failures.
var (
	ErrUnsafeEntryPath = errors.New("epub: unsafe entry path")
	ErrEntryTooLarge   = errors.New("epub: entry exceeds size limit")
)

// Entry is one file record inside the archive: a normalized relative path
// plus the uncompressed size the central directory declares.
type Entry struct {
	Path             string
	UncompressedSize int64
}

// ValidateEntries checks every entry before any entry content is read, so a
// hostile archive cannot smuggle a bad entry past partial processing. The
// first violation fails the whole archive.
func ValidateEntries(entries []Entry) error {
	for _, e := range entries {
		p := normalizePath(e.Path)
		if strings.HasPrefix(p, "/") {
			return fmt.Errorf("%w: %q is rooted", ErrUnsafeEntryPath, e.Path)
		}
		for _, seg := range strings.Split(p, "/") {
			if seg == ".." {
				return fmt.Errorf("%w: %q contains a parent traversal", ErrUnsafeEntryPath, e.Path)
			}
		}
		if e.UncompressedSize > maxEntrySize {
			return fmt.Errorf("%w: %q declares %d bytes (max %d)", ErrEntryTooLarge, e.Path, e.UncompressedSize, maxEntrySize)
		}
	}
	return nil
}

// normalizePath folds backslashes into forward slashes so Windows-authored
// archives get the same traversal checks.
func normalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
