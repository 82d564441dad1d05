package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
)

var (
	youtubeRE   = regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.)?(?:youtu\.be/|youtube\.com/(?:embed/|v/|shorts/|watch\?v=|watch\?.+&v=))([\w-]{11})(?:\S+)?$`)
	driveFileRE = regexp.MustCompile(`drive\.google\.com/file/d/([a-zA-Z0-9_-]+)`)
	driveOpenRE = regexp.MustCompile(`drive\.google\.com/(?:open|uc)\?(?:.+&)?id=([a-zA-Z0-9_-]+)`)
)

// AssetID extracts the stable content identifier from a YouTube or Google
// Drive URL.
func AssetID(ref string) (string, bool) {
	if m := youtubeRE.FindStringSubmatch(ref); m != nil {
		return m[1], true
	}
	if m := driveFileRE.FindStringSubmatch(ref); m != nil {
		return m[1], true
	}
	if m := driveOpenRE.FindStringSubmatch(ref); m != nil {
		return m[1], true
	}
	return "", false
}

// ContentID derives an asset ID from the bytes of r. Identical content
// yields the same ID wherever the file lives.
func ContentID(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return "sha256-" + hex.EncodeToString(h.Sum(nil)[:16]), nil
}

// FileContentID is ContentID over the file at path.
func FileContentID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return ContentID(f)
}

// ResolveAssetID returns the asset ID for a URL or local file path: the
// embedded YouTube/Drive ID when present, otherwise a content hash of the
// local file. Remote URLs without an embedded ID are rejected.
func ResolveAssetID(ref string) (string, error) {
	if id, ok := AssetID(ref); ok {
		return id, nil
	}
	if isURL(ref) {
		return "", fmt.Errorf("no asset id in %q; pass one explicitly", ref)
	}
	return FileContentID(ref)
}

var urlRE = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

func isURL(ref string) bool {
	return urlRE.MatchString(ref)
}
