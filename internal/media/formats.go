package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotVideo is returned when an upload is not a video container.
var ErrNotVideo = errors.New("file is not a video")

// sniffLen is how much of an upload is read for content detection.
const sniffLen = 3072

// DetectType sniffs the media type of r. The returned reader replays the
// sniffed bytes followed by the rest of r.
func DetectType(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("read upload header: %w", err)
	}
	head = head[:n]
	mt := mimetype.Detect(head)
	return mt.String(), io.MultiReader(bytes.NewReader(head), r), nil
}

// ValidateVideo checks the declared content type and the sniffed one.
// An empty or generic declared type defers to sniffing.
func ValidateVideo(declared, detected string) error {
	declared = baseType(declared)
	if declared != "" && declared != "application/octet-stream" && !isVideoType(declared) {
		return fmt.Errorf("%w: declared %q", ErrNotVideo, declared)
	}
	if !isVideoType(baseType(detected)) {
		return fmt.Errorf("%w: detected %q", ErrNotVideo, detected)
	}
	return nil
}

// ContentTypeFor returns the MIME type of an export format.
func ContentTypeFor(format string) string {
	switch format {
	case FormatGIF:
		return "image/gif"
	case FormatMP4:
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

func isVideoType(t string) bool {
	if strings.HasPrefix(t, "video/") {
		return true
	}
	// mimetype reports Matroska/WebM audio-less files and some QuickTime
	// variants through their parents.
	mt := mimetype.Lookup(t)
	for ; mt != nil; mt = mt.Parent() {
		if strings.HasPrefix(mt.String(), "video/") {
			return true
		}
	}
	return false
}

func baseType(t string) string {
	t, _, _ = strings.Cut(t, ";")
	return strings.ToLower(strings.TrimSpace(t))
}
