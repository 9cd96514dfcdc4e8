package identity

import (
	"github.com/gabriel-vasile/mimetype"
)

// UnknownMediaType is reported when content sniffing is inconclusive.
const UnknownMediaType = "application/octet-stream"

// ClassifyType returns the media type of the file's content. It never fails:
// unreadable or unrecognized content is reported as UnknownMediaType.
func ClassifyType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil || mt == nil {
		return UnknownMediaType
	}
	return mediaType(mt)
}

// classifyBytes sniffs an already captured file head.
func classifyBytes(head []byte) string {
	return mediaType(mimetype.Detect(head))
}

func mediaType(mt *mimetype.MIME) string {
	if mt == nil || mt.String() == "" {
		return UnknownMediaType
	}
	return mt.String()
}
