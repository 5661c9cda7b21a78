package listing

import (
	"fmt"
	"strings"
)

// FileType is the role a listed object plays for its user.
type FileType int

const (
	// FileTypeUnknown is ignored by the synchronizer.
	FileTypeUnknown FileType = iota
	// FileTypeImage is a user's picture; only its key is tracked.
	FileTypeImage
	// FileTypeInfo holds the user's attribute row.
	FileTypeInfo
)

// String returns the file type name.
func (t FileType) String() string {
	switch t {
	case FileTypeImage:
		return "image"
	case FileTypeInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Classifier decides which role an extension plays.
type Classifier interface {
	Classify(ext string) FileType
}

// ExtensionClassifier classifies by membership in two extension sets.
// Extensions are compared case-insensitively and must include the leading dot.
type ExtensionClassifier struct {
	image map[string]struct{}
	info  map[string]struct{}
}

// DefaultImageExtensions are recognized as images when nothing else is configured.
var DefaultImageExtensions = []string{".png"}

// DefaultInfoExtensions are recognized as info objects when nothing else is configured.
var DefaultInfoExtensions = []string{".csv"}

// NewExtensionClassifier builds a classifier. An extension listed in both
// sets is rejected. Empty sets fall back to the defaults.
func NewExtensionClassifier(imageExts, infoExts []string) (*ExtensionClassifier, error) {
	if len(imageExts) == 0 {
		imageExts = DefaultImageExtensions
	}
	if len(infoExts) == 0 {
		infoExts = DefaultInfoExtensions
	}

	c := &ExtensionClassifier{
		image: make(map[string]struct{}, len(imageExts)),
		info:  make(map[string]struct{}, len(infoExts)),
	}
	for _, e := range imageExts {
		c.image[NormalizeExtension(e)] = struct{}{}
	}
	for _, e := range infoExts {
		n := NormalizeExtension(e)
		if _, dup := c.image[n]; dup {
			return nil, fmt.Errorf("extension %q configured as both image and info", n)
		}
		c.info[n] = struct{}{}
	}
	return c, nil
}

// Classify returns the file type for ext.
func (c *ExtensionClassifier) Classify(ext string) FileType {
	n := NormalizeExtension(ext)
	if _, ok := c.image[n]; ok {
		return FileTypeImage
	}
	if _, ok := c.info[n]; ok {
		return FileTypeInfo
	}
	return FileTypeUnknown
}

// NormalizeExtension lower-cases ext and ensures a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
