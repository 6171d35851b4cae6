package pipeline

import (
	"path"
	"strings"
)

// DefaultBaseName is used when the original file name is unavailable.
const DefaultBaseName = "photo"

// OutputFilename derives the download name: the original base name without its
// extension, the pixel size and the extension of format, e.g. "me_600x600.jpg".
func OutputFilename(original string, size TargetSize, format Format) string {
	// browsers may send Windows paths
	base := path.Base(strings.ReplaceAll(original, "\\", "/"))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == "/" {
		base = DefaultBaseName
	}
	return base + "_" + size.String() + "." + format.Extension()
}
