package audio

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// container describes how a clip must be decoded.
type container struct {
	mime string
	ext  string
	wav  bool
	// seek is set for formats ffmpeg cannot read from a pipe (moov atom
	// at the end of the file).
	seek bool
}

var seekTypes = []string{"audio/mp4", "video/mp4", "audio/x-m4a", "video/quicktime", "video/3gpp", "audio/3gpp", "video/3gpp2"}

// detect sniffs data, falling back to the declared content type when the
// bytes are not recognized.
func detect(data []byte, declared string) container {
	m := mimetype.Detect(data)
	c := container{mime: m.String(), ext: m.Extension()}

	if m.Is("application/octet-stream") && declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			c.mime = mt
			if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
				c.ext = exts[0]
			}
		}
	}

	for _, t := range []string{"audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave"} {
		if m.Is(t) || strings.EqualFold(c.mime, t) {
			c.wav = true
			break
		}
	}
	for _, t := range seekTypes {
		if m.Is(t) || strings.EqualFold(c.mime, t) {
			c.seek = true
			break
		}
	}
	if c.ext == "" {
		c.ext = ".bin"
	}
	return c
}
