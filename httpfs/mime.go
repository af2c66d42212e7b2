package httpfs

import (
	"mime"
	"path/filepath"
)

// mimeType returns the MIME type for name by extension, falling back to a
// generic octet stream. No example repo in the corpus ships its own MIME
// table or a MIME-lookup library; stdlib's is the idiomatic choice, the
// same way the teacher reaches for stdlib when nothing in the ecosystem
// covers a concern (e.g. encoding/binary throughout).
func mimeType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
