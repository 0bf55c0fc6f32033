package httpx

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"local.dev/socialfeed/internal/models"
)

const (
	maxPostBody    = 64 << 20
	maxProfileBody = 20 << 20
	multipartMem   = 8 << 20
)

// mediaKind is the top-level type a form field accepts ("image" or "video").
type mediaKind string

const (
	kindImage mediaKind = "image"
	kindVideo mediaKind = "video"
)

// openMedia turns uploaded parts into media files. The content type is
// sniffed from the first 512 bytes; the extension is the fallback when
// sniffing is inconclusive. Closing is left to MultipartForm.RemoveAll and
// the returned closer.
func openMedia(headers []*multipart.FileHeader, allowed ...mediaKind) ([]models.MediaFile, func(), error) {
	var files []io.Closer
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	out := make([]models.MediaFile, 0, len(headers))
	for _, hdr := range headers {
		f, err := hdr.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("open %s: %w", hdr.Filename, err)
		}
		files = append(files, f)

		head := make([]byte, 512)
		n, _ := io.ReadFull(f, head)
		head = head[:n]

		ctype := sniff(head, hdr.Filename)
		if !accepts(ctype, allowed) {
			closeAll()
			return nil, func() {}, fmt.Errorf("unsupported media type %q for %s", ctype, hdr.Filename)
		}
		out = append(out, models.MediaFile{
			Name:        hdr.Filename,
			ContentType: ctype,
			Size:        hdr.Size,
			Body:        io.MultiReader(bytes.NewReader(head), f),
		})
	}
	return out, closeAll, nil
}

func sniff(head []byte, filename string) string {
	ctype := http.DetectContentType(head)
	if ctype != "application/octet-stream" && !strings.HasPrefix(ctype, "text/plain") {
		return ctype
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	return ctype
}

func accepts(ctype string, allowed []mediaKind) bool {
	for _, k := range allowed {
		if strings.HasPrefix(ctype, string(k)+"/") {
			return true
		}
	}
	return false
}
