package s3driver

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// textExtensions are served as text/plain regardless of their registered
// type, so browsers render them instead of prompting a download.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".log": true, ".csv": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true,
	".xml": true, ".sh": true, ".py": true, ".go": true, ".js": true,
	".ts": true, ".css": true, ".sql": true, ".conf": true, ".env": true,
}

// ContentTypeFor infers a Content-Type from the filename, falling back to
// content sniffing over head when the extension is unknown. forDownload
// controls whether HTML is allowed through verbatim; for inline preview it is
// downgraded to text/plain to keep stored HTML from executing in the
// gateway's origin.
func ContentTypeFor(filename string, head []byte, forDownload bool) string {
	ext := strings.ToLower(path.Ext(filename))

	var ct string
	if textExtensions[ext] {
		ct = "text/plain"
	} else if byExt := mime.TypeByExtension(ext); byExt != "" {
		ct = byExt
	} else if len(head) > 0 {
		ct = mimetype.Detect(head).String()
	} else {
		ct = "application/octet-stream"
	}

	base, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return "application/octet-stream"
	}

	if !forDownload && (base == "text/html" || base == "application/xhtml+xml") {
		base = "text/plain"
		delete(params, "charset")
	}
	if strings.HasPrefix(base, "text/") && params["charset"] == "" {
		params["charset"] = "utf-8"
	}
	return mime.FormatMediaType(base, params)
}

// AttachmentDisposition builds a Content-Disposition attachment header for
// filename, with an RFC 5987 filename* parameter for non-ASCII names.
func AttachmentDisposition(filename string) string {
	return disposition("attachment", filename)
}

// InlineDisposition builds a Content-Disposition inline header for filename.
func InlineDisposition(filename string) string {
	return disposition("inline", filename)
}

func disposition(kind, filename string) string {
	ascii := true
	for _, r := range filename {
		if r > 127 {
			ascii = false
			break
		}
	}
	fallback := strings.Map(func(r rune) rune {
		if r > 127 || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, filename)
	if ascii {
		return fmt.Sprintf(`%s; filename="%s"`, kind, fallback)
	}
	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`,
		kind, fallback, url.PathEscape(filename))
}
