package s3driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentTypeForTextFamily(t *testing.T) {
	ct := ContentTypeFor("notes.md", nil, false)
	assert.Equal(t, "text/plain; charset=utf-8", ct)

	ct = ContentTypeFor("config.yaml", nil, false)
	assert.Equal(t, "text/plain; charset=utf-8", ct)
}

func TestContentTypeForHTMLPreviewDowngraded(t *testing.T) {
	ct := ContentTypeFor("page.html", nil, false)
	assert.Equal(t, "text/plain; charset=utf-8", ct)

	ct = ContentTypeFor("page.html", nil, true)
	assert.Contains(t, ct, "text/html")
}

func TestContentTypeForSniffsUnknownExtension(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	ct := ContentTypeFor("image.unknownext", png, false)
	assert.Equal(t, "image/png", ct)
}

func TestContentTypeForFallback(t *testing.T) {
	ct := ContentTypeFor("blob.unknownext", nil, false)
	assert.Equal(t, "application/octet-stream", ct)
}

func TestAttachmentDispositionASCII(t *testing.T) {
	d := AttachmentDisposition("report.pdf")
	assert.Equal(t, `attachment; filename="report.pdf"`, d)
}

func TestAttachmentDispositionNonASCII(t *testing.T) {
	d := AttachmentDisposition("résumé.pdf")
	assert.Contains(t, d, `filename="r_sum_.pdf"`)
	assert.Contains(t, d, "filename*=UTF-8''r%C3%A9sum%C3%A9.pdf")
}
