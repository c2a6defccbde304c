package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/domain"
)

func TestExtractPlainText(t *testing.T) {
	r := NewRegistry()

	text, err := r.Extract("txt", []byte("  hello\n\n  world\t again  "))
	require.NoError(t, err)
	assert.Equal(t, "hello world again", text)
}

func TestExtractUnsupportedType(t *testing.T) {
	r := NewRegistry()

	_, err := r.Extract("exe", []byte("binary"))
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestExtractCaseInsensitiveType(t *testing.T) {
	r := NewRegistry()

	text, err := r.Extract("TXT", []byte("upper case extension"))
	require.NoError(t, err)
	assert.Equal(t, "upper case extension", text)
}

func TestExtractHTMLStripsBoilerplate(t *testing.T) {
	r := NewRegistry()

	html := `<html><head><style>body { color: red }</style></head><body>
		<nav>site navigation</nav>
		<header>page header</header>
		<p>The actual content.</p>
		<script>alert("x")</script>
		<footer>copyright</footer>
	</body></html>`

	text, err := r.Extract("html", []byte(html))
	require.NoError(t, err)

	assert.Contains(t, text, "The actual content.")
	assert.NotContains(t, text, "site navigation")
	assert.NotContains(t, text, "page header")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "copyright")
	assert.NotContains(t, text, "color: red")
}

func TestExtractDOCX(t *testing.T) {
	r := NewRegistry()

	docXML := `<?xml version="1.0"?>
		<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
			<w:body>
				<w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
				<w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>
			</w:body>
		</w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(docXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	text, err := r.Extract("docx", buf.Bytes())
	require.NoError(t, err)

	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second paragraph.")
}

func TestExtractCorruptDOCX(t *testing.T) {
	r := NewRegistry()

	_, err := r.Extract("docx", []byte("not a zip archive"))
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestExtractCorruptPDF(t *testing.T) {
	r := NewRegistry()

	_, err := r.Extract("pdf", []byte("not a pdf"))
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestRegisterCustomType(t *testing.T) {
	r := NewRegistry()
	r.Register("csv", func(data []byte) (string, error) {
		return string(data), nil
	})

	assert.True(t, r.Supported("csv"))

	text, err := r.Extract("csv", []byte("a,b,c"))
	require.NoError(t, err)
	assert.Equal(t, "a,b,c", text)
}

func TestSupported(t *testing.T) {
	r := NewRegistry()

	for _, ft := range []string{"txt", "pdf", "docx", "doc", "html"} {
		assert.True(t, r.Supported(ft), ft)
	}
	assert.False(t, r.Supported("csv"))
}
