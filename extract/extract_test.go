package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupported(t *testing.T) {
	t.Parallel()

	assert.True(t, Supported("/docs/contract.pdf"))
	assert.True(t, Supported("/docs/notes.DOCX"))
	assert.True(t, Supported("/docs/readme.md"))
	assert.False(t, Supported("/docs/archive.zip"))
	assert.False(t, Supported("/docs/noext"))
}

func TestTextPlainFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("the rate is 80%"), 0o644))

	assert.Equal(t, "the rate is 80%", Text(path))
}

func TestTextMissingFile(t *testing.T) {
	t.Parallel()

	out := Text("/nonexistent/contract.pdf")
	assert.Contains(t, out, "Document not found at path: /nonexistent/contract.pdf")
}

func TestTextCorruptPDF(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o644))

	out := Text(path)
	assert.Contains(t, out, "Could not load document broken.pdf")
}

func TestTextUnsupportedType(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "archive.zip")
	require.NoError(t, os.WriteFile(path, []byte("zip"), 0o644))

	out := Text(path)
	assert.Contains(t, out, "unsupported document type")
}

func TestBytesHTML(t *testing.T) {
	t.Parallel()

	html := `<html><head><style>p{color:red}</style></head>
<body><h1>Contract X</h1><p>The rate is 80%.</p><script>alert(1)</script></body></html>`

	out := Bytes([]byte(html), "page.html")
	assert.Contains(t, out, "Contract X")
	assert.Contains(t, out, "The rate is 80%.")
	assert.NotContains(t, out, "alert")
	assert.NotContains(t, out, "color:red")
}

func TestBytesMarkdown(t *testing.T) {
	t.Parallel()

	out := Bytes([]byte("# Title\n\nbody text"), "readme.md")
	assert.Equal(t, "# Title\n\nbody text", out)
}
