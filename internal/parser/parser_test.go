package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"document-chat/internal/models"
)

const tarifasHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Tarifas  Banco Ejemplo</title>
  <style>body { color: red; }</style>
  <script>var tracking = "no indexar";</script>
</head>
<body>
  <nav><a href="/">Inicio</a></nav>
  <h1>Tarifas de servicios</h1>
  <p>La tarifa de mantenimiento es <b>$5</b> al mes.</p>
  <table>
    <tr><th>Servicio</th><th>Tarifa</th></tr>
    <tr><td>Estado de cuenta</td><td>$2.50</td></tr>
  </table>
  <noscript>Active JavaScript</noscript>
</body>
</html>`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestKindForPath(t *testing.T) {
	tests := map[string]Kind{
		"a.pdf":          KindPDF,
		"A.PDF":          KindPDF,
		"page.html":      KindHTML,
		"page.htm":       KindHTML,
		"notes.md":       KindMarkdown,
		"readme.txt":     KindText,
		"contrato.docx":  KindDOCX,
		"tarifas.xlsx":   KindXLSX,
		"archivo.xyz":    KindUnsupported,
		"sin_extension":  KindUnsupported,
		"dir/imagen.png": KindUnsupported,
	}
	for path, want := range tests {
		assert.Equal(t, want, KindForPath(path), path)
	}
	assert.Equal(t, "pdf", KindPDF.String())
	assert.Equal(t, "unsupported", Kind(99).String())
}

func TestExtractHTML(t *testing.T) {
	title, text, err := ExtractHTML(strings.NewReader(tarifasHTML))
	require.NoError(t, err)

	assert.Equal(t, "Tarifas Banco Ejemplo", title)
	assert.Contains(t, text, "La tarifa de mantenimiento es $5 al mes.")
	assert.Contains(t, text, "Servicio | Tarifa\nEstado de cuenta | $2.50")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "Active JavaScript")
	assert.NotContains(t, text, "  ")
	assert.Equal(t, strings.TrimSpace(text), text)
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "  uno   dos \r\n\n\n\n tres\t\tcuatro \n\n"
	assert.Equal(t, "uno dos\n\ntres cuatro", normalizeWhitespace(in))
}

func TestNormalize_HTML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tarifas.html", tarifasHTML)

	doc, err := Normalize(path)
	require.NoError(t, err)
	assert.Equal(t, KindHTML, doc.Kind)
	require.Len(t, doc.Units, 1)

	unit := doc.Units[0]
	assert.Equal(t, path, unit.Source)
	assert.Equal(t, "html", unit.ContentType)
	assert.Equal(t, 1, unit.PageNumber)
	assert.Equal(t, "Tarifas Banco Ejemplo", unit.Title)
	assert.Contains(t, unit.Content, "$5")
}

func TestNormalize_Markdown(t *testing.T) {
	path := writeFile(t, t.TempDir(), "faq.md", "# Preguntas\n\nLa tarifa es **$5**.\n\n| Servicio | Tarifa |\n|---|---|\n| ACH | $1 |\n")

	doc, err := Normalize(path)
	require.NoError(t, err)
	require.Len(t, doc.Units, 1)
	assert.Contains(t, doc.Units[0].Content, "La tarifa es $5.")
	assert.Contains(t, doc.Units[0].Content, "ACH | $1")
	assert.NotContains(t, doc.Units[0].Content, "**")
}

func TestNormalize_Text(t *testing.T) {
	path := writeFile(t, t.TempDir(), "nota.txt", "  hola   mundo \n\n\n adiós ")

	doc, err := Normalize(path)
	require.NoError(t, err)
	require.Len(t, doc.Units, 1)
	assert.Equal(t, "hola mundo\n\nadiós", doc.Units[0].Content)
}

func TestNormalize_EmptyTextHasNoUnits(t *testing.T) {
	path := writeFile(t, t.TempDir(), "vacio.txt", " \n ")

	doc, err := Normalize(path)
	require.NoError(t, err)
	assert.Empty(t, doc.Units)
}

func TestNormalize_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tarifas.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Servicio"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Tarifa"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Mantenimiento"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "$5"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	doc, err := Normalize(path)
	require.NoError(t, err)
	require.Len(t, doc.Units, 1)
	assert.Equal(t, "Servicio | Tarifa\nMantenimiento | $5", doc.Units[0].Content)
	assert.Equal(t, "Sheet1", doc.Units[0].Title)
	assert.Equal(t, "xlsx", doc.Units[0].ContentType)
}

func TestNormalize_Unsupported(t *testing.T) {
	path := writeFile(t, t.TempDir(), "datos.xyz", "???")

	_, err := Normalize(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUnsupportedInput)
}

func TestNormalize_BrokenPDF(t *testing.T) {
	path := writeFile(t, t.TempDir(), "roto.pdf", "esto no es un pdf")

	_, err := Normalize(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrUnsupportedInput)
}

func TestNormalizerFor(t *testing.T) {
	for _, k := range []Kind{KindPDF, KindHTML, KindMarkdown, KindText, KindDOCX, KindXLSX} {
		n, err := NormalizerFor(k)
		require.NoError(t, err, k.String())
		assert.NotNil(t, n)
	}
	_, err := NormalizerFor(KindUnsupported)
	assert.ErrorIs(t, err, models.ErrUnsupportedInput)
}
