package parser

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"document-chat/internal/models"
)

// Normalizer turns one file into plain text units.
type Normalizer interface {
	Normalize(filePath string) ([]models.TextUnit, error)
}

// Document is a parsed source file.
type Document struct {
	Path  string
	Kind  Kind
	Units []models.TextUnit
}

const defaultPageNumber = 1

var normalizers = map[Kind]Normalizer{
	KindPDF:      pdfNormalizer{},
	KindHTML:     htmlNormalizer{},
	KindMarkdown: markdownNormalizer{},
	KindText:     textNormalizer{},
	KindDOCX:     docxNormalizer{},
	KindXLSX:     xlsxNormalizer{},
}

// NormalizerFor returns the normalizer for k, or ErrUnsupportedInput.
func NormalizerFor(k Kind) (Normalizer, error) {
	n, ok := normalizers[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedInput, k)
	}
	return n, nil
}

// Normalize parses filePath according to its extension.
func Normalize(filePath string) (*Document, error) {
	kind := KindForPath(filePath)
	n, err := NormalizerFor(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	units, err := n.Normalize(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}
	for i := range units {
		units[i].Source = filePath
		units[i].ContentType = kind.String()
	}

	log.Debug().Str("file", filePath).Str("kind", kind.String()).Int("units", len(units)).Msg("Normalized document")
	return &Document{Path: filePath, Kind: kind, Units: units}, nil
}

type pdfNormalizer struct{}

func (pdfNormalizer) Normalize(filePath string) ([]models.TextUnit, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var units []models.TextUnit
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		text := normalizeWhitespace(pageText)
		if text == "" {
			continue
		}
		units = append(units, models.TextUnit{Content: text, PageNumber: i})
	}
	return units, nil
}

type htmlNormalizer struct{}

func (htmlNormalizer) Normalize(filePath string) ([]models.TextUnit, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	title, text, err := ExtractHTML(f)
	if err != nil {
		return nil, err
	}
	return singleUnit(text, title), nil
}

type markdownNormalizer struct{}

func (markdownNormalizer) Normalize(filePath string) ([]models.TextUnit, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert(data, &buf); err != nil {
		return nil, err
	}

	_, text, err := ExtractHTML(&buf)
	if err != nil {
		return nil, err
	}
	return singleUnit(text, ""), nil
}

type textNormalizer struct{}

func (textNormalizer) Normalize(filePath string) ([]models.TextUnit, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return singleUnit(normalizeWhitespace(string(data)), ""), nil
}

type docxNormalizer struct{}

func (docxNormalizer) Normalize(filePath string) ([]models.TextUnit, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// the content is the raw document XML, paragraphs are w:p elements
	_, text, err := ExtractHTML(strings.NewReader(r.Editable().GetContent()))
	if err != nil {
		return nil, err
	}
	return singleUnit(text, ""), nil
}

type xlsxNormalizer struct{}

func (xlsxNormalizer) Normalize(filePath string) ([]models.TextUnit, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var units []models.TextUnit
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			log.Warn().Err(err).Str("sheet", sheetName).Msg("Skipping unreadable sheet")
			continue
		}
		var text strings.Builder
		for _, row := range rows {
			line := joinCells(row)
			if line == "" {
				continue
			}
			text.WriteString(line)
			text.WriteString("\n")
		}
		content := strings.TrimSpace(text.String())
		if content == "" {
			continue
		}
		units = append(units, models.TextUnit{
			Content:    content,
			PageNumber: sheetNum + 1, // 1-based indexing
			Title:      sheetName,
		})
	}
	return units, nil
}

func joinCells(row []string) string {
	cells := make([]string, 0, len(row))
	for _, cell := range row {
		if cell = strings.Join(strings.Fields(cell), " "); cell != "" {
			cells = append(cells, cell)
		}
	}
	return strings.Join(cells, cellSeparator)
}

func singleUnit(text, title string) []models.TextUnit {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []models.TextUnit{{Content: text, PageNumber: defaultPageNumber, Title: title}}
}
