package parser

import (
	"path/filepath"
	"strings"
)

// Kind is the content type of a source document.
type Kind int

const (
	KindUnsupported Kind = iota
	KindPDF
	KindHTML
	KindMarkdown
	KindText
	KindDOCX
	KindXLSX
)

var kindNames = map[Kind]string{
	KindUnsupported: "unsupported",
	KindPDF:         "pdf",
	KindHTML:        "html",
	KindMarkdown:    "markdown",
	KindText:        "text",
	KindDOCX:        "docx",
	KindXLSX:        "xlsx",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnsupported]
}

// KindForPath maps a file extension to its Kind.
func KindForPath(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF
	case ".html", ".htm":
		return KindHTML
	case ".md", ".markdown":
		return KindMarkdown
	case ".txt":
		return KindText
	case ".docx":
		return KindDOCX
	case ".xlsx":
		return KindXLSX
	default:
		return KindUnsupported
	}
}
