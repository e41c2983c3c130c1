// Package resume loads PDF and DOCX resumes and extracts their text before
// they are uploaded for summarisation.
package resume

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// Kind is a supported resume format.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
)

// Errors returned while loading a resume.
var (
	ErrUnsupportedType = errors.New("resume: unsupported file type, use .pdf or .docx")
	ErrCorrupt         = errors.New("resume: file could not be parsed")
	ErrEmpty           = errors.New("resume: no text found")
)

// MaxSize caps the size of a resume file.
const MaxSize = 10 << 20

// Document is a parsed resume.
type Document struct {
	Name  string
	Kind  Kind
	Data  []byte
	Text  string
	Pages int
}

// ContentType returns the MIME type for the document kind.
func (d *Document) ContentType() string {
	if d.Kind == KindDOCX {
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/pdf"
}

// KindOf maps a file name to its Kind by extension.
func KindOf(name string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF, nil
	case ".docx":
		return KindDOCX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(name))
	}
}

// Load reads and parses the resume at path.
func Load(path string) (*Document, error) {
	if _, err := KindOf(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	if info.Size() > MaxSize {
		return nil, fmt.Errorf("resume: %s is %d bytes, limit is %d", path, info.Size(), MaxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	return FromBytes(filepath.Base(path), data)
}

// FromBytes parses an in-memory resume. The name decides the format.
func FromBytes(name string, data []byte) (*Document, error) {
	kind, err := KindOf(name)
	if err != nil {
		return nil, err
	}

	doc := &Document{Name: name, Kind: kind, Data: data}
	switch kind {
	case KindPDF:
		doc.Text, doc.Pages, err = pdfText(data)
	case KindDOCX:
		doc.Text, err = docxText(data)
		doc.Pages = 1
	}
	if err != nil {
		return nil, err
	}

	doc.Text = normalize(doc.Text)
	if doc.Text == "" {
		return nil, ErrEmpty
	}
	return doc, nil
}

func pdfText(data []byte) (text string, pages int, err error) {
	// The pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var b strings.Builder
	pages = r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(t)
		b.WriteString("\n")
	}
	return b.String(), pages, nil
}

var (
	paragraphEnd = regexp.MustCompile(`</w:p>`)
	xmlTag       = regexp.MustCompile(`<[^>]+>`)
)

func docxText(data []byte) (string, error) {
	d, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer d.Close()

	content := d.Editable().GetContent()
	content = paragraphEnd.ReplaceAllString(content, "\n")
	content = xmlTag.ReplaceAllString(content, "")
	return unescapeXML(content), nil
}

var xmlEntities = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}

// normalize trims every line and drops blank ones.
func normalize(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
