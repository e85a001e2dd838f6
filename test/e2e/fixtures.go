package e2e

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SupportedFileExtensions are the import formats the file tests generate.
// PDF, ODT and RTF go through third-party readers that are covered by the
// extract package's tests; minimal files for them are not generated here.
var SupportedFileExtensions = []string{
	".txt", ".md", ".csv", ".tsv",
	".docx", ".xlsx", ".ods",
}

// WriteMinimalFile returns the bytes of a minimal file of the given extension
// holding one row per entry, content first and translation second.
func WriteMinimalFile(ext string, entries []Entry) ([]byte, error) {
	switch ext {
	case ".txt", ".md":
		return []byte(joinRows(entries, " | ")), nil
	case ".csv":
		return []byte("Deutsch,Englisch\n" + joinRows(entries, ",")), nil
	case ".tsv":
		return []byte(joinRows(entries, "\t")), nil
	case ".docx":
		return minimalDocx(entries), nil
	case ".ods":
		return minimalOds(entries), nil
	case ".xlsx":
		return minimalXlsx(entries)
	default:
		return nil, fmt.Errorf("no fixture for %q", ext)
	}
}

func joinRows(entries []Entry, sep string) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Content + sep + e.Translation + "\n")
	}
	return b.String()
}

func minimalDocx(entries []Entry) []byte {
	var body strings.Builder
	for _, e := range entries {
		body.WriteString(`<w:p><w:r><w:t>` + html.EscapeString(e.Content) + `</w:t></w:r><w:r><w:tab/><w:t>` +
			html.EscapeString(e.Translation) + `</w:t></w:r></w:p>`)
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func minimalOds(entries []Entry) []byte {
	var rows strings.Builder
	for _, e := range entries {
		rows.WriteString(`<table:table-row><table:table-cell><text:p>` + html.EscapeString(e.Content) +
			`</text:p></table:table-cell><table:table-cell><text:p>` + html.EscapeString(e.Translation) +
			`</text:p></table:table-cell></table:table-row>`)
	}
	contentXML := `<office:document><office:body><table:table>` + rows.String() + `</table:table></office:body></office:document>`
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("content.xml")
	_, _ = fw.Write([]byte(contentXML))
	_ = w.Close()
	return buf.Bytes()
}

func minimalXlsx(entries []Entry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	for i, e := range entries {
		row := i + 1
		if err := f.SetCellValue("Sheet1", fmt.Sprintf("A%d", row), e.Content); err != nil {
			return nil, err
		}
		if err := f.SetCellValue("Sheet1", fmt.Sprintf("B%d", row), e.Translation); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
