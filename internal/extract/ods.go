package extract

import (
	"fmt"
	"html"
	"regexp"
)

// odsContentPath is the path to the main content inside an .ods zip.
const odsContentPath = "content.xml"

var (
	odsRow  = regexp.MustCompile(`(?s)<table:table-row[ >].*?</table:table-row>`)
	odsCell = regexp.MustCompile(`(?s)<table:(?:covered-)?table-cell(?:\s[^>]*?)?(?:/>|>(.*?)</table:(?:covered-)?table-cell>)`)
	xmlTag  = regexp.MustCompile(`<[^>]+>`)
)

// extractODS returns one line per table row, cells separated by tabs.
func extractODS(content []byte) (string, error) {
	zr, err := openZip(content, "ODS")
	if err != nil {
		return "", err
	}
	contentXML, err := readZipEntry(zr, odsContentPath)
	if err != nil {
		return "", fmt.Errorf("extract ODS: %w", err)
	}
	if contentXML == nil {
		return "", fmt.Errorf("extract ODS: %s not found", odsContentPath)
	}

	rows := odsRow.FindAllString(string(contentXML), -1)
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		matches := odsCell.FindAllStringSubmatch(row, -1)
		cells := make([]string, len(matches))
		for i, m := range matches {
			cells[i] = html.UnescapeString(xmlTag.ReplaceAllString(m[1], ""))
		}
		lines = append(lines, joinCells(cells))
	}
	return joinLines(lines), nil
}
