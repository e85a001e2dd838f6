package extract

import (
	"fmt"
	"strings"

	"github.com/lu4p/cat"
)

// extractWithCat handles ODT and RTF, whose paragraph structure lu4p/cat keeps
// as line breaks.
func extractWithCat(content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("extract document text: %w", err)
	}
	return joinLines(strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")), nil
}
