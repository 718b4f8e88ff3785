package llm

import (
	"fmt"
	"strings"

	"github.com/docchat/docchat/internal/models"
)

const hitPreviewLen = 200

// FormatHits renders search hits as the textual tool result handed to
// the model: rank, source file, score and a preview of the chunk text.
func FormatHits(hits []models.SearchHit) string {
	if len(hits) == 0 {
		return "No relevant documents found."
	}

	formatted := make([]string, len(hits))
	for i, hit := range hits {
		// Truncate in runes so a multi-byte character is never split.
		preview := []rune(hit.Text)
		if len(preview) > hitPreviewLen {
			preview = preview[:hitPreviewLen]
		}
		formatted[i] = fmt.Sprintf("%d. [%s] Score: %.2f\n   %s...",
			i+1, hit.Metadata.SourceFile, hit.Score, string(preview))
	}

	return strings.Join(formatted, "\n\n")
}
