package render

import (
	"strings"

	"github.com/starford/nbhugo/internal/models"
)

// Preprocessor rewrites a notebook before conversion.
type Preprocessor interface {
	Preprocess(nb *models.Notebook) error
}

// PreprocessorFunc adapts a function to Preprocessor.
type PreprocessorFunc func(nb *models.Notebook) error

func (f PreprocessorFunc) Preprocess(nb *models.Notebook) error { return f(nb) }

// CleanCodeCells trims surrounding whitespace from every code cell source and
// drops code cells that end up empty. Running it twice is a no-op.
type CleanCodeCells struct{}

func (CleanCodeCells) Preprocess(nb *models.Notebook) error {
	kept := nb.Cells[:0]
	for _, cell := range nb.Cells {
		if cell.CellType == models.CellCode {
			cell.Source = models.MultilineString(strings.TrimSpace(cell.Source.String()))
			if cell.Source == "" {
				continue
			}
		}
		kept = append(kept, cell)
	}
	nb.Cells = kept
	return nil
}
