package render

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/nbhugo/internal/models"
)

const indent = "    "

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// imageTypes lists the extracted image mime types in preference order.
var imageTypes = []struct {
	mime, alt, ext string
	binary         bool
}{
	{"image/png", "png", ".png", true},
	{"image/jpeg", "jpeg", ".jpg", true},
	{"image/gif", "gif", ".gif", true},
	{"image/svg+xml", "svg", ".svg", false},
}

func (r *Renderer) convert(nb *models.Notebook) (string, map[string][]byte, error) {
	lang := nb.Metadata.Language()
	resources := make(map[string][]byte)
	var blocks []string

	for i, cell := range nb.Cells {
		switch cell.CellType {
		case models.CellMarkdown:
			if src := strings.TrimRight(cell.Source.String(), "\n"); src != "" {
				blocks = append(blocks, src)
			}
		case models.CellRaw:
			if src := strings.TrimRight(cell.Source.String(), "\n"); src != "" && rawIncluded(cell.RawMimetype()) {
				blocks = append(blocks, src)
			}
		case models.CellCode:
			blocks = append(blocks, "```"+lang+"\n"+strings.TrimRight(cell.Source.String(), "\n")+"\n```")
			for j, out := range cell.Outputs {
				block, err := r.convertOutput(i, j, out, resources)
				if err != nil {
					return "", nil, err
				}
				if block != "" {
					blocks = append(blocks, block)
				}
			}
		}
	}

	if len(blocks) == 0 {
		return "", resources, nil
	}
	return strings.Join(blocks, "\n\n") + "\n", resources, nil
}

func rawIncluded(mimetype string) bool {
	switch strings.ToLower(mimetype) {
	case "", "text/markdown", "text/x-markdown", "markdown":
		return true
	}
	return false
}

func (r *Renderer) convertOutput(cell, idx int, out models.Output, resources map[string][]byte) (string, error) {
	switch out.OutputType {
	case "stream":
		return indentBlock(out.Text.String()), nil
	case "error":
		tb := strings.Join(out.Traceback, "\n")
		if tb == "" {
			tb = out.EName + ": " + out.EValue
		}
		return indentBlock(ansiRe.ReplaceAllString(tb, "")), nil
	case "execute_result", "display_data":
		return r.convertData(cell, idx, out.Data, resources)
	}
	return "", nil
}

func (r *Renderer) convertData(cell, idx int, data map[string]models.MultilineString, resources map[string][]byte) (string, error) {
	for _, img := range imageTypes {
		payload, ok := data[img.mime]
		if !ok {
			continue
		}
		name := fmt.Sprintf("output_%d_%d%s", cell, idx, img.ext)
		if img.binary {
			raw, err := decodeImage(payload.String())
			if err != nil {
				return "", fmt.Errorf("render: cell %d output %d: %w", cell, idx, err)
			}
			resources[name] = raw
		} else {
			resources[name] = []byte(payload.String())
		}
		return "![" + img.alt + "](" + name + ")", nil
	}

	if md, ok := data["text/markdown"]; ok {
		return strings.TrimRight(md.String(), "\n"), nil
	}
	if html, ok := data["text/html"]; ok {
		if out, err := r.convertHTML(html.String()); err == nil && out != "" {
			return out, nil
		}
	}
	if latex, ok := data["text/latex"]; ok {
		return strings.TrimRight(latex.String(), "\n"), nil
	}
	if plain, ok := data["text/plain"]; ok {
		return indentBlock(plain.String()), nil
	}
	return "", nil
}

func (r *Renderer) convertHTML(html string) (string, error) {
	if r.htmlMode == HTMLRaw {
		return strings.TrimSpace(r.html.Sanitize(html)), nil
	}
	return r.html.Convert(html)
}

// decodeImage tolerates the line breaks some kernels insert into base64 data.
func decodeImage(payload string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)
	return base64.StdEncoding.DecodeString(clean)
}

func indentBlock(text string) string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			lines[i] = indent + line
		} else {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}
