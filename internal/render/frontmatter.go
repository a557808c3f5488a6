package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/nbhugo/internal/models"
)

func (r *Renderer) frontMatter(fm models.FrontMatter) (string, error) {
	switch r.format {
	case FormatJSON:
		raw, err := fm.MarshalJSON()
		if err != nil {
			return "", fmt.Errorf("render: front matter: %w", err)
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return "", fmt.Errorf("render: front matter: %w", err)
		}
		return buf.String(), nil
	case FormatYAML, "":
		return yamlFrontMatter(fm)
	default:
		return "", fmt.Errorf("render: unknown front matter format %q", r.format)
	}
}

// yamlFrontMatter keeps the known keys in their canonical order, which a plain
// map encode would lose.
func yamlFrontMatter(fm models.FrontMatter) (string, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range fm.Fields() {
		var value yaml.Node
		if err := value.Encode(f.Value); err != nil {
			return "", fmt.Errorf("render: front matter %s: %w", f.Key, err)
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: f.Key}, &value)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return "", fmt.Errorf("render: front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("render: front matter: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
