package render

import "strings"

// Normalize evens out the vertical whitespace around code and output blocks:
// any run of blank lines after a closing fence becomes exactly one, and blank
// lines between two indented output lines are removed. Lines inside fenced
// code blocks are never touched.
func Normalize(md string) string {
	lines := strings.Split(md, "\n")
	// The element after the final newline is not a line of its own.
	last := len(lines) - 1

	out := make([]string, 0, len(lines))
	fence := ""
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if fence != "" {
			out = append(out, line)
			if closesFence(line, fence) {
				fence = ""
				i = collapseBlankRun(lines, i, last, &out)
			}
			continue
		}
		if marker := openingFence(line); marker != "" {
			fence = marker
			out = append(out, line)
			continue
		}
		out = append(out, line)
		if isOutputLine(line) {
			j := i + 1
			for j < last && lines[j] == "" {
				j++
			}
			if j > i+1 && j < len(lines) && strings.HasPrefix(lines[j], outputIndent) {
				i = j - 1
			}
		}
	}
	return strings.Join(out, "\n")
}

const outputIndent = "    "

func isOutputLine(line string) bool {
	return len(line) > len(outputIndent) && strings.HasPrefix(line, outputIndent) && line[len(outputIndent)] != ' ' && line[len(outputIndent)] != '\t'
}

// openingFence returns the fence marker a line opens, or "".
func openingFence(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) >= len(outputIndent) {
		return ""
	}
	for _, ch := range []byte{'`', '~'} {
		n := 0
		for n < len(trimmed) && trimmed[n] == ch {
			n++
		}
		if n >= 3 {
			return trimmed[:n]
		}
	}
	return ""
}

func closesFence(line, marker string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, marker) && strings.Trim(trimmed, marker[:1]) == ""
}

// collapseBlankRun keeps a single blank line of the run following lines[i]
// and returns the index of the run's last line.
func collapseBlankRun(lines []string, i, last int, out *[]string) int {
	j := i + 1
	for j < last && lines[j] == "" {
		j++
	}
	if j > i+1 {
		*out = append(*out, "")
	}
	return j - 1
}
