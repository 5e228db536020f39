// Package mdloader parses a program written as a single markdown file into
// CellDecls: each fenced code block becomes one cell, with the block's info
// string (after the language tag) carrying YAML front-matter-style
// configuration.
package mdloader

import (
	"bufio"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lucid-cells/cellrun/internal/domain"
)

var kindByLang = map[string]domain.CellKind{
	"code":       domain.CellCode,
	"python":     domain.CellCode,
	"javascript": domain.CellCode,
	"prompt":     domain.CellPrompt,
	"template":   domain.CellTemplate,
	"web":        domain.CellWeb,
	"html":       domain.CellHTML,
}

// Load parses markdown text into an ordered list of cell declarations.
// Fence header syntax: "```code name=foo" — the language tag selects the
// cell kind, and the remainder of the header line is parsed as
// whitespace-separated `key=value` pairs, each value decoded as YAML and
// kept as the raw string when it does not decode; a field without '=' is
// ignored.
func Load(programID, md string) (domain.ProgramDecl, error) {
	scanner := bufio.NewScanner(strings.NewReader(md))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cells []domain.CellDecl
	var inFence bool
	var kind domain.CellKind
	var config map[string]any
	var body strings.Builder
	seq := 0

	flush := func() {
		seq++
		name, _ := config["name"].(string)
		if name == "" {
			name = fmt.Sprintf("cell_%d", seq)
		}
		cells = append(cells, domain.CellDecl{
			ID:     fmt.Sprintf("%s#%d", programID, seq),
			Kind:   kind,
			Name:   name,
			Source: strings.TrimRight(body.String(), "\n"),
			Config: config,
		})
		body.Reset()
		config = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if !inFence {
			if strings.HasPrefix(trimmed, "```") {
				header := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
				fields := strings.Fields(header)
				if len(fields) == 0 {
					continue // a closing fence with no header, or a non-cell block
				}
				lang := fields[0]
				k, ok := kindByLang[lang]
				if !ok {
					continue // not a cell fence (e.g. a plain ```text block)
				}
				kind = k
				config = parseHeaderConfig(fields[1:])
				inFence = true
			}
			continue
		}
		if strings.HasPrefix(trimmed, "```") {
			inFence = false
			flush()
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return domain.ProgramDecl{}, fmt.Errorf("mdloader: %w", err)
	}

	return domain.ProgramDecl{ID: programID, Cells: cells}, nil
}

func parseHeaderConfig(fields []string) map[string]any {
	cfg := map[string]any{}
	for _, f := range fields {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := kv[0], kv[1]
		var parsed any
		if err := yaml.Unmarshal([]byte(val), &parsed); err == nil {
			cfg[key] = parsed
		} else {
			cfg[key] = val
		}
	}
	return cfg
}
