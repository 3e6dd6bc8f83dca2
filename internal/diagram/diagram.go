// Package diagram renders a workflow's step sequence as a diagram, with
// template support for the text formats.
package diagram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/chazuruo/drover/internal/workflow"
)

// Format represents the diagram output format.
type Format string

const (
	// FormatMermaid renders a Mermaid flowchart.
	FormatMermaid Format = "mermaid"
	// FormatDOT renders a Graphviz digraph.
	FormatDOT Format = "dot"
	// FormatJSON renders the graph structure as JSON.
	FormatJSON Format = "json"
)

// Node is one step in the diagram.
type Node struct {
	// key is the diagram-internal identifier; step ids may contain
	// characters the text formats cannot carry.
	key string

	ID    string            `json:"id"`
	Type  workflow.StepType `json:"type"`
	Label string            `json:"label"`
}

// Edge connects two consecutive steps, identified by step id.
type Edge struct {
	fromKey string
	toKey   string

	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the diagram structure: one node per step in document order, one
// edge per consecutive pair. A single-step workflow has no edges.
type Graph struct {
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Build derives the graph from a workflow's step sequence.
func Build(wf *workflow.Workflow) *Graph {
	g := &Graph{Name: wf.Name}
	for i, step := range wf.Steps {
		g.Nodes = append(g.Nodes, Node{
			key:   fmt.Sprintf("s%d", i),
			ID:    step.ID,
			Type:  step.Type,
			Label: step.ID,
		})
	}
	for i := 1; i < len(g.Nodes); i++ {
		g.Edges = append(g.Edges, Edge{
			fromKey: g.Nodes[i-1].key,
			toKey:   g.Nodes[i].key,
			From:    g.Nodes[i-1].ID,
			To:      g.Nodes[i].ID,
		})
	}
	return g
}

// Exporter renders workflows in a fixed format.
type Exporter struct {
	format   Format
	outPath  string
	template *template.Template
}

// Options contains exporter options.
type Options struct {
	Format Format
	// Out writes the rendering to a file as well; "" or "-" means stdout
	// only.
	Out string
	// CustomTemplate overrides the built-in template for the text formats.
	CustomTemplate string
}

// NewExporter creates an exporter for the requested format.
func NewExporter(opts Options) (*Exporter, error) {
	e := &Exporter{
		format:  opts.Format,
		outPath: opts.Out,
	}

	if opts.CustomTemplate != "" {
		data, err := os.ReadFile(opts.CustomTemplate)
		if err != nil {
			return nil, fmt.Errorf("reading template file: %w", err)
		}
		tmpl, err := template.New("diagram").Parse(string(data))
		if err != nil {
			return nil, err
		}
		e.template = tmpl
		return e, nil
	}

	var tmplContent string
	switch e.format {
	case FormatMermaid:
		tmplContent = builtinMermaidTemplate
	case FormatDOT:
		tmplContent = builtinDOTTemplate
	case FormatJSON:
		// JSON goes through the encoder so labels are escaped correctly.
		return e, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", e.format)
	}

	tmpl, err := template.New("diagram").Parse(tmplContent)
	if err != nil {
		return nil, err
	}
	e.template = tmpl
	return e, nil
}

// Export renders a workflow's diagram and returns it; when an output path
// was configured the rendering is written there as well.
func (e *Exporter) Export(wf *workflow.Workflow) (string, error) {
	g := Build(wf)

	var output string
	if e.format == FormatJSON && e.template == nil {
		data, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding graph: %w", err)
		}
		output = string(data) + "\n"
	} else {
		var buf bytes.Buffer
		if err := e.template.Execute(&buf, e.templateData(g)); err != nil {
			return "", fmt.Errorf("executing template: %w", err)
		}
		output = buf.String()
	}

	if e.outPath != "" && e.outPath != "-" {
		if err := os.WriteFile(e.outPath, []byte(output), 0644); err != nil {
			return "", fmt.Errorf("writing output file: %w", err)
		}
	}
	return output, nil
}

// ExportToFile renders a workflow's diagram into path.
func (e *Exporter) ExportToFile(wf *workflow.Workflow, path string) error {
	output, err := e.Export(wf)
	if err != nil {
		return err
	}
	if e.outPath == path {
		return nil
	}
	return os.WriteFile(path, []byte(output), 0644)
}

// templateData pre-renders the per-format node declarations so the
// templates stay a plain walk over lines.
func (e *Exporter) templateData(g *Graph) map[string]interface{} {
	nodes := make([]map[string]interface{}, len(g.Nodes))
	for i, n := range g.Nodes {
		var decl string
		switch e.format {
		case FormatDOT:
			decl = fmt.Sprintf("%s [label=\"%s\\n(%s)\" shape=%s];",
				n.key, dotEscape(n.Label), n.Type, dotShape(n.Type))
		default:
			decl = fmt.Sprintf("%s%s", n.key, mermaidShape(n.Type, n.Label))
		}
		nodes[i] = map[string]interface{}{
			"key":   n.key,
			"id":    n.ID,
			"type":  string(n.Type),
			"label": n.Label,
			"decl":  decl,
		}
	}

	edges := make([]map[string]interface{}, len(g.Edges))
	for i, edge := range g.Edges {
		edges[i] = map[string]interface{}{
			"from": edge.fromKey,
			"to":   edge.toKey,
		}
	}

	return map[string]interface{}{
		"Name":  g.Name,
		"Nodes": nodes,
		"Edges": edges,
	}
}

// mermaidShape picks a bracket shape per step type: rounded for prompts,
// rectangles for commands, hexagons for agents, parallelograms for
// apply_diff.
func mermaidShape(t workflow.StepType, label string) string {
	escaped := strings.ReplaceAll(label, `"`, "#quot;")
	text := fmt.Sprintf("%s<br/>%s", escaped, t)
	switch t {
	case workflow.StepPrompt:
		return fmt.Sprintf("(\"%s\")", text)
	case workflow.StepAgent:
		return fmt.Sprintf("{{\"%s\"}}", text)
	case workflow.StepApplyDiff:
		return fmt.Sprintf("[/\"%s\"/]", text)
	default:
		return fmt.Sprintf("[\"%s\"]", text)
	}
}

func dotShape(t workflow.StepType) string {
	switch t {
	case workflow.StepPrompt:
		return "ellipse"
	case workflow.StepAgent:
		return "hexagon"
	case workflow.StepApplyDiff:
		return "parallelogram"
	default:
		return "box"
	}
}

func dotEscape(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// builtinMermaidTemplate is the default Mermaid template.
const builtinMermaidTemplate = "flowchart TD\n{{range .Nodes}}    {{.decl}}\n{{end}}{{range .Edges}}    {{.from}} --> {{.to}}\n{{end}}"

// builtinDOTTemplate is the default Graphviz template.
const builtinDOTTemplate = "digraph workflow {\n    rankdir=TB;\n    label=\"{{.Name}}\";\n{{range .Nodes}}    {{.decl}}\n{{end}}{{range .Edges}}    {{.from}} -> {{.to}};\n{{end}}}\n"
