package domain

// CellKind enumerates the five cell front-ends a program can declare.
type CellKind string

const (
	CellCode     CellKind = "code"
	CellPrompt   CellKind = "prompt"
	CellTemplate CellKind = "template"
	CellWeb      CellKind = "web"
	CellHTML     CellKind = "html"
)

// CellDecl is a single cell as loaded from a markdown program file (or built
// programmatically in tests): source text plus front-matter configuration.
// It is the compiler's input and the program store's persisted unit.
type CellDecl struct {
	ID     string
	Kind   CellKind
	Name   string
	Source string
	Config map[string]any // parsed YAML front-matter

	// NeedsUpdate latches true whenever the cell fails to compile; it clears
	// only on a subsequent successful compile of the same cell ID. Mirrors
	// the chidori cell state's needs_update flag.
	NeedsUpdate bool
}

// ProgramDecl is an ordered set of cells making up one loadable program.
type ProgramDecl struct {
	ID    string
	Cells []CellDecl
}
