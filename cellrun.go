// Package cellrun is the library facade over the kernel: the same
// convenience surface cmd/server wires by hand, packaged as importable
// constructors and type aliases instead of making a library consumer
// reach into internal/.
package cellrun

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lucid-cells/cellrun/internal/compiler"
	"github.com/lucid-cells/cellrun/internal/domain"
	"github.com/lucid-cells/cellrun/internal/instance"
	"github.com/lucid-cells/cellrun/internal/mdloader"
	"github.com/lucid-cells/cellrun/internal/observer"
	"github.com/lucid-cells/cellrun/internal/storage"
)

// SV is the kernel's tagged-union value type.
type SV = domain.SV

// CellKind names a cell's compilation strategy.
type CellKind = domain.CellKind

// Cell kind constants, re-exported so a library consumer building a program
// programmatically never has to import internal/domain directly.
const (
	CellCode     = domain.CellCode
	CellPrompt   = domain.CellPrompt
	CellTemplate = domain.CellTemplate
	CellWeb      = domain.CellWeb
	CellHTML     = domain.CellHTML
)

// ProgramDecl and CellDecl are the program/cell declaration types a loader
// produces and a Kernel compiles.
type ProgramDecl = domain.ProgramDecl
type CellDecl = domain.CellDecl

// Event is one runtime event an instance emits to its observers.
type Event = domain.Event

// Kernel owns the shared compiler and store every instance it creates uses;
// callers typically keep one Kernel per process, shared across instances
// the way a server keeps one executor for its whole process.
type Kernel struct {
	compiler *compiler.Compiler
	store    storage.Store
	log      zerolog.Logger
}

// KernelOption configures a Kernel at construction time.
type KernelOption func(*Kernel)

// WithStore overrides the default in-memory store with a caller-provided one
// (typically storage.NewBunStore for production use).
func WithStore(s storage.Store) KernelOption {
	return func(k *Kernel) { k.store = s }
}

// WithLogger overrides the default no-op logger.
func WithLogger(log zerolog.Logger) KernelOption {
	return func(k *Kernel) { k.log = log }
}

// NewKernel builds a Kernel. openAIKey may be empty for programs that never
// fire a prompt cell.
func NewKernel(openAIKey string, opts ...KernelOption) *Kernel {
	k := &Kernel{
		compiler: compiler.New(openAIKey),
		store:    storage.NewMemoryStore(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// LoadMarkdown parses a markdown-fenced program into cell declarations
// without compiling or running it, for callers that want to inspect or
// rewrite a program before handing it to an Instance.
func LoadMarkdown(programID, markdown string) (ProgramDecl, error) {
	return mdloader.Load(programID, markdown)
}

// NewInstance creates a fresh Instance bound to this Kernel's compiler and
// store, with its own private observer manager.
func (k *Kernel) NewInstance() *instance.Instance {
	return instance.New(uuid.New(), k.compiler, k.store, observer.NewManager(), k.log)
}

// RunMarkdown is the one-call convenience path: load a markdown program,
// compile it into a fresh instance, and return the instance ready to Step
// or Play. It does not run any ticks itself.
func (k *Kernel) RunMarkdown(ctx context.Context, programID, markdown string) (*instance.Instance, error) {
	program, err := LoadMarkdown(programID, markdown)
	if err != nil {
		return nil, fmt.Errorf("cellrun: load markdown: %w", err)
	}
	ins := k.NewInstance()
	if err := ins.LoadProgram(ctx, program); err != nil {
		return nil, fmt.Errorf("cellrun: load program: %w", err)
	}
	return ins, nil
}

// EventCounts summarizes an instance's persisted event log by type, built
// from the event log rather than a live in-memory metrics collector, since
// this kernel never keeps execution-graph state outside one process.
type EventCounts struct {
	Total  int
	ByType map[domain.EventType]int
}

// Summarize tallies every persisted event for instanceID by type.
func (k *Kernel) Summarize(ctx context.Context, instanceID string) (EventCounts, error) {
	events, err := k.store.ListEventsByInstance(ctx, instanceID)
	if err != nil {
		return EventCounts{}, err
	}
	counts := EventCounts{Total: len(events), ByType: make(map[domain.EventType]int)}
	for _, ev := range events {
		counts.ByType[ev.EventType()]++
	}
	return counts, nil
}
