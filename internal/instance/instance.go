// Package instance implements the Instance Loop: the stateful object that
// owns one running program's compiled graph, its branching execution
// history, and the external message/event contract that lets an observer
// play, pause, step, revert and mutate it.
package instance

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lucid-cells/cellrun/internal/compiler"
	"github.com/lucid-cells/cellrun/internal/domain"
	"github.com/lucid-cells/cellrun/internal/execgraph"
	"github.com/lucid-cells/cellrun/internal/observer"
	"github.com/lucid-cells/cellrun/internal/resolver"
	"github.com/lucid-cells/cellrun/internal/state"
	"github.com/lucid-cells/cellrun/internal/stepper"
	"github.com/lucid-cells/cellrun/internal/storage"
)

// Instance is one running program.
type Instance struct {
	ID uuid.UUID

	compiler *compiler.Compiler
	store    storage.Store
	obs      *observer.Manager
	log      zerolog.Logger

	mu            sync.Mutex
	cells         []domain.CellDecl
	graph         *resolver.Graph
	execGraph     *execgraph.Graph
	currentBranch string
	justFired     map[int]bool
	quiesced      bool
	playing       bool
	stopPlay      chan struct{}

	seq atomic.Int64
}

func New(id uuid.UUID, c *compiler.Compiler, store storage.Store, obs *observer.Manager, log zerolog.Logger) *Instance {
	eg := execgraph.New()
	root := eg.Root()
	ins := &Instance{
		ID:            id,
		compiler:      c,
		store:         store,
		obs:           obs,
		log:           log,
		execGraph:     eg,
		currentBranch: root.Branch,
	}
	if c != nil {
		c.Invoke = ins.invokeFunction
	}
	return ins
}

// invokeFunction resolves fnName against the live graph and calls it
// against the current head snapshot, outside of the tick loop — the path a
// web cell's route handler uses to answer an HTTP request synchronously.
func (ins *Instance) invokeFunction(ctx context.Context, fnName string, kwargs map[string]domain.SV) (domain.SV, error) {
	ins.mu.Lock()
	g := ins.graph
	branch := ins.currentBranch
	ins.mu.Unlock()

	if g == nil {
		return domain.SV{}, fmt.Errorf("instance: no program loaded")
	}
	op, ok := g.ByName[fnName]
	if !ok || op.Call == nil {
		return domain.SV{}, fmt.Errorf("instance: %q is not a callable function", fnName)
	}
	head, ok := ins.execGraph.Head(branch)
	if !ok {
		return domain.SV{}, fmt.Errorf("instance: branch %q has no head", branch)
	}
	out, err := op.Call(ctx, head, nil, kwargs)
	if err != nil {
		return domain.SV{}, err
	}
	return out.Output, nil
}

func (ins *Instance) nextSeq() int64 { return ins.seq.Add(1) }

// LoadProgram compiles every cell of program and, if compilation succeeds,
// replaces the instance's live dependency graph. A per-cell compile
// failure does not touch the previously-loaded graph: the failing cell's
// NeedsUpdate latch is set and a CellCompileFailed event is emitted.
func (ins *Instance) LoadProgram(ctx context.Context, program domain.ProgramDecl) error {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	cells := program.Cells
	g, err := compiler.CompileProgram(ins.compiler, cells)
	head, _ := ins.execGraph.Head(ins.currentBranch)
	counter := int64(0)
	if head != nil {
		counter = head.Counter
	}
	if err != nil {
		for _, c := range cells {
			if c.NeedsUpdate {
				ins.emit(domain.NewCellCompileFailedEvent(ins.ID, ins.nextSeq(), ins.currentBranch, counter, c.ID, err.Error()))
			}
		}
		return err
	}

	ins.cells = cells
	ins.graph = g
	ins.justFired = nil
	ins.quiesced = false
	if err := ins.store.SaveProgram(ctx, program); err != nil {
		return fmt.Errorf("instance: save program: %w", err)
	}
	for _, c := range cells {
		ins.emit(domain.NewCellCompiledEvent(ins.ID, ins.nextSeq(), ins.currentBranch, counter, c.ID, 0))
	}
	ins.emit(domain.NewDefinitionGraphUpdatedEvent(ins.ID, ins.nextSeq(), ins.currentBranch, counter, g.RenderDOT()))
	return nil
}

// FetchCells returns the currently-loaded cell declarations.
func (ins *Instance) FetchCells() []domain.CellDecl {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	return append([]domain.CellDecl(nil), ins.cells...)
}

// Head returns the instance's active branch name and the tip snapshot on it.
func (ins *Instance) Head() (branch string, snap *state.Snapshot, ok bool) {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	snap, ok = ins.execGraph.Head(ins.currentBranch)
	return ins.currentBranch, snap, ok
}

// Done reports whether the instance's current branch has quiesced: the most
// recent Step found no eligible operation to fire.
func (ins *Instance) Done() bool {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	return ins.quiesced
}

// FetchStateAt returns the snapshot at a specific (branch, counter), for an
// observer inspecting execution history ("time travel" reads).
func (ins *Instance) FetchStateAt(branch string, counter int64) (*state.Snapshot, error) {
	snap, ok := ins.execGraph.At(branch, counter)
	if !ok {
		return nil, fmt.Errorf("instance: no snapshot at %s@%d", branch, counter)
	}
	return snap, nil
}

// Step advances the instance by exactly one tick on its current branch.
func (ins *Instance) Step(ctx context.Context) error {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	return ins.stepLocked(ctx)
}

func (ins *Instance) stepLocked(ctx context.Context) error {
	if ins.graph == nil {
		return fmt.Errorf("instance: no program loaded")
	}
	head, ok := ins.execGraph.Head(ins.currentBranch)
	if !ok {
		return fmt.Errorf("instance: branch %q has no head", ins.currentBranch)
	}

	driver := stepper.New(ins.graph)
	result, err := driver.Tick(ctx, head, ins.justFired)
	if err != nil {
		return err
	}
	if result.Done {
		ins.quiesced = true
		ins.emit(domain.NewTickCompletedEvent(ins.ID, ins.nextSeq(), ins.currentBranch, head.Counter, 0))
		return nil
	}
	ins.quiesced = false

	ins.execGraph.Append(result.Snapshot)
	for opID, v := range result.Fired {
		ins.emit(domain.NewOperationFiredEvent(ins.ID, ins.nextSeq(), result.Snapshot.Branch, result.Snapshot.Counter, opID, v))
	}
	for opID, fireErr := range result.Failed {
		ins.emit(domain.NewOperationFailedEvent(ins.ID, ins.nextSeq(), result.Snapshot.Branch, result.Snapshot.Counter, opID, fireErr.Error()))
	}
	ins.emit(domain.NewTickCompletedEvent(ins.ID, ins.nextSeq(), result.Snapshot.Branch, result.Snapshot.Counter, len(result.Fired)))

	justFired := make(map[int]bool, len(result.Fired))
	for opID := range result.Fired {
		justFired[opID] = true
	}
	ins.justFired = justFired
	return nil
}

// Play steps the instance repeatedly on its own goroutine until Pause is
// called or a tick reports Done.
func (ins *Instance) Play(ctx context.Context) {
	ins.mu.Lock()
	if ins.playing {
		ins.mu.Unlock()
		return
	}
	ins.playing = true
	ins.stopPlay = make(chan struct{})
	stop := ins.stopPlay
	ins.mu.Unlock()

	ins.emit(domain.NewEvent(domain.EventInstanceResumed, ins.ID, ins.nextSeq(), ins.currentBranch, 0, 0, nil))

	go func() {
		defer func() {
			ins.mu.Lock()
			ins.playing = false
			ins.mu.Unlock()
		}()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			default:
			}
			ins.mu.Lock()
			err := ins.stepLocked(ctx)
			done := ins.quiesced
			ins.mu.Unlock()
			if err != nil {
				ins.log.Error().Err(err).Msg("instance: step failed during play")
				return
			}
			if done {
				return
			}
		}
	}()
}

// Pause stops an in-flight Play loop.
func (ins *Instance) Pause() {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	if !ins.playing || ins.stopPlay == nil {
		return
	}
	close(ins.stopPlay)
	ins.emit(domain.NewEvent(domain.EventInstancePaused, ins.ID, ins.nextSeq(), ins.currentBranch, 0, 0, nil))
}

// Revert grafts a new branch at (branch, counter) and makes it the
// instance's active branch, per the branch-on-revert semantics of the
// execution graph.
func (ins *Instance) Revert(ctx context.Context, branch string, counter int64) (string, error) {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	newBranch := fmt.Sprintf("%s~%d", branch, counter)
	for i := 1; ; i++ {
		if _, ok := ins.execGraph.At(newBranch, 0); !ok {
			break
		}
		newBranch = fmt.Sprintf("%s~%d-%d", branch, counter, i)
	}

	grafted, err := ins.execGraph.Revert(newBranch, branch, counter)
	if err != nil {
		return "", err
	}
	ins.currentBranch = newBranch
	ins.justFired = nil
	ins.quiesced = false

	ins.emit(domain.NewBranchCreatedEvent(ins.ID, ins.nextSeq(), newBranch, 0, branch, counter))
	ins.emit(domain.NewRevertedEvent(ins.ID, ins.nextSeq(), newBranch, grafted.Counter))
	return newBranch, nil
}

func (ins *Instance) emit(ev domain.Event) {
	if ins.store != nil {
		_ = ins.store.AppendEvent(context.Background(), ev)
	}
	if ins.obs != nil {
		ins.obs.Notify(ev)
	}
}
