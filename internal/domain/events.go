package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the runtime events an instance loop emits to its
// observers, matching the outbound message set.
type EventType string

const (
	EventCellCompiled      EventType = "cell.compiled"
	EventCellCompileFailed EventType = "cell.compile_failed"
	EventOperationFired    EventType = "operation.fired"
	EventOperationFailed   EventType = "operation.failed"
	EventTickCompleted     EventType = "tick.completed"
	EventBranchCreated     EventType = "branch.created"
	EventReverted          EventType = "reverted"
	EventDefinitionGraphUpdated EventType = "definition_graph.updated"
	EventInstancePaused    EventType = "instance.paused"
	EventInstanceResumed   EventType = "instance.resumed"
)

// Event is an immutable runtime event in the event log; the log is the
// persisted audit trail described in SPEC_FULL's Execution Graph persistence
// boundary — it records what happened across ticks, never the snapshots
// themselves.
type Event interface {
	EventID() uuid.UUID
	EventType() EventType
	InstanceID() uuid.UUID
	Timestamp() time.Time
	SequenceNumber() int64

	Branch() string
	Counter() int64
	OperationID() int // 0 when not applicable

	Data() map[string]any
	ToJSON() ([]byte, error)
}

// BaseEvent is the sole Event implementation.
type BaseEvent struct {
	eventID        uuid.UUID
	eventType      EventType
	instanceID     uuid.UUID
	timestamp      time.Time
	sequenceNumber int64
	branch         string
	counter        int64
	operationID    int
	data           map[string]any
}

// NewEvent constructs a runtime event.
func NewEvent(eventType EventType, instanceID uuid.UUID, sequenceNumber int64, branch string, counter int64, operationID int, data map[string]any) Event {
	if data == nil {
		data = make(map[string]any)
	}
	return &BaseEvent{
		eventID:        uuid.New(),
		eventType:      eventType,
		instanceID:     instanceID,
		timestamp:      time.Now(),
		sequenceNumber: sequenceNumber,
		branch:         branch,
		counter:        counter,
		operationID:    operationID,
		data:           data,
	}
}

// ReconstructEvent rebuilds an event read back from the event log.
func ReconstructEvent(eventID uuid.UUID, eventType EventType, instanceID uuid.UUID, timestamp time.Time, sequenceNumber int64, branch string, counter int64, operationID int, data map[string]any) Event {
	return &BaseEvent{
		eventID:        eventID,
		eventType:      eventType,
		instanceID:     instanceID,
		timestamp:      timestamp,
		sequenceNumber: sequenceNumber,
		branch:         branch,
		counter:        counter,
		operationID:    operationID,
		data:           data,
	}
}

func (e *BaseEvent) EventID() uuid.UUID        { return e.eventID }
func (e *BaseEvent) EventType() EventType      { return e.eventType }
func (e *BaseEvent) InstanceID() uuid.UUID     { return e.instanceID }
func (e *BaseEvent) Timestamp() time.Time      { return e.timestamp }
func (e *BaseEvent) SequenceNumber() int64     { return e.sequenceNumber }
func (e *BaseEvent) Branch() string            { return e.branch }
func (e *BaseEvent) Counter() int64            { return e.counter }
func (e *BaseEvent) OperationID() int          { return e.operationID }
func (e *BaseEvent) Data() map[string]any      { return e.data }

func (e *BaseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"event_id":        e.eventID,
		"event_type":      e.eventType,
		"instance_id":     e.instanceID,
		"timestamp":       e.timestamp,
		"sequence_number": e.sequenceNumber,
		"branch":          e.branch,
		"counter":         e.counter,
		"operation_id":    e.operationID,
		"data":            e.data,
	})
}

// NewCellCompiledEvent reports a successful cell compile.
func NewCellCompiledEvent(instanceID uuid.UUID, seq int64, branch string, counter int64, cellID string, opID int) Event {
	return NewEvent(EventCellCompiled, instanceID, seq, branch, counter, opID, map[string]any{"cell_id": cellID})
}

// NewCellCompileFailedEvent reports a compile failure; the cell's
// NeedsUpdate latch is set by the caller alongside this event.
func NewCellCompileFailedEvent(instanceID uuid.UUID, seq int64, branch string, counter int64, cellID string, errMessage string) Event {
	return NewEvent(EventCellCompileFailed, instanceID, seq, branch, counter, 0, map[string]any{"cell_id": cellID, "error": errMessage})
}

// NewOperationFiredEvent reports that an operation fired this tick.
func NewOperationFiredEvent(instanceID uuid.UUID, seq int64, branch string, counter int64, opID int, output SV) Event {
	return NewEvent(EventOperationFired, instanceID, seq, branch, counter, opID, map[string]any{"output": output.ToJSON()})
}

// NewOperationFailedEvent reports that an operation's effect returned an error.
func NewOperationFailedEvent(instanceID uuid.UUID, seq int64, branch string, counter int64, opID int, errMessage string) Event {
	return NewEvent(EventOperationFailed, instanceID, seq, branch, counter, opID, map[string]any{"error": errMessage})
}

// NewTickCompletedEvent reports that a tick finished and how many operations
// fired in it; a step that found nothing eligible reports a count of 0.
func NewTickCompletedEvent(instanceID uuid.UUID, seq int64, branch string, counter int64, firedCount int) Event {
	return NewEvent(EventTickCompleted, instanceID, seq, branch, counter, 0, map[string]any{"fired_count": firedCount})
}

// NewBranchCreatedEvent reports a new branch created by a revert-and-diverge.
func NewBranchCreatedEvent(instanceID uuid.UUID, seq int64, branch string, counter int64, parentBranch string, graftCounter int64) Event {
	return NewEvent(EventBranchCreated, instanceID, seq, branch, counter, 0, map[string]any{"parent_branch": parentBranch, "graft_counter": graftCounter})
}

// NewRevertedEvent reports that the instance reverted to an earlier snapshot.
func NewRevertedEvent(instanceID uuid.UUID, seq int64, branch string, counter int64) Event {
	return NewEvent(EventReverted, instanceID, seq, branch, counter, 0, nil)
}

// NewDefinitionGraphUpdatedEvent carries the DOT rendering of the dependency
// graph after each successful program load, whether or not its shape changed.
func NewDefinitionGraphUpdatedEvent(instanceID uuid.UUID, seq int64, branch string, counter int64, dot string) Event {
	return NewEvent(EventDefinitionGraphUpdated, instanceID, seq, branch, counter, 0, map[string]any{"dot": dot})
}

// EventApplier lets a component rebuild its state by replaying the event log.
type EventApplier interface {
	ApplyEvent(event Event) error
}
