package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-cells/cellrun/internal/domain"
)

func TestMemoryStoreSaveAndGetProgram(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := domain.ProgramDecl{ID: "prog-1", Cells: []domain.CellDecl{{ID: "prog-1#1", Name: "x"}}}

	require.NoError(t, s.SaveProgram(ctx, p))
	got, err := s.GetProgram(ctx, "prog-1")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestMemoryStoreGetMissingProgram(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetProgram(context.Background(), "nope")
	assert.Error(t, err)
}

func TestMemoryStoreListEventsByInstance(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id1, id2 := uuid.New(), uuid.New()

	require.NoError(t, s.AppendEvent(ctx, domain.NewEvent(domain.EventTickCompleted, id1, 1, "main", 0, 0, nil)))
	require.NoError(t, s.AppendEvent(ctx, domain.NewEvent(domain.EventTickCompleted, id2, 1, "main", 0, 0, nil)))
	require.NoError(t, s.AppendEvent(ctx, domain.NewEvent(domain.EventTickCompleted, id1, 2, "main", 1, 0, nil)))

	events, err := s.ListEventsByInstance(ctx, id1.String())
	require.NoError(t, err)
	assert.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, id1, ev.InstanceID())
	}
}
