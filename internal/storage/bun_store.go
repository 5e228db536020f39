package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/lucid-cells/cellrun/internal/domain"
)

// BunStore is the Postgres-backed Store, narrowed to the two aggregates
// this kernel actually persists: programs and the event log.
type BunStore struct {
	db *bun.DB
}

func NewBunStore(dsn string) *BunStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &BunStore{db: bun.NewDB(sqldb, pgdialect.New())}
}

func (s *BunStore) InitSchema(ctx context.Context) error {
	for _, model := range []any{(*ProgramModel)(nil), (*CellModel)(nil), (*EventModel)(nil)} {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *BunStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *BunStore) Close() error                   { return s.db.Close() }

// ProgramModel / CellModel

type ProgramModel struct {
	bun.BaseModel `bun:"table:programs,alias:p"`

	ID        string    `bun:"id,pk"`
	CreatedAt time.Time `bun:"created_at"`
}

type CellModel struct {
	bun.BaseModel `bun:"table:cells,alias:c"`

	ID        string         `bun:"id,pk"`
	ProgramID string         `bun:"program_id"`
	Kind      domain.CellKind `bun:"kind"`
	Name      string         `bun:"name"`
	Source    string         `bun:"source"`
	Config    map[string]any `bun:"config,type:jsonb"`
	Seq       int            `bun:"seq"`
}

func (s *BunStore) SaveProgram(ctx context.Context, p domain.ProgramDecl) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		pm := &ProgramModel{ID: p.ID, CreatedAt: time.Now()}
		if _, err := tx.NewInsert().Model(pm).On("CONFLICT (id) DO UPDATE").Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*CellModel)(nil)).Where("program_id = ?", p.ID).Exec(ctx); err != nil {
			return err
		}
		if len(p.Cells) == 0 {
			return nil
		}
		models := make([]*CellModel, len(p.Cells))
		for i, c := range p.Cells {
			models[i] = &CellModel{ID: c.ID, ProgramID: p.ID, Kind: c.Kind, Name: c.Name, Source: c.Source, Config: c.Config, Seq: i}
		}
		_, err := tx.NewInsert().Model(&models).Exec(ctx)
		return err
	})
}

func (s *BunStore) GetProgram(ctx context.Context, id string) (domain.ProgramDecl, error) {
	var cellModels []CellModel
	if err := s.db.NewSelect().Model(&cellModels).Where("program_id = ?", id).Order("seq ASC").Scan(ctx); err != nil {
		return domain.ProgramDecl{}, err
	}
	cells := make([]domain.CellDecl, len(cellModels))
	for i, m := range cellModels {
		cells[i] = domain.CellDecl{ID: m.ID, Kind: m.Kind, Name: m.Name, Source: m.Source, Config: m.Config}
	}
	return domain.ProgramDecl{ID: id, Cells: cells}, nil
}

func (s *BunStore) ListPrograms(ctx context.Context) ([]domain.ProgramDecl, error) {
	var models []ProgramModel
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.ProgramDecl, len(models))
	for i, m := range models {
		p, err := s.GetProgram(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// EventModel

type EventModel struct {
	bun.BaseModel `bun:"table:events,alias:ev"`

	EventID     uuid.UUID       `bun:"event_id,pk"`
	EventType   domain.EventType `bun:"event_type"`
	InstanceID  uuid.UUID       `bun:"instance_id"`
	Timestamp   time.Time       `bun:"timestamp"`
	Sequence    int64           `bun:"sequence"`
	Branch      string          `bun:"branch"`
	Counter     int64           `bun:"counter"`
	OperationID int             `bun:"operation_id"`
	Data        map[string]any  `bun:"data,type:jsonb"`
}

func NewEventModel(ev domain.Event) *EventModel {
	return &EventModel{
		EventID:     ev.EventID(),
		EventType:   ev.EventType(),
		InstanceID:  ev.InstanceID(),
		Timestamp:   ev.Timestamp(),
		Sequence:    ev.SequenceNumber(),
		Branch:      ev.Branch(),
		Counter:     ev.Counter(),
		OperationID: ev.OperationID(),
		Data:        ev.Data(),
	}
}

func (m *EventModel) ToDomain() domain.Event {
	return domain.ReconstructEvent(m.EventID, m.EventType, m.InstanceID, m.Timestamp, m.Sequence, m.Branch, m.Counter, m.OperationID, m.Data)
}

func (s *BunStore) AppendEvent(ctx context.Context, ev domain.Event) error {
	_, err := s.db.NewInsert().Model(NewEventModel(ev)).Exec(ctx)
	return err
}

func (s *BunStore) ListEventsByInstance(ctx context.Context, instanceID string) ([]domain.Event, error) {
	var models []EventModel
	id, err := uuid.Parse(instanceID)
	if err != nil {
		return nil, err
	}
	if err := s.db.NewSelect().Model(&models).Where("instance_id = ?", id).Order("sequence ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Event, len(models))
	for i, m := range models {
		out[i] = m.ToDomain()
	}
	return out, nil
}
