package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeEvent struct{ payload string }

func (f fakeEvent) ToJSON() ([]byte, error) { return []byte(f.payload), nil }

type recordingObserver struct{ received []string }

func (r *recordingObserver) OnEvent(ev EventLike) {
	b, _ := ev.ToJSON()
	r.received = append(r.received, string(b))
}

func TestManagerNotifiesAllObservers(t *testing.T) {
	m := NewManager()
	a := &recordingObserver{}
	b := &recordingObserver{}
	m.Add(a)
	m.Add(b)

	m.Notify(fakeEvent{payload: "hello"})

	assert.Equal(t, []string{"hello"}, a.received)
	assert.Equal(t, []string{"hello"}, b.received)
}

func TestManagerRemoveStopsDelivery(t *testing.T) {
	m := NewManager()
	a := &recordingObserver{}
	m.Add(a)
	m.Remove(a)

	m.Notify(fakeEvent{payload: "hello"})

	assert.Empty(t, a.received)
}
