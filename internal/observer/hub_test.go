package observer

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestHubObserverBroadcastsWithoutPanicWhenNoClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	go hub.Run()

	obs := NewHubObserver(hub, "instance-1")
	assert.NotPanics(t, func() {
		obs.OnEvent(fakeEvent{payload: "tick"})
		time.Sleep(10 * time.Millisecond)
	})
}
