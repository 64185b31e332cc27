package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func transitional(s string) bool { return s == "TRANSITIONING" }

func publishLater(h *Hub, delay time.Duration, evs ...Event) {
	go func() {
		for _, ev := range evs {
			time.Sleep(delay)
			h.Publish(ev)
		}
	}()
}

func TestWaitForStateResolvesOnMatch(t *testing.T) {
	t.Parallel()

	h := NewHub()
	publishLater(h, 10*time.Millisecond,
		Event{Kind: KindState, DeviceID: "RINCON_A", Prev: "STOPPED", Curr: "PLAYING"})

	assert.True(t, h.WaitForState("RINCON_A", "PLAYING", time.Second))
}

func TestWaitForStateTimesOut(t *testing.T) {
	t.Parallel()

	h := NewHub()
	start := time.Now()
	ok := h.WaitForState("RINCON_A", "PLAYING", 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWaitForStateIgnoresOtherDevices(t *testing.T) {
	t.Parallel()

	h := NewHub()
	publishLater(h, 5*time.Millisecond,
		Event{Kind: KindState, DeviceID: "RINCON_B", Prev: "STOPPED", Curr: "PLAYING"})

	assert.False(t, h.WaitForState("RINCON_A", "PLAYING", 50*time.Millisecond))
}

func TestWaitForStableStateSkipsTransitioning(t *testing.T) {
	t.Parallel()

	h := NewHub()
	publishLater(h, 5*time.Millisecond,
		Event{Kind: KindState, DeviceID: "RINCON_A", Prev: "STOPPED", Curr: "TRANSITIONING"},
		Event{Kind: KindState, DeviceID: "RINCON_A", Prev: "TRANSITIONING", Curr: "PLAYING"})

	state, ok := h.WaitForStableState("RINCON_A", transitional, time.Second)
	assert.True(t, ok)
	assert.Equal(t, "PLAYING", state)
}

func TestWaitForStableStateTimesOutOnOnlyTransitioning(t *testing.T) {
	t.Parallel()

	h := NewHub()
	publishLater(h, 5*time.Millisecond,
		Event{Kind: KindState, DeviceID: "RINCON_A", Prev: "STOPPED", Curr: "TRANSITIONING"})

	state, ok := h.WaitForStableState("RINCON_A", transitional, 60*time.Millisecond)
	assert.False(t, ok)
	assert.Empty(t, state)
}

func TestWaitForMute(t *testing.T) {
	t.Parallel()

	h := NewHub()
	publishLater(h, 5*time.Millisecond,
		Event{Kind: KindMute, DeviceID: "RINCON_A", Prev: "false", Curr: "true"})

	assert.True(t, h.WaitForMute("RINCON_A", true, time.Second))
	assert.False(t, h.WaitForMute("RINCON_A", false, 30*time.Millisecond))
}

func TestWaitForTopologyChange(t *testing.T) {
	t.Parallel()

	h := NewHub()
	publishLater(h, 5*time.Millisecond,
		Event{Kind: KindTopology, Prev: "sig1", Curr: "sig2"})

	assert.True(t, h.WaitForTopologyChange(time.Second))
	assert.False(t, h.WaitForTopologyChange(30*time.Millisecond))
}

func TestWaitForTrackChange(t *testing.T) {
	t.Parallel()

	h := NewHub()
	publishLater(h, 5*time.Millisecond,
		Event{Kind: KindTrack, DeviceID: "RINCON_A", Prev: "uri-1", Curr: "uri-2"})

	assert.True(t, h.WaitForTrackChange("RINCON_A", time.Second))
}

func TestDuplicateEventNeverWakesWaiter(t *testing.T) {
	t.Parallel()

	h := NewHub()
	publishLater(h, 5*time.Millisecond,
		Event{Kind: KindState, DeviceID: "RINCON_A", Prev: "PLAYING", Curr: "PLAYING"})

	assert.False(t, h.WaitForState("RINCON_A", "PLAYING", 50*time.Millisecond))
}

func TestWaiterListenerRemovedAfterResolution(t *testing.T) {
	t.Parallel()

	h := NewHub()
	publishLater(h, 5*time.Millisecond,
		Event{Kind: KindState, DeviceID: "RINCON_A", Prev: "STOPPED", Curr: "PLAYING"})
	assert.True(t, h.WaitForState("RINCON_A", "PLAYING", time.Second))

	h.mu.Lock()
	remaining := len(h.listeners[KindState])
	h.mu.Unlock()
	assert.Zero(t, remaining, "wait listeners must be removed once resolved")
}
