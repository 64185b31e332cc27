package events

import (
	"time"
)

// waitFor registers a one-shot listener plus a timer; whichever fires
// first resolves the wait exactly once and the other is cancelled.
// Timeout is a normal outcome, never an error.
func (h *Hub) waitFor(kind Kind, timeout time.Duration, match func(Event) bool) (Event, bool) {
	done := make(chan Event, 1)
	id := h.Subscribe(kind, func(ev Event) {
		if !match(ev) {
			return
		}
		select {
		case done <- ev:
		default:
			// Already resolved; late matches are dropped.
		}
	})
	defer h.Unsubscribe(kind, id)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-done:
		return ev, true
	case <-timer.C:
		return Event{}, false
	}
}

// WaitForState resolves true when the device reports the target
// playback state before the deadline, false when the deadline elapses.
func (h *Hub) WaitForState(deviceID, target string, timeout time.Duration) bool {
	_, ok := h.waitFor(KindState, timeout, func(ev Event) bool {
		return ev.DeviceID == deviceID && ev.Curr == target
	})
	return ok
}

// WaitForStableState resolves with the first non-transitional state the
// device settles into. A TRANSITIONING event never resolves it, even as
// the first event observed; the wait keeps listening.
func (h *Hub) WaitForStableState(deviceID string, transitional func(string) bool, timeout time.Duration) (string, bool) {
	ev, ok := h.waitFor(KindState, timeout, func(ev Event) bool {
		return ev.DeviceID == deviceID && !transitional(ev.Curr)
	})
	if !ok {
		return "", false
	}
	return ev.Curr, true
}

// WaitForMute resolves true when the device reports the target mute
// value before the deadline.
func (h *Hub) WaitForMute(deviceID string, target bool, timeout time.Duration) bool {
	want := "false"
	if target {
		want = "true"
	}
	_, ok := h.waitFor(KindMute, timeout, func(ev Event) bool {
		return ev.DeviceID == deviceID && ev.Curr == want
	})
	return ok
}

// WaitForTopologyChange resolves true when any topology change is
// published before the deadline.
func (h *Hub) WaitForTopologyChange(timeout time.Duration) bool {
	_, ok := h.waitFor(KindTopology, timeout, func(Event) bool { return true })
	return ok
}

// WaitForTrackChange resolves true when the device's current track
// changes before the deadline.
func (h *Hub) WaitForTrackChange(deviceID string, timeout time.Duration) bool {
	_, ok := h.waitFor(KindTrack, timeout, func(ev Event) bool {
		return ev.DeviceID == deviceID
	})
	return ok
}
