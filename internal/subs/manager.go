package subs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zonehub/zonehub/internal/upnp"
)

// DefaultRequestedTimeout is the subscription lifetime asked of
// devices; they may grant less, and the renewal schedule follows the
// grant.
const DefaultRequestedTimeout = 10 * time.Minute

// renewFraction of the granted timeout elapses before renewal, leaving
// headroom for one failed attempt and a fresh subscribe.
const renewFraction = 0.8

// retryInterval paces background re-subscription attempts after both a
// renewal and the follow-up fresh subscribe have failed.
const retryInterval = 30 * time.Second

// Routing identifies which device and service an incoming NOTIFY
// belongs to.
type Routing struct {
	DeviceID string
	Service  upnp.Service
}

type entry struct {
	deviceID string
	client   *upnp.Client
	svc      upnp.Service
	sub      upnp.Subscription
	timer    *time.Timer
}

func key(deviceID, svcName string) string { return deviceID + "/" + svcName }

// Manager owns every GENA subscription in the process: one per
// (device, service), renewed before expiry, re-established from
// scratch when renewal fails, and retried in the background when the
// device stops answering entirely.
type Manager struct {
	callbackURL string
	requested   time.Duration
	log         zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry // device/service -> live subscription
	bySID   map[string]*entry // SID -> same entry, for NOTIFY routing
}

// NewManager creates a manager that registers callbackURL as the NOTIFY
// sink for every subscription it opens.
func NewManager(callbackURL string) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		callbackURL: callbackURL,
		requested:   DefaultRequestedTimeout,
		log:         log.With().Str("component", "subs").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		entries:     map[string]*entry{},
		bySID:       map[string]*entry{},
	}
}

func (m *Manager) params() (callbackURL string, requested time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callbackURL, m.requested
}

// SetCallbackURL sets the NOTIFY sink registered with devices. Called
// once the listener knows its bound port, before any Subscribe.
func (m *Manager) SetCallbackURL(u string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbackURL = u
}

// SetRequestedTimeout overrides the subscription lifetime asked of
// devices.
func (m *Manager) SetRequestedTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.requested = d
	}
}

// Subscribe opens (or refreshes) the subscription for one device
// service. Subscribing a channel that is already live replaces the old
// subscription rather than stacking a second one.
func (m *Manager) Subscribe(ctx context.Context, deviceID string, client *upnp.Client, svc upnp.Service) error {
	k := key(deviceID, svc.Name)
	callback, requested := m.params()

	sub, err := client.Subscribe(ctx, svc, callback, requested)
	if err != nil {
		return fmt.Errorf("subscribe %s/%s: %w", deviceID, svc.Name, err)
	}

	e := &entry{deviceID: deviceID, client: client, svc: svc, sub: sub}
	m.mu.Lock()
	// Whatever held the channel until now loses it under the same lock
	// that installs the replacement, so concurrent subscribes cannot
	// leave a second SID routed with a live renewal timer.
	stale := m.entries[k]
	if stale != nil {
		m.dropLocked(stale)
	}
	m.entries[k] = e
	m.bySID[sub.SID] = e
	m.scheduleRenewalLocked(e)
	m.mu.Unlock()

	if stale != nil {
		_ = stale.client.Unsubscribe(ctx, stale.sub)
	}

	m.log.Info().Str("device", deviceID).Str("service", svc.Name).
		Str("sid", sub.SID).Dur("granted", sub.Timeout).Msg("subscription established")
	return nil
}

// DeviceForSID resolves an incoming NOTIFY's SID to its device and
// service. Unknown SIDs (expired, replaced) return false; the caller
// drops the notification.
func (m *Manager) DeviceForSID(sid string) (Routing, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.bySID[sid]
	if !ok {
		return Routing{}, false
	}
	return Routing{DeviceID: e.deviceID, Service: e.svc}, true
}

// Unsubscribe tears down one channel of one device, if it is live.
func (m *Manager) Unsubscribe(ctx context.Context, deviceID string, svc upnp.Service) {
	m.mu.Lock()
	e, ok := m.entries[key(deviceID, svc.Name)]
	if ok {
		m.dropLocked(e)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := e.client.Unsubscribe(ctx, e.sub); err != nil {
		m.log.Debug().Str("device", deviceID).Str("service", svc.Name).
			Err(err).Msg("unsubscribe failed")
	}
}

// UnsubscribeDevice tears down every subscription held for one device.
func (m *Manager) UnsubscribeDevice(ctx context.Context, deviceID string) {
	m.mu.Lock()
	var victims []*entry
	for k, e := range m.entries {
		if e.deviceID != deviceID {
			continue
		}
		delete(m.entries, k)
		m.dropSIDLocked(e)
		if e.timer != nil {
			e.timer.Stop()
		}
		victims = append(victims, e)
	}
	m.mu.Unlock()

	for _, e := range victims {
		if err := e.client.Unsubscribe(ctx, e.sub); err != nil {
			m.log.Debug().Str("device", deviceID).Str("service", e.svc.Name).
				Err(err).Msg("unsubscribe failed")
		}
	}
}

// Close stops every renewal timer and abandons all subscriptions. The
// devices expire them on their own.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(m.entries, k)
	}
	m.bySID = map[string]*entry{}
}

// scheduleRenewalLocked arms the renewal timer at renewFraction of the
// granted lifetime.
func (m *Manager) scheduleRenewalLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	delay := time.Duration(float64(e.sub.Timeout) * renewFraction)
	e.timer = time.AfterFunc(delay, func() { m.renew(e) })
}

// renew extends one subscription. A failed renewal is followed by a
// fresh subscribe, since the device may simply have forgotten the SID
// after a reboot. If that fails too, the entry moves to slow background
// retry until the device answers again or the device is unsubscribed.
func (m *Manager) renew(e *entry) {
	if m.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, 15*time.Second)
	defer cancel()

	callback, requested := m.params()
	renewed, err := e.client.Renew(ctx, e.sub, requested)
	if err == nil {
		m.mu.Lock()
		if m.entries[key(e.deviceID, e.svc.Name)] == e {
			e.sub = renewed
			m.scheduleRenewalLocked(e)
		}
		m.mu.Unlock()
		return
	}
	m.log.Warn().Str("device", e.deviceID).Str("service", e.svc.Name).
		Err(err).Msg("renewal failed; resubscribing")

	fresh, err := e.client.Subscribe(ctx, e.svc, callback, requested)
	if err != nil {
		m.log.Warn().Str("device", e.deviceID).Str("service", e.svc.Name).
			Err(err).Msg("resubscribe failed; retrying in background")
		m.mu.Lock()
		if m.entries[key(e.deviceID, e.svc.Name)] == e {
			e.timer = time.AfterFunc(retryInterval, func() { m.renew(e) })
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if m.entries[key(e.deviceID, e.svc.Name)] == e {
		m.dropSIDLocked(e)
		e.sub = fresh
		m.bySID[fresh.SID] = e
		m.scheduleRenewalLocked(e)
	}
	m.mu.Unlock()
}

// dropLocked removes an entry from both indexes and stops its timer.
func (m *Manager) dropLocked(e *entry) {
	delete(m.entries, key(e.deviceID, e.svc.Name))
	m.dropSIDLocked(e)
	if e.timer != nil {
		e.timer.Stop()
	}
}

func (m *Manager) dropSIDLocked(e *entry) {
	if cur, ok := m.bySID[e.sub.SID]; ok && cur == e {
		delete(m.bySID, e.sub.SID)
	}
}
