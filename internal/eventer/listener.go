package eventer

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zonehub/zonehub/internal/subs"
	"github.com/zonehub/zonehub/internal/upnp"
)

// Sink receives decoded notifications. Implemented by the topology
// engine.
type Sink interface {
	ApplyZoneGroupState(ctx context.Context, payload string) error
	HandleTransportChange(deviceID string, lc upnp.LastChange)
	HandleRenderingChange(deviceID string, lc upnp.LastChange)
}

// SIDResolver maps an incoming NOTIFY to the device and service that
// own it. Implemented by the subscription manager.
type SIDResolver interface {
	DeviceForSID(sid string) (subs.Routing, bool)
}

// Listener is the HTTP endpoint devices push GENA NOTIFY requests to.
// Ingestion is serialized per device so notifications from one unit
// apply in arrival order; different units proceed concurrently.
type Listener struct {
	routes SIDResolver
	sink   Sink
	log    zerolog.Logger

	srv  *http.Server
	ln   net.Listener
	port int

	mu        sync.Mutex
	perDevice map[string]*sync.Mutex
}

func NewListener(routes SIDResolver, sink Sink) *Listener {
	l := &Listener{
		routes:    routes,
		sink:      sink,
		log:       log.With().Str("component", "eventer").Logger(),
		perDevice: map[string]*sync.Mutex{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/notify", l.handleNotify)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return l
}

// Start binds addr (":3400", or ":0" for an ephemeral port) and serves
// in the background.
func (l *Listener) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("event listener: %w", err)
	}
	l.ln = ln
	l.port = ln.Addr().(*net.TCPAddr).Port
	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.log.Error().Err(err).Msg("event listener stopped")
		}
	}()
	l.log.Info().Int("port", l.port).Msg("event listener started")
	return nil
}

// Port is the bound port, valid after Start.
func (l *Listener) Port() int { return l.port }

// CallbackURL is the URL devices are told to NOTIFY, built from the
// address this host is reachable at on the device network.
func (l *Listener) CallbackURL(advertiseIP string) string {
	return fmt.Sprintf("http://%s:%d/notify", advertiseIP, l.port)
}

func (l *Listener) Shutdown(ctx context.Context) error {
	return l.srv.Shutdown(ctx)
}

// LocalIP guesses the local address devices can reach, by the route the
// kernel would pick toward the multicast discovery group. No packets
// are sent.
func LocalIP() (string, error) {
	conn, err := net.Dial("udp4", "239.255.255.250:1900")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return "", fmt.Errorf("cannot determine local address")
	}
	return addr.IP.String(), nil
}

func (l *Listener) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != "NOTIFY" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sid := strings.TrimSpace(r.Header.Get("SID"))
	routing, ok := l.routes.DeviceForSID(sid)
	if !ok {
		// Expired or replaced subscription still delivering; a 412
		// tells the device to stop.
		l.log.Debug().Str("sid", sid).Msg("notify for unknown SID")
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	unlock := l.lockDevice(routing.DeviceID)
	defer unlock()

	if err := l.ingest(r.Context(), routing, body); err != nil {
		l.log.Warn().Str("device", routing.DeviceID).
			Str("service", routing.Service.Name).Err(err).Msg("notification dropped")
	}
	w.WriteHeader(http.StatusOK)
}

func (l *Listener) ingest(ctx context.Context, routing subs.Routing, body []byte) error {
	vars, err := upnp.ParseEvent(body)
	if err != nil {
		return err
	}

	switch routing.Service.Name {
	case upnp.ZoneGroupTopology.Name:
		payload := vars["ZoneGroupState"]
		if payload == "" {
			return nil
		}
		return l.sink.ApplyZoneGroupState(ctx, payload)

	case upnp.AVTransport.Name:
		lc, err := upnp.ParseLastChange(vars["LastChange"])
		if err != nil {
			return err
		}
		l.sink.HandleTransportChange(routing.DeviceID, lc)

	case upnp.RenderingControl.Name:
		lc, err := upnp.ParseLastChange(vars["LastChange"])
		if err != nil {
			return err
		}
		l.sink.HandleRenderingChange(routing.DeviceID, lc)

	default:
		l.log.Debug().Str("service", routing.Service.Name).Msg("notification for unhandled service")
	}
	return nil
}

func (l *Listener) lockDevice(deviceID string) func() {
	l.mu.Lock()
	m, ok := l.perDevice[deviceID]
	if !ok {
		m = &sync.Mutex{}
		l.perDevice[deviceID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
