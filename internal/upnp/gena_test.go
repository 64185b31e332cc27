package upnp

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeRenewUnsubscribe(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(AVTransport.EventPath, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "SUBSCRIBE":
			if r.Header.Get("SID") != "" {
				// renew
				w.Header().Set("TIMEOUT", "Second-120")
				w.WriteHeader(http.StatusOK)
				return
			}
			assert.Equal(t, "upnp:event", r.Header.Get("NT"))
			assert.Equal(t, "<http://127.0.0.1:12345/notify>", r.Header.Get("CALLBACK"))
			assert.Equal(t, "Second-10", r.Header.Get("TIMEOUT"))
			w.Header().Set("SID", "uuid:sub-1")
			w.Header().Set("TIMEOUT", "Second-60")
			w.WriteHeader(http.StatusOK)
		case "UNSUBSCRIBE":
			assert.Equal(t, "uuid:sub-1", r.Header.Get("SID"))
			w.WriteHeader(http.StatusPreconditionFailed)
		default:
			t.Errorf("unexpected method %s", r.Method)
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	c, _ := testClient(t, mux)

	sub, err := c.Subscribe(context.Background(), AVTransport, "http://127.0.0.1:12345/notify", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "uuid:sub-1", sub.SID)
	assert.Equal(t, 60*time.Second, sub.Timeout)
	assert.Equal(t, AVTransport.Name, sub.Service.Name)

	sub2, err := c.Renew(context.Background(), sub, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "uuid:sub-1", sub2.SID)
	assert.Equal(t, 120*time.Second, sub2.Timeout)

	// 412 means the device already dropped the SID; treated as success.
	require.NoError(t, c.Unsubscribe(context.Background(), sub2))
}

func TestSubscribeMissingSID(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(RenderingControl.EventPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("TIMEOUT", "Second-60")
		w.WriteHeader(http.StatusOK)
	})
	c, _ := testClient(t, mux)

	_, err := c.Subscribe(context.Background(), RenderingControl, "http://127.0.0.1:1/notify", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing SID")
}

func TestSubscribeErrorStatus(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(AVTransport.EventPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c, _ := testClient(t, mux)

	_, err := c.Subscribe(context.Background(), AVTransport, "http://127.0.0.1:1/notify", time.Minute)
	require.Error(t, err)
}

func TestParseGENATimeout(t *testing.T) {
	t.Parallel()

	d, err := parseGENATimeout("Second-600")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, d)

	d, err = parseGENATimeout("second-60")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = parseGENATimeout("infinite")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	_, err = parseGENATimeout("")
	assert.Error(t, err)
	_, err = parseGENATimeout("Second-0")
	assert.Error(t, err)
}
