package upnp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultPort = 1400

// Client talks SOAP to a single physical device. It is safe for
// concurrent use; retry state lives per call.
type Client struct {
	IP    string
	Port  int
	HTTP  *http.Client
	Retry RetryPolicy

	log zerolog.Logger
}

func NewClient(ip string) *Client {
	return &Client{
		IP:    ip,
		Port:  defaultPort,
		HTTP:  &http.Client{},
		Retry: DefaultRetryPolicy(),
		log:   log.With().Str("component", "upnp").Str("device_ip", ip).Logger(),
	}
}

func (c *Client) BaseURL() string {
	port := c.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("http://%s:%d", c.IP, port)
}

// Call dispatches a SOAP action and returns the flattened response
// arguments. Connection errors, timeouts and busy faults are retried
// with exponential backoff per the client's policy; every other fault
// fails immediately with its code attached.
func (c *Client) Call(ctx context.Context, svc Service, action string, args map[string]string) (map[string]string, error) {
	policy := c.Retry.normalized()

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := policy.delay(attempt - 1)
			c.log.Debug().Str("action", action).Int("attempt", attempt).
				Dur("backoff", wait).Msg("retrying soap call")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		out, err := c.dispatch(ctx, policy.AttemptTimeout, svc, action, args)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (c *Client) dispatch(ctx context.Context, timeout time.Duration, svc Service, action string, args map[string]string) (map[string]string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := buildEnvelope(svc.URN, action, args)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.BaseURL()+svc.ControlPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", fmt.Sprintf("%q", svc.URN+"#"+action))

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.log.Debug().Str("action", action).Dur("elapsed", time.Since(start)).
			Err(err).Msg("soap call failed")
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("action", action).Int("status", resp.StatusCode).
		Int("bytes", len(raw)).Dur("elapsed", time.Since(start)).Msg("soap response")

	switch {
	case resp.StatusCode == http.StatusOK:
		return parseEnvelope(raw)
	case resp.StatusCode == http.StatusInternalServerError:
		if f, ok := parseFault(raw); ok {
			return nil, f
		}
	}
	return nil, &statusError{status: resp.Status, code: resp.StatusCode}
}
