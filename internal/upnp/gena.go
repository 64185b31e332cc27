package upnp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Subscription is a live GENA subscription on one device service. The
// SID identifies incoming NOTIFY requests; Timeout is the duration the
// device actually granted, which may differ from what we asked for.
type Subscription struct {
	SID     string
	Timeout time.Duration
	Service Service
}

// Subscribe opens a GENA subscription for svc, asking the device to
// POST NOTIFY requests to callbackURL.
func (c *Client) Subscribe(ctx context.Context, svc Service, callbackURL string, requested time.Duration) (Subscription, error) {
	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", c.BaseURL()+svc.EventPath, nil)
	if err != nil {
		return Subscription{}, err
	}
	req.Header.Set("CALLBACK", "<"+callbackURL+">")
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("TIMEOUT", formatGENATimeout(requested))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Subscription{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Subscription{}, &statusError{status: resp.Status, code: resp.StatusCode}
	}

	sid := strings.TrimSpace(resp.Header.Get("SID"))
	if sid == "" {
		return Subscription{}, fmt.Errorf("subscribe %s: missing SID", svc.Name)
	}
	granted, err := parseGENATimeout(resp.Header.Get("TIMEOUT"))
	if err != nil {
		return Subscription{}, fmt.Errorf("subscribe %s: %w", svc.Name, err)
	}
	c.log.Debug().Str("service", svc.Name).Str("sid", sid).
		Dur("granted", granted).Msg("subscribed")
	return Subscription{SID: sid, Timeout: granted, Service: svc}, nil
}

// Renew extends an existing subscription. The returned subscription
// keeps the same SID but carries the freshly granted timeout.
func (c *Client) Renew(ctx context.Context, sub Subscription, requested time.Duration) (Subscription, error) {
	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", c.BaseURL()+sub.Service.EventPath, nil)
	if err != nil {
		return Subscription{}, err
	}
	req.Header.Set("SID", sub.SID)
	req.Header.Set("TIMEOUT", formatGENATimeout(requested))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Subscription{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Subscription{}, &statusError{status: resp.Status, code: resp.StatusCode}
	}
	granted, err := parseGENATimeout(resp.Header.Get("TIMEOUT"))
	if err != nil {
		return Subscription{}, fmt.Errorf("renew %s: %w", sub.Service.Name, err)
	}
	sub.Timeout = granted
	return sub, nil
}

// Unsubscribe tears down a subscription. A 412 means the device had
// already forgotten the SID, which is the state we wanted anyway.
func (c *Client) Unsubscribe(ctx context.Context, sub Subscription) error {
	req, err := http.NewRequestWithContext(ctx, "UNSUBSCRIBE", c.BaseURL()+sub.Service.EventPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("SID", sub.SID)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPreconditionFailed {
		return nil
	}
	return &statusError{status: resp.Status, code: resp.StatusCode}
}

func formatGENATimeout(d time.Duration) string {
	secs := int(d / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return "Second-" + strconv.Itoa(secs)
}

func parseGENATimeout(header string) (time.Duration, error) {
	h := strings.TrimSpace(header)
	if strings.EqualFold(h, "infinite") {
		// Devices should not grant this, but cap it so renewal still fires.
		return 24 * time.Hour, nil
	}
	rest, ok := cutPrefixFold(h, "Second-")
	if !ok {
		return 0, fmt.Errorf("unexpected TIMEOUT header %q", header)
	}
	secs, err := strconv.Atoi(rest)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("unexpected TIMEOUT header %q", header)
	}
	return time.Duration(secs) * time.Second, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
