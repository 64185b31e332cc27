package topology

import (
	"context"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/zonehub/zonehub/internal/upnp"
)

const (
	mdnsServiceType = "_sonos._tcp"
	mdnsDomain      = "local."
)

// mdnsSearch browses mDNS for ZonePlayers as a fallback when SSDP is
// filtered (some networks drop multicast UDP responses but pass mDNS).
// Returns candidate description URLs keyed off each responder's
// address.
func mdnsSearch(ctx context.Context, timeout time.Duration) ([]string, error) {
	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		_ = zeroconf.Browse(browseCtx, mdnsServiceType, mdnsDomain, entries, removed)
	}()

	seen := map[string]struct{}{}
	var locations []string
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return locations, nil
			}
			for _, ip := range entry.AddrIPv4 {
				addr := ip.String()
				if _, dup := seen[addr]; dup {
					continue
				}
				seen[addr] = struct{}{}
				locations = append(locations, upnp.DescriptionURL(addr))
			}
		case _, ok := <-removed:
			if !ok {
				return locations, nil
			}
			// Departures during a one-shot browse are irrelevant.
		case <-browseCtx.Done():
			return locations, nil
		}
	}
}
