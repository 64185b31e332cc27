package topology

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zonehub/zonehub/internal/upnp"
)

const scanWorkers = 128

// scanSubnets probes port 1400 across the given /24 prefixes (or every
// local interface's /24 when none are configured) and fetches device
// descriptions from responders. Last-resort discovery for networks
// that filter both SSDP and mDNS.
func scanSubnets(ctx context.Context, prefixes []string, timeout time.Duration) ([]string, error) {
	if len(prefixes) == 0 {
		var err error
		prefixes, err = localSubnetPrefixes()
		if err != nil {
			return nil, err
		}
	}
	if len(prefixes) == 0 {
		return nil, fmt.Errorf("no local IPv4 subnets to scan")
	}

	httpClient := &http.Client{Timeout: timeout}

	var mu sync.Mutex
	var locations []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanWorkers)

	for _, prefix := range prefixes {
		for host := 1; host <= 254; host++ {
			ip := fmt.Sprintf("%s.%d", prefix, host)
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				if !portOpen(ip, 1400, 350*time.Millisecond) {
					return nil
				}
				location := upnp.DescriptionURL(ip)
				if _, err := upnp.FetchDescription(gctx, httpClient, location); err != nil {
					return nil
				}
				mu.Lock()
				locations = append(locations, location)
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return locations, nil
}

func localSubnetPrefixes() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var prefixes []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP == nil {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			prefix := fmt.Sprintf("%d.%d.%d", ip4[0], ip4[1], ip4[2])
			if _, dup := seen[prefix]; dup {
				continue
			}
			seen[prefix] = struct{}{}
			prefixes = append(prefixes, prefix)
		}
	}
	return prefixes, nil
}

func portOpen(ip string, port int, timeout time.Duration) bool {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial("tcp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
