package topology

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"time"
)

type ssdpResult struct {
	Location string
	USN      string
}

// ssdpSearch multicasts an M-SEARCH for ZonePlayers and collects
// responses until the timeout. UDP is unreliable, so the query goes
// out several times; responses are deduplicated by location.
func ssdpSearch(ctx context.Context, timeout time.Duration) ([]ssdpResult, error) {
	payload := strings.Join([]string{
		"M-SEARCH * HTTP/1.1",
		"HOST: 239.255.255.250:1900",
		`MAN: "ssdp:discover"`,
		"MX: 1",
		"ST: urn:schemas-upnp-org:device:ZonePlayer:1",
		"", "",
	}, "\r\n")

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: net.ParseIP("239.255.255.250"), Port: 1900}
	for i := 0; i < 3; i++ {
		if _, err := conn.WriteToUDP([]byte(payload), dst); err != nil {
			return nil, err
		}
	}

	deadline := time.Now().Add(timeout)
	byLocation := map[string]ssdpResult{}
	buf := make([]byte, 64*1024)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			break
		}
		res, ok := parseSSDPResponse(buf[:n])
		if !ok || res.Location == "" {
			continue
		}
		byLocation[res.Location] = res
	}

	out := make([]ssdpResult, 0, len(byLocation))
	for _, v := range byLocation {
		out = append(out, v)
	}
	return out, nil
}

func parseSSDPResponse(b []byte) (ssdpResult, bool) {
	s := bufio.NewScanner(bytes.NewReader(b))
	s.Split(bufio.ScanLines)

	if !s.Scan() {
		return ssdpResult{}, false
	}
	if !strings.HasPrefix(strings.TrimSpace(s.Text()), "HTTP/") {
		return ssdpResult{}, false
	}

	headers := map[string]string{}
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			break
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	return ssdpResult{
		Location: headers["location"],
		USN:      headers["usn"],
	}, true
}
