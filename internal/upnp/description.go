package upnp

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Description is the subset of a device description document the
// control plane keeps: identity plus the advertised service set, which
// drives capability-aware subscription.
type Description struct {
	UDN      string
	RoomName string
	Model    string
	IP       string
	Location string
	Services map[string]bool // keyed by service URN
}

// HasService reports whether the device advertises the service.
func (d Description) HasService(svc Service) bool {
	return d.Services[svc.URN]
}

type descriptionDoc struct {
	Device struct {
		DeviceType   string `xml:"deviceType"`
		RoomName     string `xml:"roomName"`
		ModelName    string `xml:"modelName"`
		Manufacturer string `xml:"manufacturer"`
		UDN          string `xml:"UDN"`
	} `xml:"device"`
}

// FetchDescription retrieves and validates a device description. Other
// UPnP gear on the network answers M-SEARCH too, so anything that is
// not a ZonePlayer is rejected here rather than polluting the fleet.
func FetchDescription(ctx context.Context, httpClient *http.Client, location string) (Description, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return Description{}, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return Description{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Description{}, fmt.Errorf("device description: %s", resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return Description{}, err
	}

	var doc descriptionDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return Description{}, err
	}

	deviceType := strings.TrimSpace(doc.Device.DeviceType)
	manufacturer := strings.TrimSpace(doc.Device.Manufacturer)
	if deviceType != "urn:schemas-upnp-org:device:ZonePlayer:1" &&
		!strings.Contains(strings.ToLower(manufacturer), "sonos") {
		return Description{}, fmt.Errorf("not a ZonePlayer (deviceType=%q manufacturer=%q)", deviceType, manufacturer)
	}

	udn := strings.TrimPrefix(strings.TrimSpace(doc.Device.UDN), "uuid:")
	ip, err := HostFromLocation(location)
	if err != nil {
		return Description{}, err
	}

	return Description{
		UDN:      udn,
		RoomName: strings.TrimSpace(doc.Device.RoomName),
		Model:    strings.TrimSpace(doc.Device.ModelName),
		IP:       ip,
		Location: location,
		Services: collectServiceURNs(raw),
	}, nil
}

// collectServiceURNs walks the whole document for <serviceType>
// elements. Descriptions nest services under embedded MediaRenderer
// and MediaServer sub-devices, so a token scan beats mirroring the
// full schema.
func collectServiceURNs(raw []byte) map[string]bool {
	services := map[string]bool{}
	dec := xml.NewDecoder(strings.NewReader(string(raw)))
	inServiceType := false
	var buf strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "serviceType" {
				inServiceType = true
				buf.Reset()
			}
		case xml.CharData:
			if inServiceType {
				buf.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "serviceType" {
				inServiceType = false
				if urn := strings.TrimSpace(buf.String()); urn != "" {
					services[urn] = true
				}
			}
		}
	}
	return services
}

// HostFromLocation extracts the host part of a description URL.
func HostFromLocation(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("location host missing: %q", location)
	}
	return host, nil
}

// DescriptionURL is where a ZonePlayer serves its description document.
func DescriptionURL(ip string) string {
	return fmt.Sprintf("http://%s:%d/xml/device_description.xml", ip, defaultPort)
}
