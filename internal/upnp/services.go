package upnp

// Service describes one UPnP service on a ZonePlayer: where to POST
// control actions and where to send GENA SUBSCRIBE requests.
type Service struct {
	Name        string
	URN         string
	ControlPath string
	EventPath   string
}

var (
	AVTransport = Service{
		Name:        "AVTransport",
		URN:         "urn:schemas-upnp-org:service:AVTransport:1",
		ControlPath: "/MediaRenderer/AVTransport/Control",
		EventPath:   "/MediaRenderer/AVTransport/Event",
	}
	RenderingControl = Service{
		Name:        "RenderingControl",
		URN:         "urn:schemas-upnp-org:service:RenderingControl:1",
		ControlPath: "/MediaRenderer/RenderingControl/Control",
		EventPath:   "/MediaRenderer/RenderingControl/Event",
	}
	GroupRenderingControl = Service{
		Name:        "GroupRenderingControl",
		URN:         "urn:schemas-upnp-org:service:GroupRenderingControl:1",
		ControlPath: "/MediaRenderer/GroupRenderingControl/Control",
		EventPath:   "/MediaRenderer/GroupRenderingControl/Event",
	}
	ZoneGroupTopology = Service{
		Name:        "ZoneGroupTopology",
		URN:         "urn:schemas-upnp-org:service:ZoneGroupTopology:1",
		ControlPath: "/ZoneGroupTopology/Control",
		EventPath:   "/ZoneGroupTopology/Event",
	}
	ContentDirectory = Service{
		Name:        "ContentDirectory",
		URN:         "urn:schemas-upnp-org:service:ContentDirectory:1",
		ControlPath: "/MediaServer/ContentDirectory/Control",
		EventPath:   "/MediaServer/ContentDirectory/Event",
	}
	DeviceProperties = Service{
		Name:        "DeviceProperties",
		URN:         "urn:schemas-upnp-org:service:DeviceProperties:1",
		ControlPath: "/DeviceProperties/Control",
		EventPath:   "/DeviceProperties/Event",
	}
)

// ServiceByName resolves the well-known services used by the control
// plane. Unknown names return false.
func ServiceByName(name string) (Service, bool) {
	switch name {
	case AVTransport.Name:
		return AVTransport, true
	case RenderingControl.Name:
		return RenderingControl, true
	case GroupRenderingControl.Name:
		return GroupRenderingControl, true
	case ZoneGroupTopology.Name:
		return ZoneGroupTopology, true
	case ContentDirectory.Name:
		return ContentDirectory, true
	case DeviceProperties.Name:
		return DeviceProperties, true
	}
	return Service{}, false
}
