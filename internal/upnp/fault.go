package upnp

import (
	"errors"
	"fmt"
)

// FaultCode is the numeric error code carried in a UPnP SOAP fault.
type FaultCode string

const (
	FaultInvalidAction          FaultCode = "401"
	FaultInvalidArgs            FaultCode = "402"
	FaultActionFailed           FaultCode = "501"
	FaultArgumentInvalid        FaultCode = "600"
	FaultArgumentOutOfRange     FaultCode = "601"
	FaultOutOfMemory            FaultCode = "603"
	FaultNotAuthorized          FaultCode = "606"
	FaultTransitionUnavailable  FaultCode = "701"
	FaultTransportLocked        FaultCode = "705"
	FaultContentBusy            FaultCode = "708"
)

// Fault is a structured SOAP fault returned by a device. The code lets
// callers separate rejected-on-principle requests from busy-type
// conditions worth retrying.
type Fault struct {
	Code        FaultCode
	Description string
}

func (f *Fault) Error() string {
	if f.Description == "" {
		return "upnp fault " + string(f.Code)
	}
	return fmt.Sprintf("upnp fault %s: %s", f.Code, f.Description)
}

// Retryable reports whether the fault is a transient busy condition.
// Only the fixed allow-list qualifies; anything else was rejected on
// principle and retrying would just risk duplicate side effects.
func (f *Fault) Retryable() bool {
	switch f.Code {
	case FaultOutOfMemory, FaultTransportLocked, FaultContentBusy:
		return true
	}
	return false
}

// IsFault reports whether err wraps a Fault with the given code.
func IsFault(err error, code FaultCode) bool {
	var f *Fault
	return errors.As(err, &f) && f.Code == code
}
