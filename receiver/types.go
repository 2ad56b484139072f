// Package receiver implements the device-level receiver namespace
// operations: GET_STATUS, SET_VOLUME, LAUNCH, STOP and
// GET_APP_AVAILABILITY.
package receiver

// ControlType enumerates how a device's volume can be adjusted.
type ControlType string

const (
	ControlTypeMaster      ControlType = "MASTER"
	ControlTypeAttenuation ControlType = "ATTENUATION"
	ControlTypeFixed       ControlType = "FIXED"
)

// Volume mirrors the device's volume sub-object.
type Volume struct {
	Level        float64     `json:"level"`
	Muted        bool        `json:"muted"`
	ControlType  ControlType `json:"controlType,omitempty"`
	StepInterval float64     `json:"stepInterval,omitempty"`
}

// AppSummary describes one running application as reported in a
// RECEIVER_STATUS applications list.
type AppSummary struct {
	AppID             string   `json:"appId"`
	DisplayName       string   `json:"displayName,omitempty"`
	IsIdleScreen      bool     `json:"isIdleScreen,omitempty"`
	LaunchedFromCloud bool     `json:"launchedFromCloud,omitempty"`
	Namespaces        []AppNS  `json:"namespaces,omitempty"`
	SessionID         string   `json:"sessionId"`
	StatusText        string   `json:"statusText,omitempty"`
	TransportID       string   `json:"transportId"`
}

// AppNS is one element of an AppSummary's namespaces list. The device
// wire format is an array of single-field objects, not an array of
// bare strings.
type AppNS struct {
	Name string `json:"name"`
}

// NamespaceSet returns the plain set of namespace strings an AppSummary
// advertises, for callers that don't care about the wire shape.
func (a AppSummary) NamespaceSet() []string {
	out := make([]string, len(a.Namespaces))
	for i, ns := range a.Namespaces {
		out[i] = ns.Name
	}
	return out
}

// Status is the device's receiver status: every running application
// plus the current volume.
type Status struct {
	Applications []AppSummary `json:"applications"`
	Volume       Volume       `json:"volume"`
}

// AppByID returns the application summary matching appID, if running.
func (s Status) AppByID(appID string) (AppSummary, bool) {
	for _, a := range s.Applications {
		if a.AppID == appID {
			return a, true
		}
	}
	return AppSummary{}, false
}

// Availability is one value reported by GET_APP_AVAILABILITY.
type Availability string

const (
	AppAvailable    Availability = "APP_AVAILABLE"
	AppNotAvailable Availability = "APP_NOT_AVAILABLE"
)
