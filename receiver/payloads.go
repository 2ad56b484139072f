package receiver

import "github.com/ofmooseandmen/castv2/envelope"

const (
	typeGetStatus          = "GET_STATUS"
	typeSetVolume          = "SET_VOLUME"
	typeLaunch             = "LAUNCH"
	typeStop               = "STOP"
	typeGetAppAvailability = "GET_APP_AVAILABILITY"

	typeReceiverStatus = "RECEIVER_STATUS"
	typeLaunchError    = "LAUNCH_ERROR"
	typeInvalidRequest = "INVALID_REQUEST"
)

type getStatusRequest struct {
	envelope.Header
}

type setVolumeRequest struct {
	envelope.Header
	Volume Volume `json:"volume"`
}

type launchRequest struct {
	envelope.Header
	AppID string `json:"appId"`
}

type stopRequest struct {
	envelope.Header
	SessionID string `json:"sessionId"`
}

type getAppAvailabilityRequest struct {
	envelope.Header
	AppID []string `json:"appId"`
}

type statusResponse struct {
	envelope.Header
	Status Status `json:"status"`
}

type appAvailabilityResponse struct {
	envelope.Header
	Availability map[string]Availability `json:"availability"`
}
