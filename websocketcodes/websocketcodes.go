package websocketcodes

const (
	// StatusSuccess is given when a request over the websocket was handled.
	StatusSuccess = "OK"

	// StatusFailure is given when a request failed on the backend, e.g. a Firestore read.
	StatusFailure = "FAILURE"

	// StatusEndpointNotValid is given when the message is using an unsupported endpoint.
	StatusEndpointNotValid = "ENDPOINT_NOT_VALID"

	// StatusInvalidDate is given when a summary is requested for a malformed date.
	StatusInvalidDate = "INVALID_DATE"
)
