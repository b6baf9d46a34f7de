package api

// HTTPError carries the status and user-facing message for a failed
// request; ErrorLog holds the detail that goes to the log only.
type HTTPError struct {
	StatusCode int
	Message    string
	ErrorLog   error
}

func (e *HTTPError) Error() string {
	return e.Message
}

type ApiError struct {
	Error string `json:"message"`
}
