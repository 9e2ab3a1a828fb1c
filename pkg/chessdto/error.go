package chessdto

// DomainError is the JSON error body of the control API.
type DomainError struct {
	Code      string `json:"code,omitempty"`
	Message   string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess client error"
}
