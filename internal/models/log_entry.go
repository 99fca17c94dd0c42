package models

// LogEntry is the shape of one structured log line as shipped to the log pipeline.
type LogEntry struct {
	// ServiceName identifies the emitting process, e.g. "rag-service" or "ingest-service".
	ServiceName string `json:"service_name"`

	// TraceID ties together every line produced while serving one request.
	TraceID string `json:"trace_id,omitempty"`

	// UserID is the authenticated caller, if any.
	UserID string `json:"user_id,omitempty"`

	RequestInfo *RequestInfo `json:"request_info,omitempty"`

	Error *ErrorInfo `json:"error,omitempty"`

	Payload map[string]interface{} `json:"payload,omitempty"`
}

// RequestInfo describes the HTTP request that produced a log line.
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
}

// ErrorInfo is the structured form of an error in a log line.
type ErrorInfo struct {
	Message    string `json:"message"`
	Stack      string `json:"stack,omitempty"`
	Type       string `json:"type,omitempty"` // error kind, e.g. "invalid_input"
	StatusCode int    `json:"status_code,omitempty"`
}

// ErrorInfoFrom builds an ErrorInfo from err, classifying it by kind.
func ErrorInfoFrom(err error, status int) ErrorInfo {
	if err == nil {
		return ErrorInfo{StatusCode: status}
	}
	return ErrorInfo{
		Message:    err.Error(),
		Type:       KindOf(err).String(),
		StatusCode: status,
	}
}
