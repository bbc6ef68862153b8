package errors

const (
	HttpInternalError               = "internal_error"
	HttpInvalidJsonError            = "invalid_json"
	HttpInvalidReportError          = "invalid_report"
	HttpReportNotFoundError         = "report_not_found"
	HttpNotSupportedError           = "aggregation_not_supported"
	HttpUnsupportedAggregationError = "unsupported_aggregation"
	HttpAlreadyExistsError          = "report_already_exists"
	HttpQueryFailedError            = "query_failed"
)

// ErrorResponse is the error response body for realtime API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
