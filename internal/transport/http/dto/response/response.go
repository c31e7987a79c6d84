package response

type Response struct {
	Status  string      `json:"status"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func SuccessResponse(data interface{}) Response {
	return Response{
		Status: "success",
		Data:   data,
	}
}

// MessageResponse acknowledges a write that has no body to return.
func MessageResponse(message string) Response {
	return Response{
		Status:  "success",
		Message: message,
	}
}

func ErrorResponseWithDetails(err, details string) ErrorResponse {
	return ErrorResponse{
		Status:  "error",
		Error:   err,
		Details: details,
	}
}

// ErrorWithCause builds an ErrorResponse from a base error and the cause reported to the client.
func ErrorWithCause(base ErrorResponse, cause error) ErrorResponse {
	if cause == nil {
		return base
	}
	return ErrorResponseWithDetails(base.Error, cause.Error())
}
