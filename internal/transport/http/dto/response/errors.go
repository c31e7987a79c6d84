package response

var (
	ErrInvalidRequestFormat = ErrorResponse{
		Status:  "error",
		Error:   "invalid_request",
		Details: "Invalid request format",
	}

	ErrNotFound = ErrorResponse{
		Status: "error",
		Error:  "not_found",
	}

	ErrUnauthorizedUpload = ErrorResponse{
		Status: "error",
		Error:  "upload_not_authorized",
	}

	ErrPayloadTooLarge = ErrorResponse{
		Status: "error",
		Error:  "payload_too_large",
	}

	ErrNoPreview = ErrorResponse{
		Status: "error",
		Error:  "no_preview",
	}

	ErrViewClosed = ErrorResponse{
		Status: "error",
		Error:  "view_closed",
	}

	ErrInternal = ErrorResponse{
		Status:  "error",
		Error:   "internal_error",
		Details: "Internal server error",
	}
)
