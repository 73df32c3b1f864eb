package serverutils

// Response is the envelope for every JSON body except the chat and model
// listing endpoints, whose shapes are fixed by existing clients.
type Response[T any] struct {
	Code    int    `json:"code"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

func SuccessResponse[T any](message string, data T) *Response[T] {
	return &Response[T]{
		Code:    200,
		Success: true,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(code int, message string) *Response[any] {
	return &Response[any]{
		Code:    code,
		Success: false,
		Message: message,
	}
}

// ErrorResponseWithData is used when the client needs detail, e.g. the
// offending fields of a failed validation.
func ErrorResponseWithData[T any](code int, message string, data T) *Response[T] {
	return &Response[T]{
		Code:    code,
		Success: false,
		Message: message,
		Data:    data,
	}
}
