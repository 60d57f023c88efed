package networking

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidStatus is returned when a response carries a status other than OK or ERROR.
var ErrInvalidStatus = errors.New("networking: invalid response status")

// Status is the result marker every backend response carries.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// UnmarshalJSON rejects anything but "OK" and "ERROR".
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch Status(raw) {
	case StatusOK, StatusError:
		*s = Status(raw)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// ObjectRequest wraps a payload in the requestObject envelope the backend expects.
type ObjectRequest[T any] struct {
	RequestObject T `json:"requestObject"`
}

// NewObjectRequest wraps obj.
func NewObjectRequest[T any](obj T) ObjectRequest[T] {
	return ObjectRequest[T]{RequestObject: obj}
}

// StatusResponse is a response without payload.
type StatusResponse struct {
	Status Status `json:"status"`
}

// ObjectResponse is a response carrying a typed responseObject.
type ObjectResponse[T any] struct {
	Status         Status `json:"status"`
	ResponseObject T      `json:"responseObject"`
}

// ErrorResponse is the body the backend returns for failed calls.
type ErrorResponse struct {
	Status         Status              `json:"status"`
	ResponseObject ErrorResponseObject `json:"responseObject"`
}

// ErrorResponseObject carries the backend error code and message.
type ErrorResponseObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode returns the registry code for Code, or "" when unknown.
func (o ErrorResponseObject) ErrorCode() ErrorCode {
	code, _ := ParseErrorCode(o.Code)
	return code
}

// statusPeek reads only the status field of a response.
type statusPeek struct {
	Status string `json:"status"`
}
