package protocol

import "fmt"

// ErrorCode is the numeric result carried in every envelope. The values are
// part of the wire contract.
type ErrorCode int

const (
	ResultOK ErrorCode = 0

	ErrUnknown                 ErrorCode = 1
	ErrNotSupportProfile       ErrorCode = 2
	ErrNotSupportAction        ErrorCode = 3
	ErrNotSupportAttribute     ErrorCode = 4
	ErrEmptyServiceID          ErrorCode = 5
	ErrNotFoundService         ErrorCode = 6
	ErrTimeout                 ErrorCode = 7
	ErrUnknownAttribute        ErrorCode = 8
	ErrInvalidRequestParameter ErrorCode = 10
	ErrIllegalDeviceState      ErrorCode = 16
)

var defaultMessages = map[ErrorCode]string{
	ErrUnknown:                 "Unknown error.",
	ErrNotSupportProfile:       "Not support profile.",
	ErrNotSupportAction:        "Not support action.",
	ErrNotSupportAttribute:     "Not support attribute.",
	ErrEmptyServiceID:          "Service ID is empty.",
	ErrNotFoundService:         "Service is not found.",
	ErrTimeout:                 "Response timeout.",
	ErrUnknownAttribute:        "Unknown attribute or interface.",
	ErrInvalidRequestParameter: "Invalid request parameter.",
	ErrIllegalDeviceState:      "Illegal device state.",
}

// DefaultMessage returns the text used when an error is raised without one.
func DefaultMessage(code ErrorCode) string {
	if msg, ok := defaultMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Error %d.", int(code))
}
