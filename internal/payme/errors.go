package payme

import (
	"errors"
	"fmt"
)

// Gateway error codes per the Payme merchant protocol.
const (
	// CodeInvalidAmount rejects a mismatched payment amount.
	CodeInvalidAmount = -31001
	// CodeTransactionNotFound rejects an unknown gateway transaction id.
	CodeTransactionNotFound = -31003
	// CodeInvalidState rejects an operation forbidden in the current state.
	CodeInvalidState = -31008
	// CodeUnknownAccount rejects an unknown or unpayable account reference.
	CodeUnknownAccount = -31050
	// CodeAlreadyExists rejects a conflicting transaction for the same order.
	CodeAlreadyExists = -31099
	// CodeUnauthorized rejects a request with bad merchant credentials.
	CodeUnauthorized = -32504
	// CodeMethodNotFound rejects an unknown RPC method.
	CodeMethodNotFound = -32601
	// CodeInternalError reports an unexpected server-side failure.
	CodeInternalError = -32603
	// CodeParseError rejects a malformed request body.
	CodeParseError = -32700
)

// Error is a structured gateway error carried back on the JSON-RPC wire.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("payme: %s (%d)", e.Message, e.Code)
}

// Sentinel gateway errors. Callers match them with errors.Is.
var (
	ErrInvalidAmount  = &Error{Code: CodeInvalidAmount, Message: "invalid amount"}
	ErrUnknownAccount = &Error{Code: CodeUnknownAccount, Message: "unknown account", Data: "order_id"}
	ErrAlreadyExists  = &Error{Code: CodeAlreadyExists, Message: "transaction already exists for this order", Data: "order_id"}
	ErrNotFound       = &Error{Code: CodeTransactionNotFound, Message: "transaction not found"}
	ErrInvalidState   = &Error{Code: CodeInvalidState, Message: "operation not allowed in current transaction state"}
	ErrUnauthorized   = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrMethodNotFound = &Error{Code: CodeMethodNotFound, Message: "method not found"}
	ErrInternal       = &Error{Code: CodeInternalError, Message: "internal server error"}
)

// AsError converts any error into a gateway Error, wrapping unexpected
// failures as internal errors so raw database errors never leak.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var gatewayErr *Error
	if errors.As(err, &gatewayErr) {
		return gatewayErr
	}
	return ErrInternal
}
