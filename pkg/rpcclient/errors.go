package rpcclient

import (
	"fmt"
)

// GatewayError is returned for any failed node call, be it a transport,
// protocol or node-side error. Node-side errors are *btcrpc.Error and can be
// checked for with errors.As/errors.Is.
type GatewayError struct {
	Method string
	Err    error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Method, e.Err)
}

// Unwrap returns the underlying error.
func (e *GatewayError) Unwrap() error {
	return e.Err
}
