package engine

import "fmt"

// IncompatibleVersionError reports that the remote engine is older than the
// minimum version this client supports. Under production configuration it is
// treated like an authentication failure: forced logout with this error as
// the distinguished reason.
type IncompatibleVersionError struct {
	Have string
	Need string
}

func (e *IncompatibleVersionError) Error() string {
	return fmt.Sprintf("engine version %s is not supported, %s or newer is required", e.Have, e.Need)
}
