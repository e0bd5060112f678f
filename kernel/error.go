// Package kernel defines the error type shared by all kernel subsystems.
package kernel

// Error is the error type returned by kernel code. As the Go allocator cannot
// be assumed to be available at the point where an error is raised, errors.New
// is off limits; every kernel error must instead be declared as a global
// variable pointing to an Error value. Callers compare returned errors by
// identity.
type Error struct {
	// The subsystem that raised the error.
	Module string

	// The error message.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
