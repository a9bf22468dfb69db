package sentinel

// Error is a string-backed error that can be declared as a constant. A
// sentinel built with errors.New lives in a var and could be reassigned;
// declaring it as a const Error rules that out entirely.
//
// The type is comparable, so errors.Is matches it through wrapped chains
// with plain == and no custom Is method is needed.
type Error string

// Compile-time check that Error satisfies the error interface.
var _ error = Error("")

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}
