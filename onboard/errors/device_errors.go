package errors

import "fmt"

// ProtocolError reports a payload that could not be decoded. Offset is the
// byte position at which decoding gave up.
type ProtocolError struct {
	Offset int
	Reason string
}

func (err *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error at byte %d: %s", err.Offset, err.Reason)
}

// ConfigIndexError is returned for configuration indices outside 1..MaxConfigIndex.
type ConfigIndexError struct {
	Index int
	Max   int
}

func (err ConfigIndexError) Error() string {
	return fmt.Sprintf("invalid configuration index: %d. Must be between 1 and %d", err.Index, err.Max)
}

type AlgorithmNameError struct {
	Name string
}

func (err AlgorithmNameError) Error() string {
	return fmt.Sprintf("no such algorithm %s", err.Name)
}

// DetectorInitError wraps whatever stopped a detector from starting. It is
// always fatal to the control loop.
type DetectorInitError struct {
	Algorithm string
	Err       error
}

func (err DetectorInitError) Error() string {
	if len(err.Algorithm) == 0 {
		err.Algorithm = "UNKNOWN"
	}

	return fmt.Sprintf("unable to start algorithm %s: %v", err.Algorithm, err.Err)
}

func (err DetectorInitError) Unwrap() error {
	return err.Err
}
