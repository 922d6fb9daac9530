package recovery

import "fmt"

// StrictStrategy fails on the first error encountered.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy { return &StrictStrategy{} }

func (s *StrictStrategy) OnError(ctx Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy records every error and keeps going. The accumulated
// errors are available after the operation completes.
type LenientStrategy struct {
	Errors []error
}

func NewLenientStrategy() *LenientStrategy { return &LenientStrategy{} }

func (s *LenientStrategy) OnError(ctx Context, err error, location Location) Action {
	s.Errors = append(s.Errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	return ActionWarn
}
