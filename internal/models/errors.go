package models

import (
	"errors"
	"fmt"
)

var (
	ErrDataInsufficient     = errors.New("data insufficient")
	ErrInvalidSeries        = errors.New("invalid candle series")
	ErrPrecisionRejected    = errors.New("precision rejected")
	ErrOrderRejected        = errors.New("order rejected")
	ErrFillTimeout          = errors.New("fill timeout")
	ErrInsufficientNotional = errors.New("insufficient notional")
	ErrNotFlatAfterRetries  = errors.New("not flat after retries")
	ErrExchange             = errors.New("exchange error")
)

// Error связывает вид ошибки из таксономии с исходной причиной.
// errors.Is срабатывает и на Kind, и на Cause.
type Error struct {
	Kind  error
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Cause)
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func Wrap(kind error, op string, cause error) error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}
