package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrDecode           = errors.New("decode image")
	ErrEncode           = errors.New("encode image")
	ErrIO               = errors.New("image io")
)

const (
	ReasonInvalidParameter = "invalid_parameter"
	ReasonDecode           = "decode"
	ReasonEncode           = "encode"
	ReasonIO               = "io"
	ReasonCanceled         = "canceled"
	ReasonUnknown          = "unknown"
)

// ReasonOf maps an error to the failure tag recorded on a FileResult.
func ReasonOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidParameter):
		return ReasonInvalidParameter
	case errors.Is(err, ErrDecode):
		return ReasonDecode
	case errors.Is(err, ErrEncode):
		return ReasonEncode
	case errors.Is(err, ErrIO):
		return ReasonIO
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	default:
		return ReasonUnknown
	}
}
