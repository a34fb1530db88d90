// Package errors provides the sentinel's structured error type.
// Codes map onto gRPC status codes and HTTP statuses so every surface reports failures the same way.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain is the ErrorInfo domain attached to gRPC statuses.
const Domain = "queue-sentinel"

// Code classifies an AppError.
type Code string

const (
	Unknown             Code = "UNKNOWN"
	Internal            Code = "INTERNAL"
	InvalidArgument     Code = "INVALID_ARGUMENT"
	NotFound            Code = "NOT_FOUND"
	Unavailable         Code = "UNAVAILABLE"
	Timeout             Code = "TIMEOUT"
	Cancelled           Code = "CANCELLED"
	WindowGone          Code = "WINDOW_GONE"
	CaptureFailed       Code = "CAPTURE_FAILED"
	CaptureUnsupported  Code = "CAPTURE_UNSUPPORTED"
	AudioInitFailed     Code = "AUDIO_INIT_FAILED"
	AudioPlaybackFailed Code = "AUDIO_PLAYBACK_FAILED"
	ConfigCorrupt       Code = "CONFIG_CORRUPT"
	ConfigMissing       Code = "CONFIG_MISSING"
	ReferenceMissing    Code = "REFERENCE_MISSING"
	RegionOutOfRange    Code = "REGION_OUT_OF_RANGE"
	TransitionRejected  Code = "TRANSITION_REJECTED"
)

var grpcCodeMap = map[Code]codes.Code{
	Unknown:             codes.Unknown,
	Internal:            codes.Internal,
	InvalidArgument:     codes.InvalidArgument,
	NotFound:            codes.NotFound,
	Unavailable:         codes.Unavailable,
	Timeout:             codes.DeadlineExceeded,
	Cancelled:           codes.Canceled,
	WindowGone:          codes.NotFound,
	CaptureFailed:       codes.Internal,
	CaptureUnsupported:  codes.Unimplemented,
	AudioInitFailed:     codes.Unavailable,
	AudioPlaybackFailed: codes.Internal,
	ConfigCorrupt:       codes.DataLoss,
	ConfigMissing:       codes.FailedPrecondition,
	ReferenceMissing:    codes.FailedPrecondition,
	RegionOutOfRange:    codes.OutOfRange,
	TransitionRejected:  codes.FailedPrecondition,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// HTTPStatus returns the status code the HTTP API answers with.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case NotFound, WindowGone:
		return http.StatusNotFound
	case InvalidArgument, RegionOutOfRange:
		return http.StatusBadRequest
	case TransitionRejected, ReferenceMissing:
		return http.StatusConflict
	case CaptureUnsupported:
		return http.StatusNotImplemented
	case Unavailable, AudioInitFailed:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ToProto converts to a google.rpc.ErrorInfo detail.
func (e *AppError) ToProto() *errdetails.ErrorInfo {
	info := &errdetails.ErrorInfo{Reason: string(e.Code), Domain: Domain}
	if len(e.Metadata) > 0 {
		info.Metadata = e.Metadata
	}
	return info
}

// GRPCStatus returns a gRPC status with the ErrorInfo attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Message)
	if withDetail, err := st.WithDetails(e.ToProto()); err == nil {
		return withDetail
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: Unknown, Message: err.Error(), Cause: err}
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == Domain {
			return &AppError{Code: Code(info.GetReason()), Message: st.Message(), Metadata: info.GetMetadata()}
		}
	}
	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message()}
}

// grpcToCode maps gRPC codes back to our codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.NotFound:
		return NotFound
	case codes.Unavailable:
		return Unavailable
	case codes.DeadlineExceeded:
		return Timeout
	case codes.Canceled:
		return Cancelled
	case codes.Internal:
		return Internal
	case codes.FailedPrecondition:
		return ConfigMissing
	case codes.OutOfRange:
		return RegionOutOfRange
	case codes.Unimplemented:
		return CaptureUnsupported
	default:
		return Unknown
	}
}

// CodeOf returns the code of the first AppError in err's chain, or Unknown.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}

// IsCode checks if an error has a specific error code anywhere in its chain.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case Unavailable, Timeout, CaptureFailed:
		return true
	default:
		return false
	}
}

// As is errors.As from the standard library.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Is is errors.Is from the standard library.
func Is(err, target error) bool { return stderrors.Is(err, target) }
