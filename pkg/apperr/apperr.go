// Package apperr holds the categorized errors shared by the capture,
// recording and transcription layers. Each Kind maps to a user-facing
// message and an HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindDeviceUnavailable   Kind = "DEVICE_UNAVAILABLE"
	KindPermissionDenied    Kind = "PERMISSION_DENIED"
	KindDeviceBusy          Kind = "DEVICE_BUSY"
	KindDeviceError         Kind = "DEVICE_ERROR"
	KindRecordingTooShort   Kind = "RECORDING_TOO_SHORT"
	KindTransportFailure    Kind = "TRANSPORT_FAILURE"
	KindEmptyTranscription  Kind = "EMPTY_TRANSCRIPTION"
	KindInvalidInput        Kind = "INVALID_INPUT"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindProviderUnavailable Kind = "PROVIDER_UNAVAILABLE"
	KindNotFound            Kind = "NOT_FOUND"
	KindInternal            Kind = "INTERNAL_ERROR"
)

var userMessages = map[Kind]string{
	KindDeviceUnavailable:   "No microphone detected. Please ensure a microphone is connected.",
	KindPermissionDenied:    "Microphone access was denied. Please allow microphone access in your settings.",
	KindDeviceBusy:          "Cannot access microphone. It may be in use by another application.",
	KindDeviceError:         "The microphone stopped unexpectedly. Please try recording again.",
	KindRecordingTooShort:   "Recording too short or empty. Please try again.",
	KindTransportFailure:    "Could not reach the transcription service. Please try again.",
	KindEmptyTranscription:  "Transcription service returned no text.",
	KindInvalidInput:        "The request was malformed.",
	KindRateLimited:         "Too many requests. Please wait a moment and try again.",
	KindProviderUnavailable: "The speech service is temporarily unavailable. Please try again.",
	KindNotFound:            "The requested resource was not found.",
	KindInternal:            "Something went wrong. Please try again.",
}

var httpStatuses = map[Kind]int{
	KindInvalidInput:        http.StatusBadRequest,
	KindRecordingTooShort:   http.StatusBadRequest,
	KindNotFound:            http.StatusNotFound,
	KindRateLimited:         http.StatusTooManyRequests,
	KindProviderUnavailable: http.StatusServiceUnavailable,
	KindTransportFailure:    http.StatusBadGateway,
}

// Error is a categorized error. Message is specific to the occurrence;
// UserMessage gives the generic text for the Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinels for errors.Is checks.
var (
	ErrDeviceUnavailable   = New(KindDeviceUnavailable, userMessages[KindDeviceUnavailable])
	ErrPermissionDenied    = New(KindPermissionDenied, userMessages[KindPermissionDenied])
	ErrDeviceBusy          = New(KindDeviceBusy, userMessages[KindDeviceBusy])
	ErrDeviceError         = New(KindDeviceError, userMessages[KindDeviceError])
	ErrRecordingTooShort   = New(KindRecordingTooShort, userMessages[KindRecordingTooShort])
	ErrTransportFailure    = New(KindTransportFailure, userMessages[KindTransportFailure])
	ErrEmptyTranscription  = New(KindEmptyTranscription, userMessages[KindEmptyTranscription])
	ErrInvalidInput        = New(KindInvalidInput, userMessages[KindInvalidInput])
	ErrRateLimited         = New(KindRateLimited, userMessages[KindRateLimited])
	ErrProviderUnavailable = New(KindProviderUnavailable, userMessages[KindProviderUnavailable])
	ErrNotFound            = New(KindNotFound, userMessages[KindNotFound])
)

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// UserMessage returns the human-readable text for kind.
func UserMessage(kind Kind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[KindInternal]
}

// HTTPStatus returns the response status used for kind.
func HTTPStatus(kind Kind) int {
	if status, ok := httpStatuses[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}
