// Package errors provides coded errors shared by the coordinator and its
// transports.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidArgument marks requests the transport could not decode.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Session join errors
	CodeRoomNotFound Code = "ROOM_NOT_FOUND"
	CodeRoomEmpty    Code = "ROOM_EMPTY"
	CodeRoomFull     Code = "ROOM_FULL"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidArgument:
		return codes.InvalidArgument
	case CodeRoomNotFound:
		return codes.NotFound
	case CodeRoomEmpty:
		return codes.FailedPrecondition
	case CodeRoomFull:
		return codes.ResourceExhausted
	default:
		return codes.Unknown
	}
}
