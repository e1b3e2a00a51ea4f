package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
const (
	CodeUnknown         = "UNKNOWN"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeRoomNotFound    = "ROOM_NOT_FOUND"
	CodeRoomEmpty       = "ROOM_EMPTY"
	CodeRoomFull        = "ROOM_FULL"
)

var enUSMessages = map[Code]string{
	CodeUnknown:         "something went wrong",
	CodeInvalidArgument: "invalid request",
	CodeRoomNotFound:    "room does not exist",
	CodeRoomEmpty:       "room is empty",
	CodeRoomFull:        "room is full",
}
