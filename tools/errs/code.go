package errs

const (
	ServerInternalError = 500

	ArgsError           = 1001
	NoPermissionError   = 1002
	RecordNotFoundError = 1004
	StateConflictError  = 1005

	TokenInvalidError = 1501
	TokenExpiredError = 1502
	TokenMissingError = 1503
)

var (
	ErrInternalServer = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrArgs           = NewCodeError(ArgsError, "ArgsError")
	ErrNoPermission   = NewCodeError(NoPermissionError, "NoPermissionError")
	ErrRecordNotFound = NewCodeError(RecordNotFoundError, "RecordNotFoundError")
	ErrStateConflict  = NewCodeError(StateConflictError, "StateConflictError")

	ErrTokenInvalid = NewCodeError(TokenInvalidError, "TokenInvalidError")
	ErrTokenExpired = NewCodeError(TokenExpiredError, "TokenExpiredError")
	ErrTokenMissing = NewCodeError(TokenMissingError, "TokenMissingError")
)
