package secrets

import "fmt"

// ErrorCode is the stable, semantic error taxonomy shared by every verb.
// Names are chosen for meaning, not for the internal Go type that carries
// them, so that they can be reported verbatim to clients across the IPC
// boundary.
type ErrorCode string

const (
	// Argument errors
	ErrInvalidCollection     ErrorCode = "InvalidCollection"
	ErrInvalidSecret         ErrorCode = "InvalidSecret"
	ErrInvalidExtensionPlugin ErrorCode = "InvalidExtensionPlugin"
	ErrReservedName          ErrorCode = "ReservedName"

	// State errors
	ErrCollectionAlreadyExists ErrorCode = "CollectionAlreadyExists"
	ErrCollectionIsLocked      ErrorCode = "CollectionIsLocked"
	ErrIncorrectAuthenticationKey ErrorCode = "IncorrectAuthenticationKey"

	// Policy errors
	ErrPermissions                          ErrorCode = "Permissions"
	ErrOperationNotSupported                ErrorCode = "OperationNotSupported"
	ErrOperationRequiresUserInteraction     ErrorCode = "OperationRequiresUserInteraction"
	ErrOperationRequiresInProcessUserInteraction ErrorCode = "OperationRequiresInProcessUserInteraction"

	// Plugin errors
	ErrSecretsPluginDecryption ErrorCode = "SecretsPluginDecryption"
	ErrPluginFailure           ErrorCode = "PluginFailure"

	// Storage errors
	ErrDatabaseQuery       ErrorCode = "DatabaseQuery"
	ErrDatabaseTransaction ErrorCode = "DatabaseTransaction"

	// Queue errors
	ErrSecretsDaemonRequestQueueFull ErrorCode = "SecretsDaemonRequestQueueFull"

	// Transport errors
	ErrDaemonError ErrorCode = "DaemonError"
	ErrUnknown     ErrorCode = "UnknownError"
)

// Error wraps an ErrorCode with a human-readable message. It is the
// concrete Go error value carried inside a Failed Result and returned by
// every internal API in this module.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is allows errors.Is(err, secrets.NewError(ErrInvalidSecret, "")) to match
// any *Error with the same code, regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError constructs an *Error for the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf constructs an *Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the ErrorCode from err, defaulting to ErrUnknown when err
// is not a *Error. A nil err also yields ErrUnknown, so callers check
// err != nil first.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ErrUnknown
}
