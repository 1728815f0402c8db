package models

import "errors"

// 领域错误。冲突类错误的消息直接展示给用户
var (
	ErrNotFound              = errors.New("record not found")
	ErrDuplicatePhone        = errors.New("Este número de teléfono ya está registrado")
	ErrDuplicateIdentityCard = errors.New("Este número de CI ya está registrado")
	ErrDuplicateSlot         = errors.New("Este espacio ya está ocupado")
	ErrDuplicateCompletion   = errors.New("task already completed by member")
	ErrInvalidCredentials    = errors.New("Teléfono o código incorrecto")
	ErrTaskExpired           = errors.New("La tarea ya expiró")
)

// IsConflict reports whether err is one of the conflict errors surfaced verbatim to the user
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicatePhone) ||
		errors.Is(err, ErrDuplicateIdentityCard) ||
		errors.Is(err, ErrDuplicateSlot)
}

// ValidationError is an input problem caught before anything is written.
type ValidationError struct {
	field   string
	message string
}

// NewValidationError 创建字段校验错误
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{field: field, message: message}
}

func (e *ValidationError) Error() string { return e.message }

// Field names the offending input field
func (e *ValidationError) Field() string { return e.field }
