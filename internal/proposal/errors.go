package proposal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"procurement/models"

	"github.com/google/uuid"
)

// Kind классифицирует ошибки движка предложений.
type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindConflict           Kind = "Conflict"
	KindSessionClosed      Kind = "SessionClosed"
	KindInvalidTransition  Kind = "InvalidTransition"
	KindMissingDeclaration Kind = "MissingDeclaration"
	KindEmptyProposal      Kind = "EmptyProposal"
	KindForbidden          Kind = "Forbidden"
	KindMissingReason      Kind = "MissingReason"
	KindInvalid            Kind = "Invalid"
	KindOverrideActive     Kind = "OverrideActive"
)

// Error описывает типизированную ошибку с контекстом, достаточным вызывающему
// для принятия решения (идентификаторы, текущий статус, конфликтующая запись).
type Error struct {
	Kind          Kind
	Message       string
	ProposalID    uuid.UUID
	ConflictingID uuid.UUID
	TenderID      uuid.UUID
	Status        models.ProposalStatus
	Action        Action
	OpeningTime   *time.Time
	Err           error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.ProposalID != uuid.Nil {
		fmt.Fprintf(&b, " (proposal %s)", e.ProposalID)
	}
	if e.ConflictingID != uuid.Nil {
		fmt.Fprintf(&b, " (existing proposal %s)", e.ConflictingID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает ошибки по виду, чтобы errors.Is(err, ErrConflict) работал
// для любой ошибки с KindConflict.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrSessionClosed      = &Error{Kind: KindSessionClosed}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrMissingDeclaration = &Error{Kind: KindMissingDeclaration}
	ErrEmptyProposal      = &Error{Kind: KindEmptyProposal}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrMissingReason      = &Error{Kind: KindMissingReason}
	ErrInvalid            = &Error{Kind: KindInvalid}
	ErrOverrideActive     = &Error{Kind: KindOverrideActive}
)

// Ошибки хранилища. Реализации репозитория оборачивают их, а менеджер
// переводит в таксономию выше.
var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
	ErrStaleVersion    = errors.New("stale proposal version")
)

// KindOf возвращает вид ошибки движка или пустую строку.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func notFound(what string, id uuid.UUID) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", what, id)}
}

func invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// translateLookup превращает ErrRecordNotFound в NotFound, остальное оборачивает.
func translateLookup(err error, what string, id uuid.UUID) error {
	if errors.Is(err, ErrRecordNotFound) {
		return notFound(what, id)
	}
	return fmt.Errorf("load %s %s: %w", what, id, err)
}
