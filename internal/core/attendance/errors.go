package attendance

import (
	"errors"
	"fmt"
)

// エラー種別。個々のエラーはいずれかをラップしているため errors.Is で判定できます。
var (
	ErrValidation             = errors.New("attendance: validation failed")
	ErrInvalidTransition      = errors.New("attendance: invalid transition")
	ErrNotFound               = errors.New("attendance: not found")
	ErrConflict               = errors.New("attendance: conflict")
	ErrConcurrentModification = errors.New("attendance: concurrent modification")
	ErrForbidden              = errors.New("attendance: forbidden")
	ErrStoreUnavailable       = errors.New("attendance: store unavailable")
)

var (
	ErrInvalidEmployeeID   = fmt.Errorf("%w: invalid employee id", ErrValidation)
	ErrInvalidWorkDay      = fmt.Errorf("%w: invalid work day", ErrValidation)
	ErrInvalidTimeFormat   = fmt.Errorf("%w: invalid time format", ErrValidation)
	ErrInvalidCoordinates  = fmt.Errorf("%w: invalid coordinates", ErrValidation)
	ErrInvalidStatus       = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrInvalidID           = fmt.Errorf("%w: invalid id", ErrValidation)
	ErrInvalidPageSize     = fmt.Errorf("%w: invalid page size", ErrValidation)
	ErrInvalidPageToken    = fmt.Errorf("%w: invalid page token", ErrValidation)
	ErrInvalidBreakTime    = fmt.Errorf("%w: break start precedes login or previous break", ErrValidation)
	ErrLoginOutsideWorkDay = fmt.Errorf("%w: login time outside the work day", ErrValidation)

	ErrInvalidDuration   = fmt.Errorf("%w: break duration must be positive", ErrInvalidTransition)
	ErrNoBreakStarted    = fmt.Errorf("%w: no break started", ErrInvalidTransition)
	ErrInvalidLogoutTime = fmt.Errorf("%w: logout time must be after login", ErrInvalidTransition)
	ErrSessionClosed     = fmt.Errorf("%w: session already closed for the day", ErrInvalidTransition)

	ErrRecordNotFound  = fmt.Errorf("%w: record", ErrNotFound)
	ErrNoSessionFound  = fmt.Errorf("%w: no session for the day", ErrNotFound)
	ErrAlreadyLoggedIn = fmt.Errorf("%w: already logged in", ErrConflict)
	ErrDuplicateRecord = fmt.Errorf("%w: duplicate record", ErrConflict)
)
