package attendance

import (
	"time"

	"github.com/ogurasousui/attendance-grpc/internal/core/employee"
)

// Status は勤怠セッションの状態です。
type Status string

const (
	StatusActive       Status = "active"
	StatusOnBreak      Status = "on_break"
	StatusPresent      Status = "present"
	StatusAbsent       Status = "absent"
	StatusForcedClosed Status = "forced_closed"
)

// ParseStatus は文字列を Status に変換します。列挙外の値は ErrInvalidStatus です。
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusActive, StatusOnBreak, StatusPresent, StatusAbsent, StatusForcedClosed:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

// IsTerminal はその日のレコードがこれ以上変更されない状態かを返します。
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusForcedClosed:
		return true
	default:
		return false
	}
}

// Record は (社員, 勤務日) ごとに 1 件だけ存在する勤怠レコードです。
// 時刻はすべて epoch ミリ秒、BreakDuration はミリ秒です。
type Record struct {
	ID                    string
	EmployeeID            string
	WorkDay               WorkDay
	DayOfWeek             string
	LoginTime             int64
	BreakStartTime        *int64
	BreakEndTime          *int64
	BreakDuration         int64
	StartLatitude         float64
	StartLongitude        float64
	EndLatitude           *float64
	EndLongitude          *float64
	LogoutTime            *int64
	WorkingHoursCompleted bool
	Status                Status
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsOpen はログイン済みかつ未ログアウトかを返します。
func (r *Record) IsOpen() bool {
	return r != nil && r.LogoutTime == nil && !r.Status.IsTerminal()
}

// Clone はポインタフィールドを含めて複製します。
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.BreakStartTime = cloneInt64(r.BreakStartTime)
	c.BreakEndTime = cloneInt64(r.BreakEndTime)
	c.LogoutTime = cloneInt64(r.LogoutTime)
	c.EndLatitude = cloneFloat64(r.EndLatitude)
	c.EndLongitude = cloneFloat64(r.EndLongitude)
	return &c
}

// RecordView は管理者向けに社員プロフィールを結合したビューです。
type RecordView struct {
	Record   *Record
	Employee *employee.Employee
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat64(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
