package employee

import (
	"math"
	"time"
)

// Status は社員の在籍状態を表します。
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Employee は勤怠から参照される社員ディレクトリのエントリです。
type Employee struct {
	ID          string
	Name        string
	Email       string
	Designation string
	Status      Status
	// ExpectedWorkingHours は 1 日の所定労働時間 (時間単位) です。nil は未設定を表します。
	ExpectedWorkingHours *float64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ExpectedWorkingDuration は所定労働時間を time.Duration で返します。
// 未設定または不正な値の場合は false を返します。
func (e *Employee) ExpectedWorkingDuration() (time.Duration, bool) {
	if e == nil || e.ExpectedWorkingHours == nil {
		return 0, false
	}
	hours := *e.ExpectedWorkingHours
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return 0, false
	}
	return time.Duration(hours * float64(time.Hour)), true
}
