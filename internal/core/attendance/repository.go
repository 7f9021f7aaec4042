package attendance

import (
	"context"
	"time"

	"github.com/ogurasousui/attendance-grpc/internal/core/employee"
)

// Repository は勤怠レコードの永続化の抽象です。
//
// Create は同一キーのレコードが存在すれば ErrDuplicateRecord を返します。
// Save は Version による楽観ロックを行い、レコードが消えていれば ErrRecordNotFound、
// バージョン不一致なら ErrConcurrentModification を返します。
type Repository interface {
	Create(ctx context.Context, record *Record) (*Record, error)
	Save(ctx context.Context, record *Record) (*Record, error)
	FindByID(ctx context.Context, id string) (*Record, error)
	FindByEmployeeAndDay(ctx context.Context, employeeID string, day WorkDay) (*Record, error)
	ListOpenSessions(ctx context.Context, day WorkDay) ([]*Record, error)
	List(ctx context.Context, filter ListFilter) ([]*Record, string, error)
}

// ListFilter は一覧取得用フィルタです。
type ListFilter struct {
	WorkDay    *WorkDay
	EmployeeID string
	Status     *Status
	Limit      int
	Offset     int
}

// Directory は社員ディレクトリの参照口です。
type Directory interface {
	GetEmployee(ctx context.Context, id string) (*employee.Employee, error)
	GetExpectedWorkingHours(ctx context.Context, id string) (time.Duration, bool, error)
}
