package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ogurasousui/attendance-grpc/internal/core/employee"
	pgdb "github.com/ogurasousui/attendance-grpc/internal/platform/db/postgres"
)

// EmployeeRepository は社員マスタを参照する読み取り専用の実装です。
type EmployeeRepository struct {
	pool pgdb.Queryer
}

// NewEmployeeRepository は EmployeeRepository を生成します。
func NewEmployeeRepository(pool pgdb.Queryer) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

// FindByID は ID で社員を取得します。
func (r *EmployeeRepository) FindByID(ctx context.Context, id string) (*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT id, name, email, designation, status, expected_working_hours, created_at, updated_at
          FROM employees
         WHERE id = $1
         LIMIT 1
    `, id)

	found, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return found, nil
}

func scanEmployee(row pgx.Row) (*employee.Employee, error) {
	var (
		id, name, email      string
		designation          *string
		status               string
		expectedHours        *float64
		createdAt, updatedAt time.Time
	)

	if err := row.Scan(&id, &name, &email, &designation, &status, &expectedHours, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, employee.ErrEmployeeNotFound
		}
		return nil, err
	}

	emp := &employee.Employee{
		ID:                   id,
		Name:                 name,
		Email:                email,
		Status:               employee.Status(status),
		ExpectedWorkingHours: expectedHours,
		CreatedAt:            createdAt.UTC(),
		UpdatedAt:            updatedAt.UTC(),
	}
	if designation != nil {
		emp.Designation = *designation
	}
	return emp, nil
}

func translateEmployeePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, employee.ErrEmployeeNotFound) || errors.Is(err, pgx.ErrNoRows) {
		return employee.ErrEmployeeNotFound
	}
	if wrapped := unavailable(err); wrapped != nil {
		return wrapped
	}
	return err
}
