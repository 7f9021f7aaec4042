package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/attendance-grpc/internal/core/attendance"
	pgdb "github.com/ogurasousui/attendance-grpc/internal/platform/db/postgres"
)

const attendanceColumns = `id, employee_id, to_char(work_day, 'YYYY-MM-DD'), day_of_week,
               login_time, break_start_time, break_end_time, break_duration,
               start_latitude, start_longitude, end_latitude, end_longitude,
               logout_time, working_hours_completed, status, version, created_at, updated_at`

// AttendanceRepository は PostgreSQL を利用した勤怠レコード永続化の実装です。
type AttendanceRepository struct {
	pool pgdb.Queryer
}

// NewAttendanceRepository は AttendanceRepository を生成します。
func NewAttendanceRepository(pool pgdb.Queryer) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// Create は勤怠レコードを挿入します。(employee_id, work_day) が既に存在する場合は ErrDuplicateRecord を返します。
func (r *AttendanceRepository) Create(ctx context.Context, rec *attendance.Record) (*attendance.Record, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO attendance_records (id, employee_id, work_day, day_of_week, login_time, break_duration,
                                        start_latitude, start_longitude, working_hours_completed, status, version,
                                        created_at, updated_at)
        VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (employee_id, work_day) DO NOTHING
        RETURNING `+attendanceColumns+`
    `,
		rec.ID,
		rec.EmployeeID,
		rec.WorkDay.String(),
		rec.DayOfWeek,
		rec.LoginTime,
		rec.BreakDuration,
		rec.StartLatitude,
		rec.StartLongitude,
		rec.WorkingHoursCompleted,
		string(rec.Status),
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
	)

	created, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, attendance.ErrRecordNotFound) {
			return nil, attendance.ErrDuplicateRecord
		}
		return nil, translateAttendancePgError(err)
	}
	return created, nil
}

// Save は rec.Version が保存済みの版と一致する場合のみ更新し、版を 1 進めます。
func (r *AttendanceRepository) Save(ctx context.Context, rec *attendance.Record) (*attendance.Record, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE attendance_records
           SET break_start_time = $1,
               break_end_time = $2,
               break_duration = $3,
               end_latitude = $4,
               end_longitude = $5,
               logout_time = $6,
               working_hours_completed = $7,
               status = $8,
               updated_at = $9,
               version = version + 1
         WHERE id = $10
           AND version = $11
        RETURNING `+attendanceColumns+`
    `,
		rec.BreakStartTime,
		rec.BreakEndTime,
		rec.BreakDuration,
		rec.EndLatitude,
		rec.EndLongitude,
		rec.LogoutTime,
		rec.WorkingHoursCompleted,
		string(rec.Status),
		rec.UpdatedAt,
		rec.ID,
		rec.Version,
	)

	saved, err := scanRecord(row)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, attendance.ErrRecordNotFound) {
		return nil, translateAttendancePgError(err)
	}

	var exists bool
	if err := exec.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM attendance_records WHERE id = $1)`, rec.ID).Scan(&exists); err != nil {
		return nil, translateAttendancePgError(err)
	}
	if exists {
		return nil, attendance.ErrConcurrentModification
	}
	return nil, attendance.ErrRecordNotFound
}

// FindByID は ID で勤怠レコードを取得します。
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*attendance.Record, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+attendanceColumns+`
          FROM attendance_records
         WHERE id = $1
    `, id)

	found, err := scanRecord(row)
	if err != nil {
		return nil, translateAttendancePgError(err)
	}
	return found, nil
}

// FindByEmployeeAndDay は (社員, 勤務日) で勤怠レコードを取得します。
func (r *AttendanceRepository) FindByEmployeeAndDay(ctx context.Context, employeeID string, day attendance.WorkDay) (*attendance.Record, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+attendanceColumns+`
          FROM attendance_records
         WHERE employee_id = $1
           AND work_day = $2::date
    `, employeeID, day.String())

	found, err := scanRecord(row)
	if err != nil {
		return nil, translateAttendancePgError(err)
	}
	return found, nil
}

// ListOpenSessions は指定日のうちログアウトされていないレコードを社員 ID 順に返します。
func (r *AttendanceRepository) ListOpenSessions(ctx context.Context, day attendance.WorkDay) ([]*attendance.Record, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT `+attendanceColumns+`
          FROM attendance_records
         WHERE work_day = $1::date
           AND logout_time IS NULL
           AND status IN ('active', 'on_break')
         ORDER BY employee_id
    `, day.String())
	if err != nil {
		return nil, translateAttendancePgError(err)
	}
	defer rows.Close()

	records := make([]*attendance.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, translateAttendancePgError(err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, translateAttendancePgError(err)
	}
	return records, nil
}

// List は条件に一致するレコードを勤務日の新しい順に返します。
func (r *AttendanceRepository) List(ctx context.Context, filter attendance.ListFilter) ([]*attendance.Record, string, error) {
	if filter.Limit <= 0 {
		return nil, "", attendance.ErrInvalidPageSize
	}
	if filter.Offset < 0 {
		return nil, "", attendance.ErrInvalidPageToken
	}

	args := make([]any, 0, 5)
	conditions := make([]string, 0, 3)

	if filter.WorkDay != nil {
		args = append(args, filter.WorkDay.String())
		conditions = append(conditions, "work_day = $"+strconv.Itoa(len(args))+"::date")
	}
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		conditions = append(conditions, "employee_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, filter.Limit+1)
	limitPlaceholder := "$" + strconv.Itoa(len(args))
	args = append(args, filter.Offset)
	offsetPlaceholder := "$" + strconv.Itoa(len(args))

	query := `
        SELECT ` + attendanceColumns + `
          FROM attendance_records` + whereClause + `
         ORDER BY work_day DESC, employee_id, id
         LIMIT ` + limitPlaceholder + `
        OFFSET ` + offsetPlaceholder + `
    `

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, "", translateAttendancePgError(err)
	}
	defer rows.Close()

	records := make([]*attendance.Record, 0, filter.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, "", translateAttendancePgError(err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", translateAttendancePgError(err)
	}

	nextToken := ""
	if len(records) > filter.Limit {
		records = records[:filter.Limit]
		nextToken = strconv.Itoa(filter.Offset + filter.Limit)
	}
	return records, nextToken, nil
}

func scanRecord(row pgx.Row) (*attendance.Record, error) {
	var (
		rec                  attendance.Record
		workDay              string
		status               string
		createdAt, updatedAt time.Time
	)

	if err := row.Scan(
		&rec.ID,
		&rec.EmployeeID,
		&workDay,
		&rec.DayOfWeek,
		&rec.LoginTime,
		&rec.BreakStartTime,
		&rec.BreakEndTime,
		&rec.BreakDuration,
		&rec.StartLatitude,
		&rec.StartLongitude,
		&rec.EndLatitude,
		&rec.EndLongitude,
		&rec.LogoutTime,
		&rec.WorkingHoursCompleted,
		&status,
		&rec.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, attendance.ErrRecordNotFound
		}
		return nil, err
	}

	rec.WorkDay = attendance.WorkDay(workDay)
	rec.Status = attendance.Status(status)
	rec.CreatedAt = createdAt.UTC()
	rec.UpdatedAt = updatedAt.UTC()
	return &rec, nil
}

func translateAttendancePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, attendance.ErrRecordNotFound) || errors.Is(err, pgx.ErrNoRows) {
		return attendance.ErrRecordNotFound
	}
	if wrapped := unavailable(err); wrapped != nil {
		return wrapped
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return attendance.ErrDuplicateRecord
	}
	return err
}
