package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogurasousui/attendance-grpc/internal/core/employee"
	"github.com/ogurasousui/attendance-grpc/internal/core/identity"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

const (
	defaultListPageSize = 50
	maxListPageSize     = 200

	// ErrConcurrentModification のときに操作全体をやり直す回数。
	conflictRetries = 1
)

// Service は勤怠セッションの状態遷移を扱います。
//
//	NoSession -> active -> (on_break -> active)* -> present
//
// present と forced_closed は終端で、以後その日のレコードは変更されません。
type Service struct {
	repo      Repository
	directory Directory
	clock     Clock
	tx        TransactionManager
	loc       *time.Location
	cutoff    time.Duration
}

// ServiceOption は Service の設定を変更します。
type ServiceOption func(*Service)

// WithDayCutoff はその日のログインを受け付ける終端時刻を指定します。自動ログアウトの時刻と揃えてください。
func WithDayCutoff(cutoff time.Duration) ServiceOption {
	return func(s *Service) {
		if cutoff > 0 && cutoff < 24*time.Hour {
			s.cutoff = cutoff
		}
	}
}

// UseCase は勤怠ユースケースの公開インターフェースです。
type UseCase interface {
	Login(ctx context.Context, in LoginInput) (*Record, error)
	StartBreak(ctx context.Context, in StartBreakInput) (*Record, error)
	EndBreak(ctx context.Context, in EndBreakInput) (*Record, error)
	Logout(ctx context.Context, in LogoutInput) (*Record, error)
	GetAttendance(ctx context.Context, in GetAttendanceInput) (*RecordView, error)
	GetAttendanceByEmployeeAndDay(ctx context.Context, in GetByEmployeeAndDayInput) (*RecordView, error)
	ListAttendance(ctx context.Context, in ListAttendanceInput) (*ListAttendanceResult, error)
}

// NewService は Service を生成します。loc は勤務日キーを決める基準タイムゾーンです。
func NewService(repo Repository, directory Directory, clock Clock, tx TransactionManager, loc *time.Location, opts ...ServiceOption) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	s := &Service{repo: repo, directory: directory, clock: clock, tx: tx, loc: locationOrUTC(loc), cutoff: defaultSweepCutoff}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginInput はログイン時の入力です。WorkDay と LoginTime は正規化前の値を受け付けます。
type LoginInput struct {
	Caller         identity.Identity
	EmployeeID     string
	WorkDay        any
	LoginTime      any
	StartLatitude  float64
	StartLongitude float64
}

// StartBreakInput は休憩開始時の入力です。Status は任意で、指定時は on_break でなければなりません。
type StartBreakInput struct {
	Caller         identity.Identity
	EmployeeID     string
	WorkDay        any
	BreakStartTime any
	Status         string
}

// EndBreakInput は休憩終了時の入力です。
type EndBreakInput struct {
	Caller       identity.Identity
	EmployeeID   string
	WorkDay      any
	BreakEndTime any
	Status       string
}

// LogoutInput はログアウト時の入力です。
type LogoutInput struct {
	Caller       identity.Identity
	EmployeeID   string
	WorkDay      any
	LogoutTime   any
	EndLatitude  float64
	EndLongitude float64
	Status       string
}

// GetAttendanceInput は ID 指定の取得入力です。
type GetAttendanceInput struct {
	Caller identity.Identity
	ID     string
}

// GetByEmployeeAndDayInput は (社員, 勤務日) 指定の取得入力です。
type GetByEmployeeAndDayInput struct {
	Caller     identity.Identity
	EmployeeID string
	WorkDay    any
}

// ListAttendanceInput は一覧取得時の入力です。
type ListAttendanceInput struct {
	Caller     identity.Identity
	WorkDay    any
	EmployeeID string
	Status     string
	PageSize   int
	PageToken  string
}

// ListAttendanceResult は一覧取得結果を表します。
type ListAttendanceResult struct {
	Records       []*Record
	NextPageToken string
}

// Login はその日の勤怠レコードを active で作成します。
func (s *Service) Login(ctx context.Context, in LoginInput) (*Record, error) {
	employeeID, day, err := s.normalizeKey(in.Caller, in.EmployeeID, in.WorkDay)
	if err != nil {
		return nil, err
	}

	loginTime, err := ToEpochMillis(in.LoginTime, s.loc)
	if err != nil {
		return nil, fmt.Errorf("login_time: %w", err)
	}
	if err := s.withinWorkDay(day, loginTime); err != nil {
		return nil, err
	}

	if err := validateCoordinates(in.StartLatitude, in.StartLongitude); err != nil {
		return nil, err
	}

	var created *Record
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByEmployeeAndDay(txCtx, employeeID, day)
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			return err
		}
		if existing != nil {
			return ErrAlreadyLoggedIn
		}

		now := s.clock.Now()
		result, err := s.repo.Create(txCtx, &Record{
			ID:             uuid.NewString(),
			EmployeeID:     employeeID,
			WorkDay:        day,
			DayOfWeek:      day.Weekday(),
			LoginTime:      loginTime,
			StartLatitude:  in.StartLatitude,
			StartLongitude: in.StartLongitude,
			Status:         StatusActive,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			if errors.Is(err, ErrDuplicateRecord) {
				return ErrAlreadyLoggedIn
			}
			return err
		}

		created = result
		return nil
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// StartBreak は active のセッションを on_break へ遷移させます。
func (s *Service) StartBreak(ctx context.Context, in StartBreakInput) (*Record, error) {
	employeeID, day, err := s.normalizeKey(in.Caller, in.EmployeeID, in.WorkDay)
	if err != nil {
		return nil, err
	}
	if err := expectStatus(in.Status, StatusOnBreak); err != nil {
		return nil, err
	}

	start, err := ToEpochMillis(in.BreakStartTime, s.loc)
	if err != nil {
		return nil, fmt.Errorf("break_start_time: %w", err)
	}

	return s.mutate(ctx, employeeID, day, func(rec *Record) error {
		if rec.Status.IsTerminal() || rec.LogoutTime != nil {
			return ErrSessionClosed
		}
		if rec.Status != StatusActive {
			return fmt.Errorf("start break from %s: %w", rec.Status, ErrInvalidTransition)
		}
		if start < rec.LoginTime {
			return ErrInvalidBreakTime
		}
		if rec.BreakEndTime != nil && start < *rec.BreakEndTime {
			return ErrInvalidBreakTime
		}

		rec.BreakStartTime = &start
		rec.BreakEndTime = nil
		rec.Status = StatusOnBreak
		return nil
	})
}

// EndBreak は休憩を終了し、休憩時間を累積して active へ戻します。
func (s *Service) EndBreak(ctx context.Context, in EndBreakInput) (*Record, error) {
	employeeID, day, err := s.normalizeKey(in.Caller, in.EmployeeID, in.WorkDay)
	if err != nil {
		return nil, err
	}
	if err := expectStatus(in.Status, StatusActive); err != nil {
		return nil, err
	}

	end, err := ToEpochMillis(in.BreakEndTime, s.loc)
	if err != nil {
		return nil, fmt.Errorf("break_end_time: %w", err)
	}

	return s.mutate(ctx, employeeID, day, func(rec *Record) error {
		if rec.Status.IsTerminal() || rec.LogoutTime != nil {
			return ErrSessionClosed
		}
		if rec.Status != StatusOnBreak || rec.BreakStartTime == nil {
			return ErrNoBreakStarted
		}

		duration := end - *rec.BreakStartTime
		if duration <= 0 {
			return ErrInvalidDuration
		}

		rec.BreakEndTime = &end
		rec.BreakDuration += duration
		rec.Status = StatusActive
		return nil
	})
}

// Logout はセッションを present で確定させます。休憩中のログアウトは拒否します。
func (s *Service) Logout(ctx context.Context, in LogoutInput) (*Record, error) {
	employeeID, day, err := s.normalizeKey(in.Caller, in.EmployeeID, in.WorkDay)
	if err != nil {
		return nil, err
	}
	if err := expectStatus(in.Status, StatusPresent); err != nil {
		return nil, err
	}

	logoutTime, err := ToEpochMillis(in.LogoutTime, s.loc)
	if err != nil {
		return nil, fmt.Errorf("logout_time: %w", err)
	}

	if err := validateCoordinates(in.EndLatitude, in.EndLongitude); err != nil {
		return nil, err
	}

	expected, hasExpectation, err := s.expectedWorkingHours(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, employeeID, day, func(rec *Record) error {
		if rec.Status.IsTerminal() || rec.LogoutTime != nil {
			return ErrSessionClosed
		}
		if rec.Status == StatusOnBreak {
			return fmt.Errorf("logout while on break: %w", ErrInvalidTransition)
		}
		if logoutTime <= rec.LoginTime {
			return ErrInvalidLogoutTime
		}
		if rec.BreakEndTime != nil && logoutTime < *rec.BreakEndTime {
			return ErrInvalidLogoutTime
		}

		elapsed := time.Duration(logoutTime-rec.LoginTime) * time.Millisecond
		endLat, endLon := in.EndLatitude, in.EndLongitude

		rec.LogoutTime = &logoutTime
		rec.EndLatitude = &endLat
		rec.EndLongitude = &endLon
		rec.WorkingHoursCompleted = !hasExpectation || elapsed >= expected
		rec.Status = StatusPresent
		return nil
	})
}

// GetAttendance は管理者向けに社員情報を結合したレコードを返します。
func (s *Service) GetAttendance(ctx context.Context, in GetAttendanceInput) (*RecordView, error) {
	if !in.Caller.IsAdmin() {
		return nil, ErrForbidden
	}

	id := strings.TrimSpace(in.ID)
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var found *Record
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		rec, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		found = rec
		return nil
	}); err != nil {
		return nil, err
	}

	return s.expand(ctx, found)
}

// GetAttendanceByEmployeeAndDay は (社員, 勤務日) のレコードを返します。
// 管理者の場合のみ社員情報を結合します。
func (s *Service) GetAttendanceByEmployeeAndDay(ctx context.Context, in GetByEmployeeAndDayInput) (*RecordView, error) {
	employeeID, day, err := s.normalizeKey(in.Caller, in.EmployeeID, in.WorkDay)
	if err != nil {
		return nil, err
	}

	var found *Record
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		rec, err := s.repo.FindByEmployeeAndDay(txCtx, employeeID, day)
		if err != nil {
			return err
		}
		found = rec
		return nil
	}); err != nil {
		return nil, err
	}

	if !in.Caller.IsAdmin() {
		return &RecordView{Record: found}, nil
	}
	return s.expand(ctx, found)
}

// ListAttendance は管理者向けにレコードを一覧します。
func (s *Service) ListAttendance(ctx context.Context, in ListAttendanceInput) (*ListAttendanceResult, error) {
	if !in.Caller.IsAdmin() {
		return nil, ErrForbidden
	}

	limit, err := normalizePageSize(in.PageSize)
	if err != nil {
		return nil, err
	}

	offset, err := parsePageToken(in.PageToken)
	if err != nil {
		return nil, err
	}

	filter := ListFilter{
		EmployeeID: strings.TrimSpace(in.EmployeeID),
		Limit:      limit,
		Offset:     offset,
	}

	if in.WorkDay != nil && in.WorkDay != "" {
		day, err := CanonicalWorkDay(in.WorkDay, s.loc)
		if err != nil {
			return nil, err
		}
		filter.WorkDay = &day
	}

	if raw := strings.TrimSpace(in.Status); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}

	var (
		records   []*Record
		nextToken string
	)
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		result, token, err := s.repo.List(txCtx, filter)
		if err != nil {
			return err
		}
		records = result
		nextToken = token
		return nil
	}); err != nil {
		return nil, err
	}

	return &ListAttendanceResult{Records: records, NextPageToken: nextToken}, nil
}

// mutate は当日のレコードを読み込み、fn が成功した場合のみ保存します。
// 楽観ロックの競合時は操作全体を一度だけやり直します。
func (s *Service) mutate(ctx context.Context, employeeID string, day WorkDay, fn func(*Record) error) (*Record, error) {
	var saved *Record
	err := retryOnConflict(func() error {
		return s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
			rec, err := s.repo.FindByEmployeeAndDay(txCtx, employeeID, day)
			if err != nil {
				if errors.Is(err, ErrRecordNotFound) {
					return ErrNoSessionFound
				}
				return err
			}

			if err := fn(rec); err != nil {
				return err
			}
			rec.UpdatedAt = s.clock.Now()

			result, err := s.repo.Save(txCtx, rec)
			if err != nil {
				return err
			}
			saved = result
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Service) expectedWorkingHours(ctx context.Context, employeeID string) (time.Duration, bool, error) {
	if s.directory == nil {
		return 0, false, nil
	}
	return s.directory.GetExpectedWorkingHours(ctx, employeeID)
}

// withinWorkDay は t が勤務日の 0 時以降かつ終端時刻より前であることを確認します。
func (s *Service) withinWorkDay(day WorkDay, t int64) error {
	start, err := day.Start(s.loc)
	if err != nil {
		return err
	}
	end, err := day.Cutoff(s.cutoff, s.loc)
	if err != nil {
		return err
	}
	if t < start.UnixMilli() || t >= end.UnixMilli() {
		return ErrLoginOutsideWorkDay
	}
	return nil
}

func (s *Service) expand(ctx context.Context, rec *Record) (*RecordView, error) {
	view := &RecordView{Record: rec}
	if s.directory == nil {
		return view, nil
	}

	emp, err := s.directory.GetEmployee(ctx, rec.EmployeeID)
	switch {
	case err == nil:
		view.Employee = emp
	case errors.Is(err, employee.ErrEmployeeNotFound):
	default:
		return nil, err
	}
	return view, nil
}

func (s *Service) normalizeKey(caller identity.Identity, rawEmployeeID string, rawDay any) (string, WorkDay, error) {
	employeeID, err := normalizeEmployeeID(rawEmployeeID)
	if err != nil {
		return "", "", err
	}
	if !caller.CanActFor(employeeID) {
		return "", "", ErrForbidden
	}

	day, err := CanonicalWorkDay(rawDay, s.loc)
	if err != nil {
		return "", "", err
	}
	return employeeID, day, nil
}

func retryOnConflict(fn func() error) error {
	var err error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		err = fn()
		if !errors.Is(err, ErrConcurrentModification) {
			return err
		}
	}
	return err
}

func expectStatus(raw string, target Status) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	status, err := ParseStatus(trimmed)
	if err != nil {
		return err
	}
	if status != target {
		return fmt.Errorf("requested status %s, action yields %s: %w", status, target, ErrInvalidTransition)
	}
	return nil
}

func normalizeEmployeeID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidEmployeeID
	}
	return trimmed, nil
}

func validateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

func normalizePageSize(pageSize int) (int, error) {
	if pageSize <= 0 {
		return defaultListPageSize, nil
	}
	if pageSize > maxListPageSize {
		return 0, ErrInvalidPageSize
	}
	return pageSize, nil
}

func parsePageToken(token string) (int, error) {
	if strings.TrimSpace(token) == "" {
		return 0, nil
	}

	offset, err := strconv.Atoi(token)
	if err != nil || offset < 0 {
		return 0, ErrInvalidPageToken
	}

	return offset, nil
}
