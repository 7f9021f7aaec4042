package handler

import (
	"context"
	"strings"
	"time"

	"github.com/ogurasousui/attendance-grpc/internal/core/attendance"
	"github.com/ogurasousui/attendance-grpc/internal/core/employee"
	"github.com/ogurasousui/attendance-grpc/internal/core/identity"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// SweepTokenHeader はスケジューラが共有トークンを渡すメタデータキーです。
const SweepTokenHeader = "x-sweep-token"

// AttendanceGrpcHandler は AttendanceService の gRPC 実装です。
type AttendanceGrpcHandler struct {
	svc     attendance.UseCase
	sweeper attendance.SweepUseCase
	now     func() time.Time
}

var _ AttendanceServiceServer = (*AttendanceGrpcHandler)(nil)

// NewAttendanceGrpcHandler は AttendanceGrpcHandler を生成します。
func NewAttendanceGrpcHandler(svc attendance.UseCase, sweeper attendance.SweepUseCase) *AttendanceGrpcHandler {
	return &AttendanceGrpcHandler{svc: svc, sweeper: sweeper, now: time.Now}
}

type loginRequest struct {
	EmployeeID     string   `json:"employeeId" validate:"required"`
	WorkDay        any      `json:"workDay" validate:"required"`
	LoginTime      any      `json:"loginTime" validate:"required"`
	StartLatitude  *float64 `json:"startLatitude" validate:"required,latitude"`
	StartLongitude *float64 `json:"startLongitude" validate:"required,longitude"`
}

type startBreakRequest struct {
	EmployeeID     string `json:"employeeId" validate:"required"`
	WorkDay        any    `json:"workDay" validate:"required"`
	BreakStartTime any    `json:"breakStartTime" validate:"required"`
	Status         string `json:"status"`
}

type endBreakRequest struct {
	EmployeeID   string `json:"employeeId" validate:"required"`
	WorkDay      any    `json:"workDay" validate:"required"`
	BreakEndTime any    `json:"breakEndTime" validate:"required"`
	Status       string `json:"status"`
}

type logoutRequest struct {
	EmployeeID   string   `json:"employeeId" validate:"required"`
	WorkDay      any      `json:"workDay" validate:"required"`
	LogoutTime   any      `json:"logoutTime" validate:"required"`
	EndLatitude  *float64 `json:"endLatitude" validate:"required,latitude"`
	EndLongitude *float64 `json:"endLongitude" validate:"required,longitude"`
	Status       string   `json:"status"`
}

type getAttendanceRequest struct {
	ID string `json:"id" validate:"required"`
}

type getByEmployeeAndDayRequest struct {
	EmployeeID string `json:"employeeId" validate:"required"`
	WorkDay    any    `json:"workDay" validate:"required"`
}

type listAttendanceRequest struct {
	WorkDay    any    `json:"workDay"`
	EmployeeID string `json:"employeeId"`
	Status     string `json:"status"`
	PageSize   int    `json:"pageSize" validate:"gte=0"`
	PageToken  string `json:"pageToken"`
}

type sweepRequest struct {
	Day any `json:"day"`
}

// Login はその日の勤怠を開始します。
func (h *AttendanceGrpcHandler) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var in loginRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}

	rec, err := h.svc.Login(ctx, attendance.LoginInput{
		Caller:         caller,
		EmployeeID:     in.EmployeeID,
		WorkDay:        in.WorkDay,
		LoginTime:      in.LoginTime,
		StartLatitude:  *in.StartLatitude,
		StartLongitude: *in.StartLongitude,
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	return encodeResponse(map[string]any{"record": recordFields(rec)})
}

// StartBreak は休憩を開始します。
func (h *AttendanceGrpcHandler) StartBreak(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var in startBreakRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}

	rec, err := h.svc.StartBreak(ctx, attendance.StartBreakInput{
		Caller:         caller,
		EmployeeID:     in.EmployeeID,
		WorkDay:        in.WorkDay,
		BreakStartTime: in.BreakStartTime,
		Status:         in.Status,
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	return encodeResponse(map[string]any{"record": recordFields(rec)})
}

// EndBreak は休憩を終了します。
func (h *AttendanceGrpcHandler) EndBreak(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var in endBreakRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}

	rec, err := h.svc.EndBreak(ctx, attendance.EndBreakInput{
		Caller:       caller,
		EmployeeID:   in.EmployeeID,
		WorkDay:      in.WorkDay,
		BreakEndTime: in.BreakEndTime,
		Status:       in.Status,
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	return encodeResponse(map[string]any{"record": recordFields(rec)})
}

// Logout はその日の勤怠を終了します。
func (h *AttendanceGrpcHandler) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var in logoutRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}

	rec, err := h.svc.Logout(ctx, attendance.LogoutInput{
		Caller:       caller,
		EmployeeID:   in.EmployeeID,
		WorkDay:      in.WorkDay,
		LogoutTime:   in.LogoutTime,
		EndLatitude:  *in.EndLatitude,
		EndLongitude: *in.EndLongitude,
		Status:       in.Status,
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	return encodeResponse(map[string]any{"record": recordFields(rec)})
}

// GetAttendance は ID で勤怠を取得します。管理者のみ利用できます。
func (h *AttendanceGrpcHandler) GetAttendance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var in getAttendanceRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}

	view, err := h.svc.GetAttendance(ctx, attendance.GetAttendanceInput{Caller: caller, ID: in.ID})
	if err != nil {
		return nil, toStatusError(err)
	}

	return encodeResponse(viewFields(view))
}

// GetAttendanceByEmployeeAndDay は (社員, 勤務日) で勤怠を取得します。
func (h *AttendanceGrpcHandler) GetAttendanceByEmployeeAndDay(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var in getByEmployeeAndDayRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}

	view, err := h.svc.GetAttendanceByEmployeeAndDay(ctx, attendance.GetByEmployeeAndDayInput{
		Caller:     caller,
		EmployeeID: in.EmployeeID,
		WorkDay:    in.WorkDay,
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	return encodeResponse(viewFields(view))
}

// ListAttendance は勤怠の一覧を返します。管理者のみ利用できます。
func (h *AttendanceGrpcHandler) ListAttendance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var in listAttendanceRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}

	result, err := h.svc.ListAttendance(ctx, attendance.ListAttendanceInput{
		Caller:     caller,
		WorkDay:    in.WorkDay,
		EmployeeID: in.EmployeeID,
		Status:     in.Status,
		PageSize:   in.PageSize,
		PageToken:  in.PageToken,
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	records := make([]any, 0, len(result.Records))
	for _, rec := range result.Records {
		records = append(records, recordFields(rec))
	}

	return encodeResponse(map[string]any{
		"records":       records,
		"nextPageToken": result.NextPageToken,
	})
}

// Sweep は指定日のオープンセッションを強制終了します。
// 共有トークンは x-sweep-token メタデータで受け取ります。day を省略した場合は前日が対象です。
func (h *AttendanceGrpcHandler) Sweep(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if h.sweeper == nil {
		return nil, status.Error(codes.Unimplemented, "sweep is not configured")
	}

	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var in sweepRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}

	day := in.Day
	if day == nil || day == "" {
		day = attendance.PreviousWorkDay(h.now(), h.sweeper.Location())
	}

	report, err := h.sweeper.Sweep(ctx, attendance.SweepInput{
		Caller: caller,
		Token:  sweepToken(ctx),
		Day:    day,
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	return encodeResponse(reportFields(report))
}

func callerFrom(ctx context.Context) (identity.Identity, error) {
	id, ok := identity.FromContext(ctx)
	if !ok {
		return identity.Identity{}, status.Error(codes.Unauthenticated, "caller identity is required")
	}
	return id, nil
}

func sweepToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(SweepTokenHeader)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func recordFields(rec *attendance.Record) map[string]any {
	if rec == nil {
		return nil
	}
	return map[string]any{
		"id":                    rec.ID,
		"employeeId":            rec.EmployeeID,
		"workDay":               rec.WorkDay.String(),
		"dayOfWeek":             rec.DayOfWeek,
		"loginTime":             rec.LoginTime,
		"breakStartTime":        optionalInt(rec.BreakStartTime),
		"breakEndTime":          optionalInt(rec.BreakEndTime),
		"breakDuration":         rec.BreakDuration,
		"startLatitude":         rec.StartLatitude,
		"startLongitude":        rec.StartLongitude,
		"endLatitude":           optionalFloat(rec.EndLatitude),
		"endLongitude":          optionalFloat(rec.EndLongitude),
		"logoutTime":            optionalInt(rec.LogoutTime),
		"workingHoursCompleted": rec.WorkingHoursCompleted,
		"status":                string(rec.Status),
		"version":               rec.Version,
		"createdAt":             rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":             rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func employeeFields(emp *employee.Employee) map[string]any {
	if emp == nil {
		return nil
	}
	fields := map[string]any{
		"id":          emp.ID,
		"name":        emp.Name,
		"email":       emp.Email,
		"designation": emp.Designation,
		"status":      string(emp.Status),
	}
	if emp.ExpectedWorkingHours != nil {
		fields["expectedWorkingHours"] = *emp.ExpectedWorkingHours
	} else {
		fields["expectedWorkingHours"] = nil
	}
	return fields
}

func viewFields(view *attendance.RecordView) map[string]any {
	fields := map[string]any{"record": recordFields(view.Record)}
	if view.Employee != nil {
		fields["employee"] = employeeFields(view.Employee)
	}
	return fields
}

func reportFields(report *attendance.SweepReport) map[string]any {
	closed := make([]any, 0, len(report.ClosedEmployeeIDs))
	for _, id := range report.ClosedEmployeeIDs {
		closed = append(closed, id)
	}

	failures := make([]any, 0, len(report.Errors))
	for _, f := range report.Errors {
		failures = append(failures, map[string]any{
			"employeeId": f.EmployeeID,
			"recordId":   f.RecordID,
			"reason":     f.Reason,
		})
	}

	return map[string]any{
		"day":               report.Day.String(),
		"cutoff":            report.Cutoff,
		"scanned":           report.Scanned,
		"closed":            report.Closed,
		"closedEmployeeIds": closed,
		"errors":            failures,
		"partialFailure":    report.PartialFailure(),
	}
}

func optionalInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func optionalFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
