package handler

import (
	"context"
	"errors"

	"github.com/ogurasousui/attendance-grpc/internal/core/attendance"
	"github.com/ogurasousui/attendance-grpc/internal/core/employee"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, attendance.ErrValidation),
		errors.Is(err, employee.ErrInvalidID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, attendance.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, attendance.ErrNotFound),
		errors.Is(err, employee.ErrEmployeeNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, attendance.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, attendance.ErrConcurrentModification):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, attendance.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, attendance.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
