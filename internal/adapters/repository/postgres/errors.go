package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/attendance-grpc/internal/core/attendance"
)

const (
	uniqueViolationCode = "23505"

	// 接続断・資源不足・オペレータ介入による停止の SQLSTATE クラス。
	connectionExceptionClass   = "08"
	insufficientResourcesClass = "53"
	operatorInterventionClass  = "57"
)

// unavailable は接続系の障害を ErrStoreUnavailable に包みます。該当しなければ nil を返します。
func unavailable(err error) error {
	if err == nil {
		return nil
	}

	var connectErr *pgconn.ConnectError
	if pgconn.Timeout(err) || errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %v", attendance.ErrStoreUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case connectionExceptionClass, insufficientResourcesClass, operatorInterventionClass:
			return fmt.Errorf("%w: %v", attendance.ErrStoreUnavailable, err)
		}
	}
	return nil
}
