package employee

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Directory は社員ディレクトリの参照ユースケースです。社員レコードを書き換えることはありません。
type Directory struct {
	repo Repository
	tx   TransactionManager
}

// NewDirectory は Directory を生成します。
func NewDirectory(repo Repository, tx TransactionManager) *Directory {
	if tx == nil {
		tx = noopTransactionManager{}
	}
	return &Directory{repo: repo, tx: tx}
}

// GetEmployee は ID で社員を取得します。
func (d *Directory) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var found *Employee
	if err := d.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		emp, err := d.repo.FindByID(txCtx, trimmed)
		if err != nil {
			return err
		}
		found = emp
		return nil
	}); err != nil {
		return nil, err
	}

	return found, nil
}

// GetExpectedWorkingHours は社員の所定労働時間を返します。未設定なら false です。
func (d *Directory) GetExpectedWorkingHours(ctx context.Context, id string) (time.Duration, bool, error) {
	emp, err := d.GetEmployee(ctx, id)
	if err != nil {
		return 0, false, err
	}
	expected, ok := emp.ExpectedWorkingDuration()
	return expected, ok, nil
}
