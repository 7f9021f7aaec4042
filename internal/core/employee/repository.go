package employee

import "context"

// Repository は社員ディレクトリの読み取り専用抽象です。
type Repository interface {
	FindByID(ctx context.Context, id string) (*Employee, error)
}
