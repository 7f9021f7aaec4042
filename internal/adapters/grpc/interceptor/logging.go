package interceptor

import (
	"context"
	"log"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Logging はメソッド名・ステータスコード・処理時間を記録する UnaryServerInterceptor を返します。
// logger が nil の場合は log.Default を使用します。
func Logging(logger *log.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = log.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		if code == codes.Internal || code == codes.Unavailable {
			logger.Printf("grpc %s code=%s elapsed=%s err=%v", info.FullMethod, code, time.Since(start), err)
		} else {
			logger.Printf("grpc %s code=%s elapsed=%s", info.FullMethod, code, time.Since(start))
		}
		return resp, err
	}
}

// Recovery はハンドラ内の panic を Internal エラーに変換します。
func Recovery(logger *log.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = log.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("grpc %s panic: %v\n%s", info.FullMethod, r, debug.Stack())
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
