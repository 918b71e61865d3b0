package v1

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hrygo/spansum/ai/observability/logging"
)

// Codes caused by the caller or by load; logged as warnings, not errors.
var clientCodes = map[codes.Code]bool{
	codes.InvalidArgument:   true,
	codes.ResourceExhausted: true,
	codes.DeadlineExceeded:  true,
	codes.Canceled:          true,
}

func logCall(ctx context.Context, procedure string, code codes.Code, start time.Time, err error) {
	attrs := []any{
		"procedure", procedure,
		"code", code.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	logger := logging.FromContext(ctx)
	switch {
	case err == nil:
		logger.Debug("rpc completed", attrs...)
	case clientCodes[code]:
		logger.Warn("rpc failed", append(attrs, "error", err)...)
	default:
		logger.Error("rpc failed", append(attrs, "error", err)...)
	}
}

func logPanic(procedure string, r any, logStacktraces bool) {
	attrs := []any{"procedure", procedure, "panic", r}
	if logStacktraces {
		attrs = append(attrs, "stack", string(debug.Stack()))
	}
	slog.Error("panic recovered in rpc handler", attrs...)
}

// NewLoggingInterceptor logs every Connect call with its outcome.
func NewLoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			code := codes.OK
			if err != nil {
				code = codes.Code(connect.CodeOf(err))
			}
			logCall(ctx, req.Spec().Procedure, code, start, err)
			return resp, err
		}
	}
}

// NewRecoveryInterceptor turns handler panics into CodeInternal.
func NewRecoveryInterceptor(logStacktraces bool) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					logPanic(req.Spec().Procedure, r, logStacktraces)
					err = connect.NewError(connect.CodeInternal, errors.New("internal error"))
				}
			}()
			return next(ctx, req)
		}
	}
}

// UnaryLoggingInterceptor is the gRPC counterpart of NewLoggingInterceptor.
func UnaryLoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(ctx, info.FullMethod, status.Code(err), start, err)
		return resp, err
	}
}

// UnaryRecoveryInterceptor is the gRPC counterpart of NewRecoveryInterceptor.
func UnaryRecoveryInterceptor(logStacktraces bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(info.FullMethod, r, logStacktraces)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
