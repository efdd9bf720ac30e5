package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"dermalink-api/internal/observability"
)

// Logging records every call's outcome to the logger and the RPC metrics.
func Logging(l zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		dur := time.Since(start)
		code := status.Code(err)

		observability.ObserveRPC(info.FullMethod, code.String(), dur)

		ev := l.Info()
		if err != nil {
			ev = l.Warn().Str("error", status.Convert(err).Message())
		}
		ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", dur).
			Str("peer", peerHost(ctx)).
			Msg("rpc")
		return resp, err
	}
}

// Chain composes interceptors into one, outermost first. It lets the
// gRPC-Web bridge run the same chain in-process as the native server.
func Chain(ints ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, final grpc.UnaryHandler) (any, error) {
		next := final
		for i := len(ints) - 1; i >= 0; i-- {
			icpt, inner := ints[i], next
			next = func(ctx context.Context, req any) (any, error) {
				return icpt(ctx, req, info, inner)
			}
		}
		return next(ctx, req)
	}
}
