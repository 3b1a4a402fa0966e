package interceptors

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
)

// metadataRequestID — ключ metadata с идентификатором запроса.
const metadataRequestID = "x-request-id"

// Logging кладёт request-scoped логгер в контекст и пишет одну запись "grpc"
// на вызов: request_id (из metadata или новый UUID), метод, peer, код и длительность.
func Logging(base *slog.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		ctx, l := callLogger(ctx, base, info.FullMethod)

		resp, err := handler(ctx, req)

		l.Info("grpc",
			slog.String("code", status.Code(err).String()),
			slog.Duration("dur", time.Since(start)),
		)

		return resp, err
	}
}

// LoggingStream пишет запись "grpc" по завершении потока.
func LoggingStream(base *slog.Logger) grpc.StreamServerInterceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		ctx, l := callLogger(ss.Context(), base, info.FullMethod)

		err := handler(srv, &ctxStream{ServerStream: ss, ctx: ctx})

		l.Info("grpc",
			slog.String("code", status.Code(err).String()),
			slog.Duration("dur", time.Since(start)),
			slog.Bool("stream", true),
		)

		return err
	}
}

// callLogger собирает логгер вызова и кладёт его в контекст.
func callLogger(ctx context.Context, base *slog.Logger, method string) (context.Context, *slog.Logger) {
	rid := firstMD(ctx, metadataRequestID)
	if rid == "" {
		rid = uuid.NewString()
	}

	peerStr := "-"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		peerStr = p.Addr.String()
	}

	l := base.With(
		slog.String("request_id", rid),
		slog.String("method", method),
		slog.String("peer", peerStr),
	)

	return log.Into(ctx, l), l
}

// firstMD возвращает первое значение ключа входящего metadata.
func firstMD(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}

	return ""
}
