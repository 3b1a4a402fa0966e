// interceptors реализует gRPC-перехватчики сервиса: восстановление после паник,
// логирование, таймаут и аутентификацию по metadata "authorization".
package interceptors

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"

	"github.com/pribylovaa/taskmaster-auth/internal/authctx"
	"github.com/pribylovaa/taskmaster-auth/internal/authn"
	"github.com/pribylovaa/taskmaster-auth/internal/metrics"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
)

const metadataAuthorization = "authorization"

// Authenticate разрешает bearer-токен из metadata в принципала.
// Как и HTTP-мидлвар, вызов не отклоняется: без принципала он идёт дальше анонимно.
func Authenticate(a *authn.Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(authenticate(ctx, a), req)
	}
}

// AuthenticateStream — то же для потоковых вызовов.
func AuthenticateStream(a *authn.Authenticator) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &ctxStream{ServerStream: ss, ctx: authenticate(ss.Context(), a)})
	}
}

func authenticate(ctx context.Context, a *authn.Authenticator) context.Context {
	if _, ok := authctx.PrincipalFrom(ctx); ok {
		return ctx
	}

	p, outcome := a.Resolve(ctx, firstMD(ctx, metadataAuthorization))
	metrics.MiddlewareTotal.WithLabelValues(string(outcome)).Inc()
	if p == nil {
		return ctx
	}

	ctx = authctx.WithPrincipal(ctx, p)
	return log.With(ctx, slog.Int64("account_id", p.AccountID))
}

// ctxStream подменяет контекст потока.
type ctxStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *ctxStream) Context() context.Context { return s.ctx }
