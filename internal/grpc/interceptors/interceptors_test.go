package interceptors

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/pribylovaa/taskmaster-auth/internal/authctx"
	"github.com/pribylovaa/taskmaster-auth/internal/authn"
	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
	"github.com/pribylovaa/taskmaster-auth/internal/service"
	"github.com/pribylovaa/taskmaster-auth/internal/token"
)

type capHandler struct {
	base    []slog.Attr
	lastMsg string
	lastLvl slog.Level
	attrs   map[string]any
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	out := make(map[string]any, len(h.base)+8)
	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})

	h.lastMsg = r.Message
	h.lastLvl = r.Level
	h.attrs = out
	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.base = append(h.base, attrs...)
	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

var okHandler = func(context.Context, any) (any, error) { return "ok", nil }

func TestLogging_UsesRequestIDFromMetadata(t *testing.T) {
	h := &capHandler{}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "rid-123"))
	ctx = peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50051}})
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := Logging(slog.New(h))(ctx, "req", info, okHandler)
	require.NoError(t, err)
	require.Equal(t, "ok", resp)

	require.Equal(t, "grpc", h.lastMsg)
	require.Equal(t, slog.LevelInfo, h.lastLvl)
	require.Equal(t, "rid-123", h.attrs["request_id"])
	require.Equal(t, info.FullMethod, h.attrs["method"])
	require.Equal(t, "127.0.0.1:50051", h.attrs["peer"])
	require.Equal(t, "OK", h.attrs["code"])
}

func TestLogging_GeneratesRequestID_AndLogsCode(t *testing.T) {
	h := &capHandler{}
	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Fail"}

	_, err := Logging(slog.New(h))(context.Background(), "req", info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.PermissionDenied, "denied")
	})
	require.Error(t, err)

	require.Equal(t, "PermissionDenied", h.attrs["code"])
	rid, _ := h.attrs["request_id"].(string)
	_, perr := uuid.Parse(rid)
	require.NoError(t, perr)
	require.Equal(t, "-", h.attrs["peer"])
}

func TestRecover_PanicBecomesInternal(t *testing.T) {
	h := &capHandler{}
	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Panic"}

	resp, err := Recover(slog.New(h))(context.Background(), "req", info, func(context.Context, any) (any, error) {
		panic("boom")
	})

	require.Nil(t, resp)
	require.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, "panic_recovered", h.lastMsg)
	require.Equal(t, slog.LevelError, h.lastLvl)
	require.Equal(t, info.FullMethod, h.attrs["method"])
	require.NotEmpty(t, h.attrs["stack"])
}

func TestRecover_NoPanic_NoLog(t *testing.T) {
	h := &capHandler{}

	resp, err := Recover(slog.New(h))(context.Background(), "req", &grpc.UnaryServerInfo{}, okHandler)
	require.NoError(t, err)
	require.Equal(t, "ok", resp)
	require.Empty(t, h.lastMsg)
}

func TestTimeout(t *testing.T) {
	t.Run("sets deadline", func(t *testing.T) {
		_, err := Timeout(20*time.Millisecond)(context.Background(), "req", &grpc.UnaryServerInfo{},
			func(ctx context.Context, _ any) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("keeps existing deadline", func(t *testing.T) {
		parent, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
		defer cancel()
		want, _ := parent.Deadline()

		_, err := Timeout(time.Second)(parent, "req", &grpc.UnaryServerInfo{},
			func(ctx context.Context, _ any) (any, error) {
				got, ok := ctx.Deadline()
				require.True(t, ok)
				require.Equal(t, want, got)
				return nil, nil
			})
		require.NoError(t, err)
	})

	t.Run("zero disables", func(t *testing.T) {
		_, err := Timeout(0)(context.Background(), "req", &grpc.UnaryServerInfo{},
			func(ctx context.Context, _ any) (any, error) {
				_, ok := ctx.Deadline()
				require.False(t, ok)
				return nil, nil
			})
		require.NoError(t, err)
	})
}

const testSecret = "grpc-test-secret-grpc-test-secret"

type stubLoader map[string]*models.Principal

func (l stubLoader) LoadPrincipal(_ context.Context, username string) (*models.Principal, error) {
	if p, ok := l[username]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("service.principal.LoadPrincipal: %w", service.ErrAccountNotFound)
}

func newAuthenticator(t *testing.T) (*token.Service, *authn.Authenticator) {
	t.Helper()
	tokens, err := token.New(testSecret)
	require.NoError(t, err)

	return tokens, authn.New(tokens, stubLoader{
		"bob": {AccountID: 1, Username: "bob", Enabled: true, Authorities: []string{"ROLE_USER"}},
	})
}

func withAuth(value string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", value))
}

func principalOf(ctx context.Context) *models.Principal {
	p, _ := authctx.PrincipalFrom(ctx)
	return p
}

func TestAuthenticate_Unary(t *testing.T) {
	tokens, a := newAuthenticator(t)
	access, err := tokens.Issue("bob", token.Claims{Kind: token.KindAccess}, time.Minute)
	require.NoError(t, err)
	refresh, err := tokens.Issue("bob", token.Claims{Kind: token.KindRefresh}, time.Minute)
	require.NoError(t, err)

	tcs := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"access token", withAuth("Bearer " + access), "bob"},
		{"no metadata", context.Background(), ""},
		{"refresh token", withAuth("Bearer " + refresh), ""},
		{"garbage", withAuth("Bearer nope"), ""},
		{"wrong scheme", withAuth("Basic Ym9iOnB3"), ""},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var seen *models.Principal
			_, err := Authenticate(a)(tc.ctx, "req", &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
				seen = principalOf(ctx)
				return nil, nil
			})
			require.NoError(t, err)

			if tc.want == "" {
				require.Nil(t, seen)
				return
			}
			require.NotNil(t, seen)
			require.Equal(t, tc.want, seen.Username)
		})
	}
}

func TestAuthenticate_KeepsExistingPrincipal(t *testing.T) {
	_, a := newAuthenticator(t)
	pre := &models.Principal{AccountID: 9, Username: "svc", Enabled: true}
	ctx := authctx.WithPrincipal(withAuth("Bearer nope"), pre)

	var seen *models.Principal
	_, err := Authenticate(a)(ctx, "req", &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
		seen = principalOf(ctx)
		return nil, nil
	})
	require.NoError(t, err)
	require.Same(t, pre, seen)
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s fakeStream) Context() context.Context { return s.ctx }

func TestAuthenticateStream(t *testing.T) {
	tokens, a := newAuthenticator(t)
	access, err := tokens.Issue("bob", token.Claims{Kind: token.KindAccess}, time.Minute)
	require.NoError(t, err)

	var seen *models.Principal
	err = AuthenticateStream(a)(nil, fakeStream{ctx: withAuth("Bearer " + access)}, &grpc.StreamServerInfo{},
		func(_ any, ss grpc.ServerStream) error {
			seen = principalOf(ss.Context())
			return nil
		})
	require.NoError(t, err)
	require.NotNil(t, seen)
	require.Equal(t, "bob", seen.Username)
}

func TestRecoverStream_PanicBecomesInternal(t *testing.T) {
	h := &capHandler{}
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}

	err := RecoverStream(slog.New(h))(nil, fakeStream{ctx: context.Background()}, info,
		func(any, grpc.ServerStream) error {
			panic("boom")
		})

	require.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, "panic_recovered", h.lastMsg)
	require.Equal(t, info.FullMethod, h.attrs["method"])
}

func TestLoggingStream_PutsLoggerIntoStreamContext(t *testing.T) {
	h := &capHandler{}
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "rid-stream"))

	err := LoggingStream(slog.New(h))(nil, fakeStream{ctx: ctx}, info,
		func(_ any, ss grpc.ServerStream) error {
			require.NotSame(t, slog.Default(), log.From(ss.Context()))
			return status.Error(codes.Canceled, "client gone")
		})
	require.Error(t, err)

	require.Equal(t, "grpc", h.lastMsg)
	require.Equal(t, "rid-stream", h.attrs["request_id"])
	require.Equal(t, "Canceled", h.attrs["code"])
	require.Equal(t, true, h.attrs["stream"])
}
