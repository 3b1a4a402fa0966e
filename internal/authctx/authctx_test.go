package authctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/taskmaster-auth/internal/models"
)

func TestPrincipal_RoundTrip(t *testing.T) {
	t.Parallel()

	p := &models.Principal{AccountID: 1, Username: "bob"}
	ctx := WithPrincipal(context.Background(), p)

	got, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	require.Same(t, p, got)

	_, ok = PrincipalFrom(context.Background())
	require.False(t, ok)
}

func TestPrincipal_NilSafety(t *testing.T) {
	t.Parallel()

	var nilPrincipal *models.Principal
	_, ok := PrincipalFrom(WithPrincipal(context.Background(), nilPrincipal))
	require.False(t, ok)

	ctx := WithPrincipal(nil, &models.Principal{Username: "x"})
	got, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	require.Equal(t, "x", got.Username)

	_, ok = PrincipalFrom(nil)
	require.False(t, ok)
}

// TestPrincipal_ScopedToContext — принципал виден только в дочернем контексте.
func TestPrincipal_ScopedToContext(t *testing.T) {
	t.Parallel()

	parent := context.Background()
	child := WithPrincipal(parent, &models.Principal{Username: "bob"})

	_, ok := PrincipalFrom(parent)
	require.False(t, ok)
	_, ok = PrincipalFrom(child)
	require.True(t, ok)
}
