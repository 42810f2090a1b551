package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc , broken, =skip, tenant=bot ,")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "bot"}, got)
	require.Empty(t, ParseHeaders(""))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestInitWithoutExportersIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "battlebot"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestHeadersMergeEnvironment(t *testing.T) {
	t.Setenv(headersEnv, "a=1,b=2")
	cfg := Config{Headers: map[string]string{"b": "override"}}
	require.Equal(t, map[string]string{"a": "1", "b": "override"}, cfg.headers())
}
