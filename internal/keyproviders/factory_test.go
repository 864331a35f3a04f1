package keyproviders

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/edgesecrets/internal/config"
	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/keyops"
)

func TestNew(t *testing.T) {
	t.Parallel()

	p, err := New("local", config.KeyProviderConfig{Type: TypeLocal}, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &LocalProvider{}, p)

	p, err = New("rev", config.KeyProviderConfig{Type: TypeReverse, Config: map[string]interface{}{"max_size": 4}}, logging.Nop())
	require.NoError(t, err)
	_, err = p.Encrypt(context.Background(), "12345", "k")
	assert.True(t, keyops.IsPayloadTooLarge(err))

	_, err = New("bad", config.KeyProviderConfig{Type: "hsm"}, logging.Nop())
	var cfgErr dserrors.ConfigError
	require.True(t, stderrors.As(err, &cfgErr))
	assert.Equal(t, "keyProviders.bad.type", cfgErr.Field)
}
