package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theBullfish/replier-web/pkg/environment"
	"github.com/theBullfish/replier-web/pkg/logger"
)

type ctxKey struct{}

func TestNew_JSONWithExtractors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithEnvironment(environment.Production, "billing"),
		logger.WithContextValue("tenant", ctxKey{}),
	)

	ctx := context.WithValue(context.Background(), ctxKey{}, "acme")
	log.InfoContext(ctx, "checkout created",
		logger.Provider("stripe"),
		logger.ProviderID("sub_123"),
		logger.Error(errors.New("boom")),
	)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "checkout created", rec["msg"])
	assert.Equal(t, "billing", rec["service"])
	assert.Equal(t, "production", rec["env"])
	assert.Equal(t, "acme", rec["tenant"])
	assert.Equal(t, "stripe", rec["provider"])
	assert.Equal(t, "sub_123", rec["provider_id"])
	assert.Equal(t, "boom", rec["error"])
}

func TestNew_DevelopmentIsTextAtDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithEnvironment(environment.Development, "billing"),
	)

	log.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
	assert.Contains(t, buf.String(), "env=development")
}

func TestEmptyAttrsAreDropped(t *testing.T) {
	t.Parallel()

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	assert.True(t, logger.ProviderID("").Equal(slog.Attr{}))
	assert.True(t, logger.UserID("").Equal(slog.Attr{}))
	assert.True(t, logger.BillingID(nil).Equal(slog.Attr{}))
}
