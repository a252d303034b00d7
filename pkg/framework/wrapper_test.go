package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steprally/server/pkg/bootstrap"
)

func TestWrapCloudEventPassesThroughHandlerResult(t *testing.T) {
	svc := &bootstrap.Service{Config: &bootstrap.Config{}}

	var gotCtx *FrameworkContext
	wrapped := WrapCloudEvent("test-fn", svc, func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error) {
		gotCtx = fwCtx
		return map[string]interface{}{"done": true}, nil
	})

	e := event.New()
	e.SetID("evt-1")
	e.SetType("com.steprally.test")
	e.SetSource("/test")

	require.NoError(t, wrapped(context.Background(), e))
	require.NotNil(t, gotCtx)
	assert.Same(t, svc, gotCtx.Service)
	assert.NotNil(t, gotCtx.Logger)
}

func TestWrapCloudEventPropagatesHandlerError(t *testing.T) {
	svc := &bootstrap.Service{Config: &bootstrap.Config{}}
	boom := errors.New("boom")

	wrapped := WrapCloudEvent("test-fn", svc, func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error) {
		return nil, boom
	})

	err := wrapped(context.Background(), event.New())
	assert.ErrorIs(t, err, boom)
}
