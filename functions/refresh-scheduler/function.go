// Package refreshscheduler runs the scheduled batch refresh. Cloud Scheduler
// publishes a Pub/Sub message; this function selects due participants and
// syncs them.
package refreshscheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/steprally/server/pkg/bootstrap"
	"github.com/steprally/server/pkg/framework"
	"github.com/steprally/server/pkg/googlefit"
	"github.com/steprally/server/pkg/syncer"
	"github.com/steprally/server/pkg/types"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.CloudEvent("RefreshParticipants", RefreshParticipants)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	if svc != nil {
		return svc, nil
	}
	svcOnce.Do(func() {
		baseSvc, err := bootstrap.NewService(ctx)
		if err != nil {
			slog.Error("Failed to initialize service", "error", err)
			svcErr = err
			return
		}
		svc = baseSvc
	})
	return svc, svcErr
}

// RefreshParticipants is the entry point
func RefreshParticipants(ctx context.Context, e event.Event) error {
	svc, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %v", err)
	}
	return framework.WrapCloudEvent("refresh-scheduler", svc, refreshHandler)(ctx, e)
}

type schedulerPayload struct {
	ForceRefresh bool `json:"force_refresh"`
}

// refreshHandler contains the business logic
func refreshHandler(ctx context.Context, e event.Event, fwCtx *framework.FrameworkContext) (interface{}, error) {
	if fwCtx.Service.DB == nil {
		return nil, fmt.Errorf("datastore not configured")
	}

	var msg types.PubSubMessage
	var payload schedulerPayload
	if err := e.DataAs(&msg); err == nil && len(msg.Message.Data) > 0 {
		if err := json.Unmarshal(msg.Message.Data, &payload); err != nil {
			fwCtx.Logger.Warn("Unparseable scheduler payload, defaulting to throttled refresh", "error", err)
		}
	}

	ids, total, err := syncer.SelectParticipantIDs(ctx, fwCtx.Service.DB, payload.ForceRefresh, time.Now())
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	fwCtx.Logger.Info("Scheduled refresh starting",
		"total_participants", total,
		"due", len(ids),
		"force_refresh", payload.ForceRefresh)
	if len(ids) == 0 {
		return map[string]interface{}{"refreshed": 0}, nil
	}

	cfg := fwCtx.Service.Config
	tokens := googlefit.NewTokenManager(cfg.GoogleClientID, cfg.GoogleClientSecret)
	coordinator := syncer.New(fwCtx.Service.DB, tokens, googlefit.NewClient(), fwCtx.Service.Pub, fwCtx.Logger)

	stats, err := coordinator.RefreshParticipantsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("batch refresh: %w", err)
	}

	return map[string]interface{}{
		"totalParticipants": total,
		"refreshed":         stats.SuccessfulSyncs,
		"failed":            stats.FailedSyncs,
		"tokensRefreshed":   stats.TokensRefreshed,
	}, nil
}
