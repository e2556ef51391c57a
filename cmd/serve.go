package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"github.com/Lakshima2000/paddyHealth-backend/classifier"
	"github.com/Lakshima2000/paddyHealth-backend/config"
	"github.com/Lakshima2000/paddyHealth-backend/models"
	"github.com/Lakshima2000/paddyHealth-backend/realtime"
	"github.com/Lakshima2000/paddyHealth-backend/routes"
	"github.com/Lakshima2000/paddyHealth-backend/services"
	"github.com/Lakshima2000/paddyHealth-backend/utils"
)

const uploadSweepSpec = "@every 10m"

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Get()
	log := utils.Sugar

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			log.Warnw("sentry init failed", "error", err)
		}
	}

	db := config.InitDatabase(models.All()...)

	clip, err := classifier.NewCLIPClient(classifier.Options{
		BaseURL: cfg.CLIPBaseURL,
		APIKey:  cfg.CLIPAPIKey,
		Model:   cfg.CLIPModel,
		Timeout: cfg.InferenceTimeout(),
	})
	if err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	zeroShot := classifier.NewZeroShot(clip, cfg.CLIPPromptTemplate)

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	hub := realtime.NewHub(log.Named("realtime"))
	publisher, forwarderDone, err := newPublisher(runCtx, cfg, hub)
	if err != nil {
		return err
	}

	predictions := services.NewPredictionService(db, zeroShot, publisher, log.Named("prediction"))

	sweepAge := time.Duration(cfg.UploadSweepMinutes) * time.Minute
	sweeper, err := utils.StartUploadSweeper(uploadSweepSpec, cfg.UploadFolder, sweepAge)
	if err != nil {
		return fmt.Errorf("upload sweeper: %w", err)
	}

	router := routes.SetupRouter(cfg, routes.Deps{DB: db, Hub: hub, Submitter: predictions})

	srv := utils.NewServer(":"+cfg.AppPort, router)
	srv.OnShutdown(func(ctx context.Context) {
		if err := predictions.Shutdown(ctx); err != nil {
			log.Warnw("prediction jobs still running at shutdown", "error", err)
		}
	})
	srv.OnShutdown(func(ctx context.Context) {
		hub.Close()
		stopRun()
		if forwarderDone != nil {
			select {
			case <-forwarderDone:
			case <-ctx.Done():
			}
		}
	})
	srv.OnShutdown(func(ctx context.Context) {
		<-sweeper.Stop().Done()
		sentry.Flush(2 * time.Second)
	})

	log.Infow("starting server", "port", cfg.AppPort, "push_backend", cfg.PushBackend, "clip", cfg.CLIPBaseURL)
	return srv.ListenAndServe()
}

// newPublisher picks the push transport. The redis backend also returns the
// forwarder's done channel.
func newPublisher(ctx context.Context, cfg config.AppConfig, hub *realtime.Hub) (realtime.Publisher, <-chan struct{}, error) {
	switch cfg.PushBackend {
	case "", "local":
		return realtime.NewLocalPublisher(hub), nil, nil
	case "redis":
		rdb := utils.GetRedis()
		if rdb == nil {
			return nil, nil, errors.New("push_backend redis requires redis_host")
		}
		p, err := realtime.NewRedisPublisher(rdb, cfg.PushChannel, hub, utils.Sugar.Named("push"))
		if err != nil {
			return nil, nil, err
		}
		done, err := p.Start(ctx)
		if err != nil {
			return nil, nil, err
		}
		return p, done, nil
	default:
		return nil, nil, fmt.Errorf("unknown push_backend %q", cfg.PushBackend)
	}
}
