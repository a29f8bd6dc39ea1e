// Command agentd wires the Permission Kernel, Artifact Store, model client,
// and Chat Orchestrator into one process. It exposes no transport of its
// own: the orchestrator.Orchestrator it builds is the in-process
// entrypoint a transport layer (HTTP, gRPC, a CLI REPL) would call.
// Running the binary directly drives one demo PostChat turn and prints the
// resulting event stream, mirroring the teacher's cmd/demo wiring style.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lumenanalytics/agentd/asset"
	"github.com/lumenanalytics/agentd/asset/assetmongo"
	"github.com/lumenanalytics/agentd/cmd/agentd/config"
	"github.com/lumenanalytics/agentd/model"
	"github.com/lumenanalytics/agentd/model/anthropic"
	"github.com/lumenanalytics/agentd/model/middleware"
	"github.com/lumenanalytics/agentd/model/openai"
	"github.com/lumenanalytics/agentd/orchestrator"
	"github.com/lumenanalytics/agentd/permission"
	"github.com/lumenanalytics/agentd/permission/permissionmongo"
	"github.com/lumenanalytics/agentd/permission/permissionredis"
	"github.com/lumenanalytics/agentd/telemetry"
)

func main() {
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:   "agentd",
		Short: "agentd — multi-tenant AI analytics backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	if err := config.BindFlags(rootCmd.Flags(), v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewClueLogger()

	mongoClient, err := mongodriver.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return fmt.Errorf("agentd: connect mongo: %w", err)
	}
	defer func() { _ = mongoClient.Disconnect(ctx) }()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()

	permStore, err := permissionmongo.New(ctx, permissionmongo.Options{
		Client:   mongoClient,
		Database: cfg.MongoDatabase,
	})
	if err != nil {
		return fmt.Errorf("agentd: build permission store: %w", err)
	}
	permCache := permissionredis.New(rdb, cfg.RedisTTL, cfg.MongoDatabase+":")
	tracer := telemetry.NewClueTracer()
	kernel, err := permission.New(permStore, permCache, tracer)
	if err != nil {
		return fmt.Errorf("agentd: build permission kernel: %w", err)
	}

	assetStore, err := assetmongo.New(ctx, assetmongo.Options{
		Client:   mongoClient,
		Database: cfg.MongoDatabase,
		Kernel:   kernel,
	})
	if err != nil {
		return fmt.Errorf("agentd: build asset store: %w", err)
	}
	assets, err := asset.NewService(assetStore, kernel)
	if err != nil {
		return fmt.Errorf("agentd: build asset service: %w", err)
	}

	models, err := buildModelClient(cfg, tracer, logger)
	if err != nil {
		return fmt.Errorf("agentd: build model client: %w", err)
	}

	orc, err := orchestrator.New(assets, models, tracer, telemetry.NewClueMetrics())
	if err != nil {
		return fmt.Errorf("agentd: build orchestrator: %w", err)
	}

	logger.Info(ctx, "agentd wired", "mongo_database", cfg.MongoDatabase, "model_provider", cfg.ModelProvider, "listen_addr", cfg.ListenAddr)

	return runDemoChat(ctx, orc, logger)
}

// buildModelClient constructs the provider client selected by cfg and wraps
// it with an AdaptiveRateLimiter and a tracing middleware: every LLM call --
// Complete and Stream alike -- is throttled to the configured
// tokens-per-minute budget and backs off on a provider rate-limit response
// (spec.md §4.5's LlmTransient backoff story), and runs inside a
// "model.complete"/"model.stream" span recording token usage as span events.
func buildModelClient(cfg *config.Config, tracer telemetry.Tracer, logger telemetry.Logger) (model.Client, error) {
	var (
		client model.Client
		err    error
	)
	switch cfg.ModelProvider {
	case "openai":
		client, err = openai.NewFromAPIKey(cfg.ModelAPIKey, cfg.DefaultModel)
	default:
		client, err = anthropic.NewFromAPIKey(cfg.ModelAPIKey, cfg.DefaultModel)
	}
	if err != nil {
		return nil, err
	}

	client = middleware.NewTracingMiddleware(tracer, logger)(client)
	limiter := middleware.NewAdaptiveRateLimiter(cfg.ModelInitialTPM, cfg.ModelMaxTPM)
	return limiter.Middleware()(client), nil
}

// runDemoChat drives a single PostChat turn against a fresh chat, printing
// every event until the stream closes. This is a wiring smoke test, not a
// transport: a real deployment would call orc.PostChat once per inbound
// request instead.
func runDemoChat(ctx context.Context, orc *orchestrator.Orchestrator, logger telemetry.Logger) error {
	out, err := orc.PostChat(ctx, orchestrator.Request{
		UserID:         "demo-user",
		OrganizationID: "demo-org",
		Prompt:         "Show me revenue trends for the last quarter.",
	})
	if err != nil {
		return fmt.Errorf("agentd: post chat: %w", err)
	}

	fmt.Println("ChatID:", out.ChatID)
	for evt := range out.Events {
		if evt.Err != nil {
			logger.Error(ctx, "agent run failed", "kind", evt.Err.Kind, "message", evt.Err.Message)
			continue
		}
		if evt.Value == nil {
			continue
		}
		if evt.Value.Done {
			fmt.Println("done")
			break
		}
		if m := evt.Value.Message; m != nil && m.Content != "" {
			fmt.Println(m.Kind, ":", m.Content)
		}
	}
	return nil
}
