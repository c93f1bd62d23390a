package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"

	rbconfig "github.com/voicetyped/rivebot/config"
	chathandler "github.com/voicetyped/rivebot/internal/chat/handler"
	"github.com/voicetyped/rivebot/internal/connectutil"
	"github.com/voicetyped/rivebot/pkg/brain"
	"github.com/voicetyped/rivebot/pkg/events"
	"github.com/voicetyped/rivebot/pkg/hooks"
	"github.com/voicetyped/rivebot/pkg/script"
	"github.com/voicetyped/rivebot/pkg/session"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[rbconfig.ChatConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	opts := []frame.Option{
		frame.WithConfig(&cfg),
		frame.WithName("rivebot"),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	}
	if cfg.AuthEnabled {
		opts = append(opts, frame.WithRegisterServerOauth2Client())
	}
	if cfg.SessionStore == rbconfig.StoreDatabase {
		opts = append(opts, frame.WithDatastore())
	}

	ctx, srv := frame.NewService(opts...)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	store, err := openStore(ctx, srv, &cfg)
	if err != nil {
		log.Fatalf("opening session store: %v", err)
	}

	pub := events.NewPublisher(srv.QueueManager(), "rivebot", eventRef)
	engine := brain.NewEngine(cfg.Options(), store, pub)

	hookOpts := []hooks.Option{}
	if cfg.HookAllowPrivate {
		hookOpts = append(hookOpts, hooks.AllowPrivateIPs())
	}
	engine.RegisterMacro(hooks.Language, hooks.NewExecutor(hookOpts...))

	loader := script.NewLoader(cfg.ScriptDir)
	onLoad := reloadInto(ctx, engine)
	onLoad(loader.LoadAll(ctx))

	if cfg.ScriptWatch {
		watch := func() {
			err := loader.WatchAndReload(ctx.Done(), onLoad)
			if err != nil {
				slog.ErrorContext(ctx, "script watcher stopped", slog.String("error", err.Error()))
			}
		}
		if err := pool.Submit(ctx, watch); err != nil {
			log.Fatalf("starting script watcher: %v", err)
		}
	}

	handler := chathandler.NewChatHandler(engine, loader, pool, chathandler.WithSessionTTL(cfg.SessionTTL()))
	handler.StartReaper(ctx)

	mux := http.NewServeMux()
	handler.Mount(mux, connectutil.DefaultOptions()...)

	var root http.Handler = mux
	if cfg.AuthEnabled {
		root = connectutil.AuthenticatedHTTPMiddleware(mux, srv.SecurityManager().GetAuthenticator(ctx))
	}

	srv.Init(ctx, frame.WithHTTPHandler(connectutil.H2CHandler(root)))

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}

// reloadInto returns a loader callback that swaps freshly loaded scripts
// into engine.
func reloadInto(ctx context.Context, engine *brain.Engine) func([]*script.Script, error) {
	return func(scripts []*script.Script, err error) {
		if err != nil {
			slog.WarnContext(ctx, "script load failed", slog.String("error", err.Error()))
			return
		}
		if err := engine.Reload(ctx, scripts...); err != nil {
			slog.WarnContext(ctx, "scripts loaded with issues", slog.String("error", err.Error()))
		}
	}
}

func openStore(ctx context.Context, srv *frame.Service, cfg *rbconfig.ChatConfig) (session.Store, error) {
	switch cfg.SessionStore {
	case rbconfig.StoreDatabase:
		store := session.NewGormStore(srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"))
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case rbconfig.StoreValkey:
		client, err := session.NewValkeyClient(ctx, cfg.Valkey())
		if err != nil {
			return nil, err
		}
		return session.NewValkeyStore(client, cfg.ValkeyPrefix, cfg.SessionTTL()), nil
	default:
		return session.NewMemoryStore(), nil
	}
}
