package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/happiness-journal/internal/config"
	"github.com/iliyamo/happiness-journal/internal/database"
	"github.com/iliyamo/happiness-journal/internal/discordlink"
	"github.com/iliyamo/happiness-journal/internal/handler"
	"github.com/iliyamo/happiness-journal/internal/jobs"
	"github.com/iliyamo/happiness-journal/internal/keys"
	"github.com/iliyamo/happiness-journal/internal/mailer"
	"github.com/iliyamo/happiness-journal/internal/mcp"
	"github.com/iliyamo/happiness-journal/internal/oauth"
	"github.com/iliyamo/happiness-journal/internal/queue"
	"github.com/iliyamo/happiness-journal/internal/repository"
	"github.com/iliyamo/happiness-journal/internal/router"
	"github.com/iliyamo/happiness-journal/internal/service"
	"github.com/iliyamo/happiness-journal/internal/storage"
	"github.com/iliyamo/happiness-journal/internal/utils"
)

func openDB() (*sql.DB, error) {
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func migrate(ctx context.Context) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	zap.L().Info("Migrations applied")
	return nil
}

func sweep(ctx context.Context) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	sessions := service.NewSessionService(repository.NewTokenRepo(db))
	n := jobs.NewTokenSweep(sessions).RunOnce(ctx)
	zap.L().Info("Sweep complete", zap.Int64("deleted_count", n["session_tokens"]))
	return nil
}

// stateStores picks the authorization-code and link-session stores.  The
// memory variants are only correct with a single worker process.
func stateStores(rdb *redis.Client) (oauth.CodeStore, discordlink.Store, error) {
	if cfg.StateStore == "memory" {
		zap.L().Warn("Using in-process state stores; run a single worker only")
		return oauth.NewMemoryCodeStore(), discordlink.NewMemoryStore(), nil
	}
	if rdb == nil {
		return nil, nil, errors.New("STATE_STORE=redis but redis is unreachable")
	}
	return oauth.NewRedisCodeStore(rdb, "hj:oauth:code"), discordlink.NewRedisStore(rdb, "hj:discord:link"), nil
}

func pictureStore(ctx context.Context) storage.PictureStore {
	s3, err := storage.NewS3Store(ctx, cfg.S3)
	if errors.Is(err, storage.ErrDisabled) {
		zap.L().Info("Object storage not configured; picture uploads disabled")
		return nil
	}
	if err != nil {
		zap.L().Error("Object storage unavailable; picture uploads disabled", zap.Error(err))
		return nil
	}
	return s3
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := zap.L()

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	if !skipMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	} else {
		log.Warn("Redis unreachable; rate limiting and discovery cache disabled")
	}
	codes, links, err := stateStores(rdb)
	if err != nil {
		return err
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	happiness := repository.NewHappinessRepo(db)
	journal := repository.NewJournalRepo(db)
	groups := repository.NewGroupRepo(db)
	comments := repository.NewCommentRepo(db)
	settings := repository.NewSettingRepo(db)

	engine := keys.New(cfg.EncryptSalt)
	sessions := service.NewSessionService(tokens)
	accounts := service.NewAccountService(db, users, journal, sessions, engine, cfg.BcryptCost)
	journals := service.NewJournalService(users, journal, engine)
	pkt := utils.NewPasswordKeyBroker(cfg.SecretKey, time.Hour)
	publisher := queue.NewAMQPPublisher(cfg.RabbitURL)

	oauthSrv := oauth.NewServer(accounts, sessions, codes, cfg.OAuthBaseURL, cfg.FrontendURL)
	broker := discordlink.NewBroker(links, discordlink.NewStateSigner(cfg.SecretKey), oauthSrv, cfg.OAuthBaseURL, cfg.FrontendURL)
	mcpSrv := mcp.NewServer(mcp.NewTools(db, happiness, groups))

	e := router.New(router.Deps{
		FrontendURL:  cfg.FrontendURL,
		BotSecret:    cfg.DiscordBotSecret,
		Verifier:     sessions,
		PasswordKeys: pkt,
		Auth:         handler.NewAuthHandler(accounts, sessions, pkt),
		User: &handler.UserHandler{
			Accounts:    accounts,
			Users:       users,
			Keys:        pkt,
			Settings:    settings,
			Pictures:    pictureStore(ctx),
			Queue:       publisher,
			Secret:      cfg.SecretKey,
			FrontendURL: cfg.FrontendURL,
		},
		Happiness: &handler.HappinessHandler{Happiness: happiness, Users: users, Queue: publisher},
		Journal:   &handler.JournalHandler{Journals: journals},
		Group:     &handler.GroupHandler{DB: db, Groups: groups, Users: users, Happiness: happiness},
		Comment:   &handler.CommentHandler{Happiness: happiness, Groups: groups, Comments: comments},
		OAuth:     &handler.OAuthHandler{Server: oauthSrv},
		Link:      &handler.DiscordLinkHandler{Broker: broker},
		MCP:       mcpSrv,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokenSweep := jobs.NewTokenSweep(sessions)
	auxSweep := jobs.NewAuxSweep(codes, broker, mcpSrv)
	tokenSweep.Start()
	auxSweep.Start()
	defer tokenSweep.Stop()
	defer auxSweep.Stop()

	mail := mailer.New(cfg.SMTP)
	consumers := []*queue.Consumer{
		{URL: cfg.RabbitURL, Queue: queue.ExportRequestedQueue, Handle: (&queue.ExportJob{Entries: happiness, Mail: mail}).Handle, Prefetch: 1, Timeout: time.Minute},
		{URL: cfg.RabbitURL, Queue: queue.EmailSendQueue, Handle: (&queue.EmailJob{Mail: mail}).Handle, Prefetch: 4, Timeout: 30 * time.Second},
	}
	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func(c *queue.Consumer) {
			defer wg.Done()
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Consumer stopped", zap.String("queue", c.Queue), zap.Error(err))
			}
		}(c)
	}

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("state_store", cfg.StateStore))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown", zap.Error(err))
	}
	wg.Wait()
	return nil
}
