// main.go — точка входа FlashFiles.
// Сборка зависимостей: config → logger → PostgreSQL (+ миграции) →
// файловое хранилище → реестр подключений → каскад верификации →
// сервисы → фоновая очистка → HTTP-сервер.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"

	"github.com/UtviklerenSiteAS/FlashFiles/internal/api/handlers"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/auth"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/authority"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/config"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/database"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/realtime"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/repository"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/server"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/service"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/storage/filestore"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("FlashFiles запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
	)

	ctx := context.Background()

	// 3. Миграции схемы БД
	if err := database.Migrate(cfg, logger); err != nil {
		log.Fatalf("Ошибка миграций БД: %v", err)
	}

	// 4. Пул подключений PostgreSQL
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Ошибка подключения к БД: %v", err)
	}
	defer pool.Close()

	fileRepo := repository.NewFileRepository(pool)

	// 5. Файловое хранилище
	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		log.Fatalf("Ошибка инициализации файлового хранилища: %v", err)
	}

	// 6. Identity authority и каскад верификации токенов
	authorityClient := authority.New(
		cfg.AuthURL,
		cfg.AuthServiceKey,
		&http.Client{Timeout: cfg.AuthTimeout},
		logger,
	)

	verifierOpts := auth.Options{
		Secret:           cfg.JWTSecret,
		Leeway:           cfg.JWTLeeway,
		DegradedFallback: cfg.AuthDegradedFallback,
	}
	if cfg.JWKSURL != "" {
		kf, err := auth.NewJWKSKeyfunc(cfg.JWKSURL, cfg.AuthTimeout, cfg.JWKSRefreshInterval, logger)
		if err != nil {
			log.Fatalf("Ошибка инициализации JWKS: %v", err)
		}
		verifierOpts.Keyfunc = kf
	}
	verifier := auth.NewVerifier(verifierOpts, authorityClient, logger)

	// 7. Реестр подключений и сервисы
	hub := realtime.NewHub(logger)
	ingestSvc := service.NewIngestService(cfg, store, fileRepo, hub, logger)
	retrieveSvc := service.NewRetrieveService(fileRepo, store, logger)

	// 8. Фоновая очистка истёкших файлов
	sweeper := service.NewSweeper(fileRepo, store, cfg.SweepInterval, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 9. HTTP-сервер
	srv := server.New(cfg, logger, server.Handlers{
		Files:  handlers.NewFilesHandler(ingestSvc, retrieveSvc, cfg.MaxFileSize),
		Health: handlers.NewHealthHandler(pool),
		WS:     handlers.NewWSHandler(hub, logger),
	}, verifier)

	// 10. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		log.Fatalf("Сервер завершился с ошибкой: %v", err)
	}

	logger.Info("FlashFiles остановлен")
}
