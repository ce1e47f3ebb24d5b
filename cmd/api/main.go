package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/battle-api/internal/config"
	"github.com/yourusername/battle-api/internal/handler"
	"github.com/yourusername/battle-api/internal/middleware"
	"github.com/yourusername/battle-api/internal/realtime"
	pgRepo "github.com/yourusername/battle-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/battle-api/internal/repository/redis"
	"github.com/yourusername/battle-api/internal/service"
	"github.com/yourusername/battle-api/internal/service/battlemanager"
	"github.com/yourusername/battle-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis с использованием унифицированной конфигурации
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	roomRepo := pgRepo.NewBattleRoomRepo(db)
	answerRepo := pgRepo.NewBattleAnswerRepo(db)
	questionRepo := pgRepo.NewQuestionRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	// Контекст жизненного цикла фоновых горутин
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Инициализация change feed ---
	// Отдельный Redis клиент для Pub/Sub: подписки блокируют соединения,
	// не смешиваем их с клиентом кеша
	var pubSubProvider realtime.PubSubProvider = &realtime.NoOpPubSub{}
	pubSubClient, errPubSub := database.NewUniversalRedisClient(cfg.Redis)
	if errPubSub != nil {
		log.Printf("Ошибка при инициализации Redis клиента для PubSub: %v. Change feed будет неактивен.", errPubSub)
	} else {
		redisProvider, errProv := realtime.NewRedisPubSub(pubSubClient)
		if errProv != nil {
			log.Printf("Ошибка при создании Redis PubSub провайдера: %v. Change feed будет неактивен.", errProv)
			pubSubClient.Close()
		} else {
			log.Println("Redis PubSub провайдер успешно инициализирован")
			pubSubProvider = redisProvider
		}
	}
	feed := realtime.NewChangeFeed(pubSubProvider)

	// --- Инициализация конфигурации боевого режима ---
	battleConfig := battlemanager.DefaultConfig()
	if cfg.Battle.QuestionTimeBudgetMs > 0 {
		battleConfig.QuestionTimeBudgetMs = cfg.Battle.QuestionTimeBudgetMs
	}
	if cfg.Battle.TickIntervalMs > 0 {
		battleConfig.TickInterval = time.Duration(cfg.Battle.TickIntervalMs) * time.Millisecond
	}
	if cfg.Battle.OpponentPollIntervalMs > 0 {
		battleConfig.OpponentPollInterval = time.Duration(cfg.Battle.OpponentPollIntervalMs) * time.Millisecond
	}
	if cfg.Battle.SettleDelayMs > 0 {
		battleConfig.SettleDelay = time.Duration(cfg.Battle.SettleDelayMs) * time.Millisecond
	}
	if cfg.Battle.ErrorDisplaySec > 0 {
		battleConfig.ErrorDisplayTime = time.Duration(cfg.Battle.ErrorDisplaySec) * time.Second
	}
	if cfg.Battle.RoomTTLMinutes > 0 {
		battleConfig.RoomTTLMinutes = cfg.Battle.RoomTTLMinutes
	}
	if cfg.Battle.ReaperIntervalSec > 0 {
		battleConfig.ReaperInterval = time.Duration(cfg.Battle.ReaperIntervalSec) * time.Second
	}

	// Инициализируем сервисы
	roomService := service.NewRoomService(roomRepo, questionRepo, cacheRepo, feed, battleConfig)
	answerService := service.NewAnswerService(answerRepo, roomRepo, cacheRepo, feed, battleConfig)

	// Обходчик просроченных залов ожидания
	reaper := battlemanager.NewReaper(battleConfig, &battlemanager.Dependencies{
		Rooms:   roomService,
		Answers: answerService,
		Feed:    feed,
		Config:  battleConfig,
	})
	reaper.Start(ctx)

	// Инициализируем обработчики
	battleHandler := handler.NewBattleHandler(roomService, answerService)
	wsHandler := handler.NewWSHandler(roomService, answerService, feed, battleConfig)

	// Инициализируем роутер Gin
	router := gin.Default()

	isProduction := gin.Mode() == gin.ReleaseMode
	if isProduction {
		// Production: не доверять прокси-заголовкам
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		// Development: доверяем localhost
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:8000", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-User-ID", "X-Session-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiting: общий лимит на battle endpoints и строгий на join,
	// чтобы коды комнат нельзя было перебирать
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Настраиваем маршруты API
	api := router.Group("/api")
	{
		battles := api.Group("/battles")
		battles.Use(middleware.RequireIdentity())
		battles.Use(rateLimiter.LimitByIP(middleware.DefaultBattleRateLimitConfig()))
		{
			battles.POST("", battleHandler.CreateRoom)
			battles.POST("/join", rateLimiter.Limit(middleware.JoinRateLimitConfig()), battleHandler.JoinRoom)

			battleWithID := battles.Group("/:id")
			battleWithID.Use(middleware.ExtractUUIDParam("id", "roomID"))
			{
				battleWithID.GET("", battleHandler.GetRoom)
				battleWithID.GET("/questions", battleHandler.GetRoomQuestions)
				battleWithID.POST("/start", battleHandler.StartGame)
				battleWithID.POST("/leave", battleHandler.LeaveRoom)
				battleWithID.POST("/advance", battleHandler.AdvanceRoom)
				battleWithID.POST("/answers", battleHandler.RecordAnswer)
				battleWithID.GET("/answers", battleHandler.GetRoomAnswers)
				battleWithID.GET("/stats/:userID", battleHandler.GetPlayerStats)
				battleWithID.GET("/result", battleHandler.GetResult)
			}
		}
	}

	// WebSocket маршрут (идентичность из query, см. WSHandler)
	router.GET("/ws/battles/:id", middleware.ExtractUUIDParam("id", "roomID"), wsHandler.HandleConnection)

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	// После получения сигнала SIGINT или SIGTERM вызываем cancel() для завершения горутин
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()
	reaper.Stop()

	// Закрываем PubSubProvider
	if err := pubSubProvider.Close(); err != nil {
		log.Printf("Error closing PubSub provider: %v", err)
	}

	// Контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}
