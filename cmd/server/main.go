package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fall-detector-go/internal/advisory"
	"fall-detector-go/internal/alert"
	"fall-detector-go/internal/analysis"
	"fall-detector-go/internal/client"
	"fall-detector-go/internal/config"
	"fall-detector-go/internal/database"
	"fall-detector-go/internal/handler"
	"fall-detector-go/internal/pipeline"
	"fall-detector-go/internal/repository"
	"fall-detector-go/internal/service"
)

// advisoryTimeout ограничение на одну генерацию рекомендации
const advisoryTimeout = 30 * time.Second

func main() {
	cfg := config.LoadConfig()

	// Инициализируем логгер
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.Info("Запуск Fall Detector API Server")

	// Создаем папку для статических файлов
	if err := os.MkdirAll(cfg.Storage.StaticDir, 0755); err != nil {
		logger.Fatalf("Ошибка создания папки для статических файлов: %v", err)
	}

	if cfg.Storage.InputRoot == "" {
		logger.Info("INPUT_ROOT не задан, запуск по source_path отключен")
	}

	// База данных необязательна: без нее сессии живут только в памяти
	var (
		sessionRepo repository.SessionRepository
		dbCheck     func() error
	)
	if cfg.Database.Enabled {
		logger.Info("Подключение к базе данных...")
		if err := database.Connect(cfg, logger); err != nil {
			logger.Fatalf("Ошибка подключения к базе данных: %v", err)
		}
		defer database.Close()

		if err := database.Migrate(logger); err != nil {
			logger.Fatalf("Ошибка выполнения миграций: %v", err)
		}
		sessionRepo = repository.NewSessionRepository(database.DB)
		dbCheck = database.HealthCheck
	} else {
		logger.Warn("База данных отключена, архив сессий не ведется")
	}

	// Детектор
	detector, err := client.New(cfg, logger)
	if err != nil {
		logger.Fatalf("Ошибка создания клиента детектора: %v", err)
	}
	defer detector.Close()

	// Рекомендации: LLM при наличии ключа, иначе шаблоны
	var generator advisory.Generator
	if cfg.Advisory.GeminiAPIKey != "" {
		gen, err := advisory.NewGeminiGenerator(context.Background(), cfg.Advisory.GeminiAPIKey, cfg.Advisory.Model)
		if err != nil {
			logger.Errorf("Gemini недоступен, используем шаблоны: %v", err)
		} else {
			generator = gen
			logger.Infof("Рекомендации генерирует модель %s", cfg.Advisory.Model)
		}
	}
	advisor := advisory.NewAdvisor(generator, cfg.Advisory.MaxTokens, logger)

	// Доставка рекомендаций: ячейки в памяти, Redis и MQTT по конфигурации
	board := alert.NewBoard()
	notifiers := []alert.Notifier{board}

	if cfg.Redis.Addr != "" {
		rdb := alert.NewRedisClient(cfg)
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("Redis недоступен (%s): %v", cfg.Redis.Addr, err)
		} else {
			notifiers = append(notifiers, alert.NewRedisNotifier(rdb, cfg.Redis.KeyPrefix, time.Duration(cfg.Redis.TTL)*time.Second))
			logger.Infof("Рекомендации публикуются в Redis %s", cfg.Redis.Addr)
		}
	}

	if cfg.MQTT.Broker != "" {
		mqttClient, err := alert.ConnectMQTT(cfg, logger)
		if err != nil {
			logger.Warnf("MQTT недоступен: %v", err)
		} else {
			defer mqttClient.Disconnect(250)
			notifiers = append(notifiers, alert.NewMQTTNotifier(mqttClient, cfg.MQTT.TopicPrefix))
		}
	}

	worker := alert.NewWorker(advisor, alert.NewMultiNotifier(logger, notifiers...), cfg.Alert.QueueSize, advisoryTimeout, logger)
	worker.Start()

	// Сервисы
	processor := pipeline.NewProcessor(detector, worker, logger)
	sessionService := service.NewSessionService(processor, analysis.NewAnalyzer(), advisor, sessionRepo, board, cfg, logger)
	healthService := service.NewHealthService(detector, dbCheck, sessionService, advisor.Enabled(), logger)

	// Настраиваем Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.Static("/static", cfg.Storage.StaticDir)
	handler.NewSessionHandler(sessionService, healthService, logger).RegisterRoutes(router)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Fall Detector API Server",
			"version": "1.0.0",
			"status":  "running",
		})
	})

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Infof("Сервер запущен на %s", serverAddr)
		logger.Infof("API доступно по адресу: http://localhost:%d/api/v1", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Ошибка запуска сервера: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Останавливаем сервер...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Ошибка остановки HTTP сервера: %v", err)
	}
	if err := sessionService.Shutdown(ctx); err != nil {
		logger.Errorf("Не все сессии завершились: %v", err)
	}
	if err := worker.Stop(ctx); err != nil {
		logger.Errorf("Очередь рекомендаций не разобрана: %v", err)
	}

	logger.Info("Сервер остановлен")
}

// corsMiddleware добавляет заголовки CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
