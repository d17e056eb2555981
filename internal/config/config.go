package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config структура конфигурации приложения
type Config struct {
	Environment string

	Server struct {
		Port int
		Host string
	}
	Detector struct {
		Transport string // http или grpc
		BaseURL   string
		GRPCAddr  string
		Timeout   int // в секундах, 0 - без таймаута
	}
	Detection DetectionParams
	Alert     struct {
		CooldownSeconds float64
		QueueSize       int
		Clock           string // wall или video
	}
	Advisory struct {
		GeminiAPIKey string
		Model        string
		MaxTokens    int
	}
	Database struct {
		Enabled  bool
		Host     string
		Port     string
		Name     string
		User     string
		Password string
		SSLMode  string
	}
	Redis struct {
		Addr      string
		Password  string
		DB        int
		KeyPrefix string
		TTL       int // в секундах
	}
	MQTT struct {
		Broker      string
		ClientID    string
		Username    string
		Password    string
		TopicPrefix string
	}
	Storage struct {
		StaticDir  string
		DefaultFPS float64
		// InputRoot каталог, внутри которого разрешен source_path; пусто - только загрузка
		InputRoot string
		// LiveRetention сколько секунд завершенная сессия держится в памяти после архивации
		LiveRetention float64
	}
	Logging struct {
		Level string
	}
}

// DetectionParams параметры детекции падений
type DetectionParams struct {
	WindowSize          int
	VoteThreshold       int
	VelocityThreshold   float64
	DownwardThreshold   float64
	SkipFrames          int
	DetectionConfidence float64
	IOUThreshold        float64
	PoseConfidence      float64
	MaxErrors           int
	FallClasses         []int
	PoseEnabled         bool
}

// DefaultDetectionParams значения по умолчанию
func DefaultDetectionParams() DetectionParams {
	return DetectionParams{
		WindowSize:          30,
		VoteThreshold:       10,
		VelocityThreshold:   20,
		DownwardThreshold:   15,
		SkipFrames:          3,
		DetectionConfidence: 0.5,
		IOUThreshold:        0.4,
		PoseConfidence:      0.25,
		MaxErrors:           50,
		FallClasses:         []int{0, 1},
		PoseEnabled:         true,
	}
}

// Normalize приводит параметры к допустимым значениям
func (p DetectionParams) Normalize() DetectionParams {
	def := DefaultDetectionParams()
	if p.SkipFrames < 1 {
		p.SkipFrames = 1
	}
	if p.WindowSize < 1 {
		p.WindowSize = def.WindowSize
	}
	if p.VoteThreshold < 1 {
		p.VoteThreshold = def.VoteThreshold
	}
	if p.MaxErrors <= 0 {
		p.MaxErrors = def.MaxErrors
	}
	p.DetectionConfidence = clamp(p.DetectionConfidence, 0.1, 1.0)
	p.IOUThreshold = clamp(p.IOUThreshold, 0.1, 1.0)
	if p.PoseConfidence <= 0 || p.PoseConfidence > 1 {
		p.PoseConfidence = def.PoseConfidence
	}
	if len(p.FallClasses) == 0 {
		p.FallClasses = def.FallClasses
	}
	return p
}

// LoadConfig загружает конфигурацию из переменных окружения
func LoadConfig() *Config {
	// .env необязателен, при отсутствии используем окружение системы
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Environment = getEnv("ENVIRONMENT", "development")

	// Конфигурация сервера
	cfg.Server.Port = getEnvInt("SERVER_PORT", 8080)
	cfg.Server.Host = getEnv("SERVER_HOST", "0.0.0.0")

	// Конфигурация детектора
	cfg.Detector.Transport = strings.ToLower(getEnv("DETECTOR_TRANSPORT", "http"))
	cfg.Detector.BaseURL = getEnv("PYTHON_API_BASE_URL", "http://localhost:8000")
	cfg.Detector.GRPCAddr = getEnv("DETECTOR_GRPC_ADDR", "localhost:50051")
	cfg.Detector.Timeout = getEnvInt("DETECTOR_TIMEOUT_SECONDS", 0)

	// Параметры детекции
	d := DefaultDetectionParams()
	d.WindowSize = getEnvInt("DETECTION_WINDOW_SIZE", d.WindowSize)
	d.VoteThreshold = getEnvInt("DETECTION_VOTE_THRESHOLD", d.VoteThreshold)
	d.VelocityThreshold = getEnvFloat("DETECTION_VELOCITY_THRESHOLD", d.VelocityThreshold)
	d.DownwardThreshold = getEnvFloat("DETECTION_DOWNWARD_THRESHOLD", d.DownwardThreshold)
	d.SkipFrames = getEnvInt("DETECTION_SKIP_FRAMES", d.SkipFrames)
	d.DetectionConfidence = getEnvFloat("DETECTION_CONFIDENCE", d.DetectionConfidence)
	d.IOUThreshold = getEnvFloat("DETECTION_IOU_THRESHOLD", d.IOUThreshold)
	d.PoseConfidence = getEnvFloat("DETECTION_POSE_CONFIDENCE", d.PoseConfidence)
	d.MaxErrors = getEnvInt("DETECTION_MAX_ERRORS", d.MaxErrors)
	d.FallClasses = getEnvIntList("DETECTION_FALL_CLASSES", d.FallClasses)
	d.PoseEnabled = getEnvBool("DETECTION_POSE_ENABLED", d.PoseEnabled)
	cfg.Detection = d.Normalize()

	// Оповещения
	cfg.Alert.CooldownSeconds = getEnvFloat("ALERT_COOLDOWN_SECONDS", 10)
	cfg.Alert.QueueSize = getEnvInt("ALERT_QUEUE_SIZE", 16)
	cfg.Alert.Clock = getEnv("ALERT_CLOCK", "wall")

	// LLM рекомендации
	cfg.Advisory.GeminiAPIKey = getEnv("GEMINI_API_KEY", "")
	cfg.Advisory.Model = getEnv("GEMINI_MODEL", "gemini-1.5-flash")
	cfg.Advisory.MaxTokens = getEnvInt("ADVISORY_MAX_TOKENS", 300)

	// База данных
	cfg.Database.Enabled = getEnvBool("DB_ENABLED", true)
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnv("DB_PORT", "5432")
	cfg.Database.Name = getEnv("DB_NAME", "fall_detector")
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres123")
	cfg.Database.SSLMode = getEnv("DB_SSL_MODE", "disable")

	// Redis (пусто - отключен)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", "fall-detector:")
	cfg.Redis.TTL = getEnvInt("REDIS_ADVISORY_TTL_SECONDS", 3600)

	// MQTT (пусто - отключен)
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "fall-detector")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "fall-detector")

	// Хранилище файлов
	cfg.Storage.StaticDir = getEnv("STATIC_DIR", "./static")
	cfg.Storage.DefaultFPS = getEnvFloat("VIDEO_DEFAULT_FPS", 30)
	cfg.Storage.InputRoot = getEnv("INPUT_ROOT", "")
	cfg.Storage.LiveRetention = getEnvFloat("SESSION_LIVE_RETENTION_SECONDS", 600)

	// Конфигурация логирования
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")

	return cfg
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает int значение переменной окружения или возвращает значение по умолчанию
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvIntList разбирает список через запятую, например "0,1"
func getEnvIntList(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []int
	for _, part := range strings.Split(value, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
