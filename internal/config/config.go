package config

import (
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Auth      AuthConfig
	Mongo     MongoConfig
	LiveKit   LiveKitConfig
	Session   SessionConfig
	Streak    StreakConfig
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WebSocketConfig websocket transport settings
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteTimeout    time.Duration
}

// CORSConfig CORS settings
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// AuthConfig token settings
type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
}

// MongoConfig document store settings
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	PingTimeout    time.Duration
	MaxPoolSize    uint64
}

// LiveKitConfig media server settings
type LiveKitConfig struct {
	Host                string
	APIKey              string
	APISecret           string
	TokenValidity       time.Duration
	RequestTimeout      time.Duration
	MaxParticipants     int
	DispatcherWorkers   int
	DispatcherQueueSize int
}

// SessionConfig whiteboard session duration limits
type SessionConfig struct {
	WarningAfter  time.Duration
	MaxDuration   time.Duration
	CheckInterval time.Duration
}

// StreakConfig group streak monitoring settings
type StreakConfig struct {
	MinPercent    float64
	MinAbsolute   int
	CheckInterval time.Duration
	MaxGapDays    int
}

// Load reads configuration from the environment.
func Load() *Config {
	// .env is optional
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	jwtSecret := getRequiredEnv("JWT_SECRET")

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":5000"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getInt("WS_WRITE_BUFFER_SIZE", 4096),
			WriteTimeout:    getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getDuration("ACCESS_TOKEN_EXPIRY", 3*time.Hour),
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "Discussio"),
			ConnectTimeout: getDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
			PingTimeout:    getDuration("MONGODB_PING_TIMEOUT", 5*time.Second),
			MaxPoolSize:    uint64(getInt("MONGODB_MAX_POOL_SIZE", 100)),
		},
		LiveKit: LiveKitConfig{
			Host:                getEnv("LIVEKIT_URL", "http://localhost:7880"),
			APIKey:              getEnv("LIVEKIT_API_KEY", ""),
			APISecret:           getEnv("LIVEKIT_API_SECRET", ""),
			TokenValidity:       getDuration("LIVEKIT_TOKEN_VALIDITY", 6*time.Hour),
			RequestTimeout:      getDuration("LIVEKIT_REQUEST_TIMEOUT", 5*time.Second),
			MaxParticipants:     getInt("MAX_PARTICIPANTS_PER_ROOM", 10),
			DispatcherWorkers:   getInt("LIVEKIT_DISPATCHER_WORKERS", 4),
			DispatcherQueueSize: getInt("LIVEKIT_DISPATCHER_QUEUE", 64),
		},
		Session: SessionConfig{
			WarningAfter:  getDuration("SESSION_WARNING_AFTER", 15*time.Minute),
			MaxDuration:   getDuration("SESSION_MAX_DURATION", 20*time.Minute),
			CheckInterval: getDuration("SESSION_CHECK_INTERVAL", 30*time.Second),
		},
		Streak: StreakConfig{
			MinPercent:    getFloat("GROUP_STREAK_MIN_PERCENT", 0.2),
			MinAbsolute:   getInt("GROUP_STREAK_MIN_ABSOLUTE", 2),
			CheckInterval: getDuration("GROUP_STREAK_CHECK_INTERVAL", time.Hour),
			MaxGapDays:    getInt("GROUP_STREAK_MAX_GAP_DAYS", 7),
		},
	}
}

// Threshold derives the effective streak threshold for a group of the given
// size. An explicit per-group override wins; otherwise the larger of the
// absolute minimum and round(memberCount * MinPercent).
func (c StreakConfig) Threshold(memberCount int, override int) int {
	if override > 0 {
		return override
	}
	derived := int(math.Round(float64(memberCount) * c.MinPercent))
	if derived < c.MinAbsolute {
		return c.MinAbsolute
	}
	return derived
}

// getRequiredEnv fetches a required variable or exits.
func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("CRITICAL: required environment variable %s is not set", key)
	}
	return value
}

// getEnv fetches a variable with a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// bare numbers are seconds
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
