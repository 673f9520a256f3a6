package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"mhdcoin-bot/internal/models"
)

type Config struct {
	DBUser        string
	DBPassword    string
	DBName        string
	DBHost        string
	DBPort        string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	BotToken      string

	AdminAddr         string
	AdminAllowedCIDRs []string

	LogLevel  string
	LogFormat string

	// Reward policy. Amounts are in minor units (see models.ParseAmount).
	CooldownSeconds     int
	TapReward           int64
	ReferralBonus       int64
	LeaderboardLimit    int
	StatsInterval       time.Duration
	LeaderboardCacheTTL time.Duration
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "mhdcoin_bot"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		BotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),

		AdminAddr:         getEnv("ADMIN_ADDR", ":8080"),
		AdminAllowedCIDRs: getEnvList("ADMIN_ALLOWED_CIDRS"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		CooldownSeconds:     getEnvInt("COOLDOWN_SECONDS", 3),
		TapReward:           getEnvAmount("TAP_REWARD", "0.01"),
		ReferralBonus:       getEnvAmount("REFERRAL_BONUS", "0.5"),
		LeaderboardLimit:    getEnvInt("LEADERBOARD_LIMIT", 10),
		StatsInterval:       getEnvDuration("STATS_INTERVAL", time.Minute),
		LeaderboardCacheTTL: getEnvDuration("LEADERBOARD_CACHE_TTL", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid %s=%q, using default %d", key, value, fallback)
	}
	return fallback
}

func getEnvAmount(key, fallback string) int64 {
	raw := getEnv(key, fallback)
	units, err := models.ParseAmount(raw)
	if err != nil {
		log.Printf("Invalid %s=%q, using default %s", key, raw, fallback)
		units, _ = models.ParseAmount(fallback)
	}
	return units
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid %s=%q, using default %s", key, value, fallback)
	}
	return fallback
}

func getEnvList(key string) []string {
	value := getEnv(key, "")
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
