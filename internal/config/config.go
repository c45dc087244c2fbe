package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	SQLitePath  string

	BotToken string
	APIID    int
	APIHash  string

	AdminIDs       []int64
	AdminHTTPAddr  string
	AdminHTTPToken string

	CryptoBotToken  string
	TonAddress      string
	ToncenterAPIKey string

	// Conversion rates into rubles.
	StarRate float64
	TonRate  float64
	USDTRate float64

	KafkaBrokers []string
	RedisAddr    string

	SessionsDir string
	ArchiveDir  string

	SupportLink string
	LogLevel    string
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  EnvDefault("SQLITE_PATH", "shop.db"),

		BotToken: strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		APIID:    EnvIntDefault("API_ID", 0),
		APIHash:  os.Getenv("API_HASH"),

		AdminIDs:       Int64CSV(os.Getenv("ADMIN_IDS")),
		AdminHTTPAddr:  EnvDefault("ADMIN_HTTP_ADDR", ":8080"),
		AdminHTTPToken: os.Getenv("ADMIN_HTTP_TOKEN"),

		CryptoBotToken:  os.Getenv("CRYPTOBOT_TOKEN"),
		TonAddress:      os.Getenv("TON_ADDRESS"),
		ToncenterAPIKey: os.Getenv("TONCENTER_API_KEY"),

		StarRate: EnvFloatDefault("STAR_RATE", 1.3),
		TonRate:  EnvFloatDefault("TON_RATE", 160.0),
		USDTRate: EnvFloatDefault("USDT_RATE", 95.0),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		RedisAddr:    os.Getenv("REDIS_ADDR"),

		SessionsDir: EnvDefault("SESSIONS_DIR", "sessions_store"),
		ArchiveDir:  EnvDefault("ARCHIVE_DIR", "tdata_store"),

		SupportLink: os.Getenv("SUPPORT_LINK"),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Int64CSV(v string) []int64 {
	var out []int64
	for _, p := range CSV(v) {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func EnvDefault(key, def string) string {
	if os.Getenv(key) != "" {
		return os.Getenv(key)
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
