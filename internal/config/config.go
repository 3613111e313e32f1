package config

import (
	"os"
	"strconv"
)

type Config struct {
	ServerPort   string
	DatabasePath string
	// CatalogPath 启动时播种后端/模型目录的 JSON 文件路径，留空跳过
	CatalogPath        string
	LogLevel           string
	CORSAllowedOrigins string
	RateLimitRPS       float64
	RateLimitBurst     int
	// GatewayKeyHash 网关调用方密钥的 bcrypt 哈希，留空则不启用鉴权
	GatewayKeyHash string
}

var cfg *Config

func Load() *Config {
	cfg = &Config{
		ServerPort:         getEnv("SERVER_PORT", "18080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./data/gateway.db"),
		CatalogPath:        getEnv("CATALOG_PATH", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 50),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 100),
		GatewayKeyHash:     getEnv("GATEWAY_KEY_HASH", ""),
	}
	return cfg
}

func Get() *Config {
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
