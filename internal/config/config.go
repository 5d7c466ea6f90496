package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	DatabaseDSN    string
	JWTSecret      string
	Env            string
	AccessTokenTTL int // 分钟
	HistoryPageMax int
	CORSOrigins    []string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load 读取环境变量（优先加载同目录 .env），缺省值面向本地开发。
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:           getenv("APP_PORT", "8080"),
		DatabaseDSN:    getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=karaschat port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:      getenv("JWT_SECRET", "dev-secret-change-me"),
		Env:            getenv("APP_ENV", "dev"),
		AccessTokenTTL: getint("ACCESS_TOKEN_TTL_MINUTES", 15),
		HistoryPageMax: getint("HISTORY_PAGE_MAX", 200),
		CORSOrigins:    splitList(getenv("CORS_ORIGINS", "")),
	}
}

func splitList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate 启动前检查配置，非 dev 环境禁止使用默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port is empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: database dsn is empty")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == "dev-secret-change-me" {
		return errors.New("config: default jwt secret outside dev")
	}
	if cfg.Env != "dev" && len(cfg.CORSOrigins) == 0 {
		return errors.New("config: CORS_ORIGINS required outside dev")
	}
	return nil
}
