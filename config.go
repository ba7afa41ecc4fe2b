package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config carries everything read from the environment at startup.
type Config struct {
	Port      string
	GinMode   string
	JWTSecret string

	DBHost string
	DBPort string
	DBUser string
	DBPass string
	DBName string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:      getenv("APP_PORT", "8080"),
		GinMode:   getenv("GIN_MODE", "debug"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		DBHost:    os.Getenv("DB_HOST"),
		DBPort:    getenv("DB_PORT", "5432"),
		DBUser:    os.Getenv("DB_USER"),
		DBPass:    os.Getenv("DB_PASS"),
		DBName:    os.Getenv("DB_NAME"),
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is missing — check .env")
	}
	if cfg.DBHost == "" || cfg.DBUser == "" || cfg.DBPass == "" || cfg.DBName == "" {
		return cfg, fmt.Errorf("database env missing — check .env (DB_HOST, DB_USER, DB_PASS, DB_NAME)")
	}
	return cfg, nil
}

// DSN builds the postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPass, c.DBName, c.DBPort,
	)
}
