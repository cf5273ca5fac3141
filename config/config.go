package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port string
	Env  string

	RedisAddr     string
	RedisPassword string

	MaxJobsStored          int
	MaxJobAgeHours         int
	CleanupIntervalMinutes int

	RenderConcurrency    int
	RenderTimeoutMinutes int
	ServeURL             string
	CompositionID        string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	VoicesDir    string
	ClientDir    string
	BuildDir     string
	ImageBaseURL string

	MaxUploadSize  int64
	AllowedOrigins []string
}

func Load() *Config {
	port := getEnv("PORT", "8000")

	return &Config{
		Port: port,
		Env:  getEnv("ENV", "development"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		MaxJobsStored:          getEnvAsInt("MAX_JOBS_STORED", 50),
		MaxJobAgeHours:         getEnvAsInt("MAX_JOB_AGE_HOURS", 24),
		CleanupIntervalMinutes: getEnvAsInt("CLEANUP_INTERVAL_MINUTES", 60),

		RenderConcurrency:    getEnvAsInt("RENDER_CONCURRENCY", 4),
		RenderTimeoutMinutes: getEnvAsInt("RENDER_TIMEOUT_MINUTES", 0),
		ServeURL:             getEnv("SERVE_URL", "http://localhost:"+port),
		CompositionID:        getEnv("COMPOSITION_ID", "MainVideo"),

		CloudinaryCloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),

		VoicesDir:    getEnv("VOICES_DIR", "voices"),
		ClientDir:    getEnv("CLIENT_DIR", "client"),
		BuildDir:     getEnv("BUILD_DIR", "build"),
		ImageBaseURL: getEnv("IMAGE_BASE_URL", "https://media.autocheckapp.pe/1M4G3QU1Z/"),

		MaxUploadSize: getEnvAsInt64("MAX_UPLOAD_SIZE", 100*1024*1024),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{
			"http://127.0.0.1:5500",
			"http://localhost:5500",
			"http://localhost:8000",
			"http://localhost:3000",
		}),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
