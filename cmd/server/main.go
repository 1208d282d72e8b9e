// Package main starts the Writique API server. Its only job is reading
// configuration from the environment and handing it to internal/server.
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/writique/writique/internal/media"
	"github.com/writique/writique/internal/server"
)

const defaultPostImageURL = "https://images.unsplash.com/photo-1674027444485-cec3da58eef4?q=80&w=1932&auto=format&fit=crop&ixlib=rb-4.0.3&ixid=M3wxMjA3fDB8MHxwaG90by1wYWdlfHx8fGVufDB8fHx8fA%3D%3D"

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	port := 8080
	if raw := os.Getenv("PORT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", raw))
			os.Exit(1)
		}
		port = n
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "data/writique.db"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// The identity secrets have no defaults on purpose: a server that can't
	// verify tokens or webhook signatures must not come up half-open.
	secretKey := mustEnv(logger, "IDENTITY_SECRET_KEY")
	webhookSecret := mustEnv(logger, "IDENTITY_WEBHOOK_SECRET")
	apiURL := mustEnv(logger, "IDENTITY_API_URL")

	var bootstrapAdmins []string
	for _, id := range strings.Split(os.Getenv("BOOTSTRAP_ADMIN_IDS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			bootstrapAdmins = append(bootstrapAdmins, id)
		}
	}

	maxUploadMB := int64(10)
	if raw := os.Getenv("MAX_UPLOAD_MB"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			logger.Error("invalid MAX_UPLOAD_MB value", slog.String("value", raw))
			os.Exit(1)
		}
		maxUploadMB = n
	}

	defaultImage := os.Getenv("DEFAULT_POST_IMAGE_URL")
	if defaultImage == "" {
		defaultImage = defaultPostImageURL
	}

	cfg := server.Config{
		Port:                port,
		DBPath:              dbPath,
		IdentitySecretKey:   secretKey,
		IdentityAPIURL:      apiURL,
		WebhookSecret:       webhookSecret,
		BootstrapAdminIDs:   bootstrapAdmins,
		MaxUploadBytes:      maxUploadMB << 20,
		DefaultPostImageURL: defaultImage,
		Media:               mediaConfig(),
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// mediaConfig reads the object-store settings. Returns nil when the required
// values are absent; the server then runs with uploads disabled.
func mediaConfig() *media.S3Config {
	cfg := &media.S3Config{
		Endpoint:        os.Getenv("MEDIA_S3_ENDPOINT"),
		Region:          os.Getenv("MEDIA_S3_REGION"),
		AccessKeyID:     os.Getenv("MEDIA_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("MEDIA_S3_SECRET_ACCESS_KEY"),
		Bucket:          os.Getenv("MEDIA_S3_BUCKET"),
		PublicBaseURL:   os.Getenv("MEDIA_PUBLIC_BASE_URL"),
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" || cfg.PublicBaseURL == "" {
		return nil
	}
	return cfg
}

func mustEnv(logger *slog.Logger, name string) string {
	v := os.Getenv(name)
	if v == "" {
		logger.Error("required environment variable not set", slog.String("name", name))
		os.Exit(1)
	}
	return v
}
