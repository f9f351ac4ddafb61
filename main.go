package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	qhttp "readmit/http"
	"readmit/logging"
	"readmit/monitoring"
	"readmit/scoring"
	"readmit/store"
)

type Config struct {
	Artifact struct {
		Path            string `yaml:"path"`
		WaitForArtifact bool   `yaml:"wait_for_artifact"`
	} `yaml:"artifact"`
	Http struct {
		Port             int           `yaml:"port"`
		Timeout          time.Duration `yaml:"timeout"`
		MaxRequestBodyMB int64         `yaml:"max_request_body_mb"`
		AllowedOrigins   []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log   logging.Config `yaml:"log"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
	Audit struct {
		Enable        bool          `yaml:"enable"`
		Path          string        `yaml:"path"`
		BatchSize     int           `yaml:"batch_size"`
		FlushInterval time.Duration `yaml:"flush_interval"`
	} `yaml:"audit"`
	Monitor struct {
		PushInterval time.Duration `yaml:"push_interval"`
	} `yaml:"monitor"`
}

func main() {
	config, err := loadConfig(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(config.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	collector := monitoring.NewCollector()
	service := scoring.NewService(logger, collector, config.Cache.Size)

	var audit *store.AuditStore
	if config.Audit.Enable {
		audit, err = store.NewAuditStore(config.Audit.Path, config.Audit.BatchSize, config.Audit.FlushInterval, logger)
		if err != nil {
			logger.Fatal("failed to open audit store", zap.Error(err))
		}
		defer audit.Close()
	}

	hub := monitoring.NewHub(collector, logger, config.Monitor.PushInterval)
	go hub.Run()
	defer hub.Stop()

	// Load in the background so health answers not-ready while loading
	// instead of refusing connections.
	loadCtx, cancelLoad := context.WithCancel(context.Background())
	defer cancelLoad()
	go func() {
		var err error
		if config.Artifact.WaitForArtifact {
			err = service.WaitAndLoad(loadCtx, config.Artifact.Path)
		} else {
			err = service.Load(config.Artifact.Path)
		}
		if err != nil {
			logger.Error("artifact load failed, service stays unavailable", zap.Error(err))
		}
	}()

	handlers := qhttp.NewHandlers(service, collector, audit, hub, logger)
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           config.Http.Port,
		Timeout:        config.Http.Timeout,
		MaxRequestBody: config.Http.MaxRequestBodyMB << 20,
		AllowedOrigins: config.Http.AllowedOrigins,
	}, handlers, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	cancelLoad()
	if err := server.Stop(); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}

func configPath() string {
	if path := os.Getenv("READMIT_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
