package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"library/internal/app"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("Starting PostgreSQL testcontainer...")

	// Start PostgreSQL container
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("library"),
		postgres.WithUsername("library"),
		postgres.WithPassword("devpassword"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}
	defer terminate(postgresContainer, "PostgreSQL")

	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
	}
	log.Printf("PostgreSQL started at %s", dsn)

	// Set environment variables for the application
	os.Setenv("STORAGE_BACKEND", "postgres")
	os.Setenv("DATABASE_URL", dsn)
	os.Setenv("USE_MOCK_DB", "false")

	// The ClickHouse journal is opt-in because its image is large
	if os.Getenv("DEV_CLICKHOUSE") == "true" {
		log.Println("Starting ClickHouse testcontainer...")

		clickhouseContainer, err := clickhouse.Run(ctx,
			"clickhouse/clickhouse-server:latest",
			clickhouse.WithUsername("default"),
			clickhouse.WithPassword("devpassword"),
			clickhouse.WithDatabase("default"),
		)
		if err != nil {
			return fmt.Errorf("failed to start ClickHouse container: %w", err)
		}
		defer terminate(clickhouseContainer, "ClickHouse")

		host, err := clickhouseContainer.Host(ctx)
		if err != nil {
			return fmt.Errorf("failed to get container host: %w", err)
		}
		port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
		if err != nil {
			return fmt.Errorf("failed to get container port: %w", err)
		}
		log.Printf("ClickHouse started at %s:%s", host, port.Port())

		os.Setenv("CLICKHOUSE_HOST", host)
		os.Setenv("CLICKHOUSE_PORT", port.Port())
		os.Setenv("CLICKHOUSE_DATABASE", "default")
		os.Setenv("CLICKHOUSE_USER", "default")
		os.Setenv("CLICKHOUSE_PASSWORD", "devpassword")
		os.Setenv("CLICKHOUSE_USE_TLS", "false")
	}

	// Set PORT for HTTP server if not already set
	if os.Getenv("PORT") == "" {
		os.Setenv("PORT", "8080")
	}
	if os.Getenv("LOG_FORMAT") == "" {
		os.Setenv("LOG_FORMAT", "console")
	}
	if os.Getenv("LOG_LEVEL") == "" {
		os.Setenv("LOG_LEVEL", "debug")
	}

	log.Println("Starting application with PostgreSQL backend...")
	fmt.Println()

	// Create and initialize application
	application, err := app.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(ctx)
}

func terminate(container testcontainers.Container, name string) {
	log.Printf("Stopping %s container...", name)
	if err := container.Terminate(context.Background()); err != nil {
		log.Printf("Failed to terminate %s container: %v", name, err)
	}
}
