package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/telhawk-systems/ttl-archiver/internal/app"
	"github.com/telhawk-systems/ttl-archiver/internal/config"
	"github.com/telhawk-systems/ttl-archiver/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("ARCHIVER_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("ttl-archiver"))
	logging.SetDefault(logger)

	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("initialize archiver: %v", err)
	}
	defer a.Close()

	logger.Info("TTL archiver ready",
		logging.Table(cfg.Source.TableName),
		logging.Bucket(a.Writer.Location()),
	)

	lambda.Start(a.Handler.Handle)
}
