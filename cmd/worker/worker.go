package main

import (
	"context"
	"log"
	"time"

	"pdf-chat-saas/internal/ai"
	"pdf-chat-saas/internal/config"
	"pdf-chat-saas/internal/logger"
	"pdf-chat-saas/internal/queue"
	"pdf-chat-saas/internal/telemetry"
	"pdf-chat-saas/internal/vectorstore"
	"pdf-chat-saas/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Gemini client
	aiClient, err := ai.NewClient(cfg)
	if err != nil {
		log.Fatal("Failed to initialize AI client:", err)
	}
	defer aiClient.Close()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	fileStore := services.NewMongoFileStore(db)
	vectors := vectorstore.NewMongoStore(db)
	ingestion := services.NewIngestionService(cfg, fileStore, vectors, aiClient).WithMetrics(metrics)

	// Redis options for Asynq
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task failed: %s, error: %v", task.Type(), err)
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(ingestion)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestFile, processor.HandleIngest)

	log.Println("Starting ingestion worker...")
	log.Printf("   Redis: %s", redisOpt.Addr)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
