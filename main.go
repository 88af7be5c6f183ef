package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/api"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/auth"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/config"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/database"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/middleware"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/models"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/repository"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/services"
)

func main() {
	// Load application configuration
	config.LoadConfig()

	// Initialize database connection
	db, err := database.Init()
	if err != nil {
		log.Fatalf("FATAL: [Main] Failed to initialize database: %v", err)
	}

	runMigrations(db)

	// Optional Redis client for the quota store
	var redisClient *redis.Client
	if config.AppConfig.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Addr,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		})
		log.Printf("INFO: [Main] Redis client configured for %s.", config.AppConfig.Redis.Addr)
	}

	// Initialize repositories
	quotaRepo, err := repository.NewQuotaRepository(config.AppConfig.Quota.Store, db, redisClient)
	if err != nil {
		log.Fatalf("FATAL: [Main] Failed to initialize quota store: %v", err)
	}
	conversationRepo := repository.NewConversationRepository(db)
	log.Println("INFO: [Main] Repositories initialized.")

	// Initialize services
	quotaService := services.NewQuotaService(
		quotaRepo,
		config.AppConfig.Quota.AnonymousDailyLimit,
		config.AppConfig.Quota.DailyLimit,
	)
	conversationService := services.NewConversationService(conversationRepo, config.AppConfig.Chat.TitleMaxRunes)
	completionClient := services.NewCompletionClient(
		config.AppConfig.LLM.APIKey,
		config.AppConfig.LLM.BaseURL,
		config.AppConfig.LLM.Model,
	)
	sessionRegistry := services.NewSessionRegistry(
		config.AppConfig.Chat.RateLimitInterval,
		config.AppConfig.Chat.SessionTTL,
	)
	chatService := services.NewChatService(
		completionClient,
		quotaService,
		conversationService,
		sessionRegistry,
		config.AppConfig.Quota.WarnThreshold,
		config.AppConfig.Chat.HistoryLimit,
	)
	log.Println("INFO: [Main] Services initialized.")

	authClient := auth.NewClient(
		config.AppConfig.Auth.ProjectRef,
		config.AppConfig.Auth.APIKey,
		config.AppConfig.Auth.URL,
	)

	apiHandler := api.NewAPIHandler(chatService, conversationService)
	log.Println("INFO: [Main] API Handler initialized.")

	r := gin.New()
	r.SetTrustedProxies(nil)

	r.Use(middleware.Logger())
	r.Use(middleware.Cors())
	r.Use(middleware.Identity(authClient))
	log.Println("INFO: [Main] Middlewares registered.")

	registerRoutes(r, apiHandler)
	log.Println("INFO: [Main] Routes registered.")

	serverPort := ":" + config.AppConfig.Server.Port
	if config.AppConfig.Server.Port == "" {
		log.Println("WARN: [Main] Server port not configured, using default :8080.")
		serverPort = ":8080"
	}
	log.Printf("INFO: [Main] Starting server on port %s", serverPort)
	if err := r.Run(serverPort); err != nil {
		log.Fatalf("FATAL: [Main] Server failed to start: %v", err)
	}
}

func runMigrations(db *gorm.DB) {
	log.Println("INFO: [Main] Running database migrations...")
	err := db.AutoMigrate(
		&models.QuotaRecord{},
		&models.Conversation{},
		&models.Message{},
	)
	if err != nil {
		log.Fatalf("FATAL: [Main] Failed to auto-migrate database: %v", err)
	}
	log.Println("INFO: [Main] Database migration completed.")
}

func registerRoutes(r *gin.Engine, handler *api.APIHandler) {
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/init", handler.InitHandler)
		apiGroup.GET("/usage", handler.UsageHandler)
		apiGroup.POST("/chat", handler.ChatHandler)

		conversationGroup := apiGroup.Group("/conversations")
		{
			conversationGroup.GET("", handler.ListConversationsHandler)
			conversationGroup.GET("/:conversationID/messages", handler.ConversationMessagesHandler)
			conversationGroup.DELETE("/:conversationID", handler.DeleteConversationHandler)
		}
	}
}
