package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/psds-microservice/support-service/internal/chat"
	"github.com/psds-microservice/support-service/internal/config"
	"github.com/psds-microservice/support-service/internal/database"
	"github.com/psds-microservice/support-service/internal/handler"
	"github.com/psds-microservice/support-service/internal/kafka"
	"github.com/psds-microservice/support-service/internal/push"
	"github.com/psds-microservice/support-service/internal/router"
	"github.com/psds-microservice/support-service/internal/searchindex"
	"github.com/psds-microservice/support-service/internal/service"
)

// API приложение: HTTP-сервер с REST и вебсокет-эндпоинтами (режим api).
type API struct {
	cfg      *config.Config
	httpSrv  *http.Server
	hub      *push.Hub
	producer *kafka.Producer
}

// NewAPI создаёт приложение для режима api.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	hub := push.NewHub()
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicSupport)
	searchClient := searchindex.NewClient(cfg.SearchServiceURL)

	ticketSvc := service.NewTicketService(db, producer, searchClient)
	messageSvc := service.NewMessageService(db, ticketSvc, hub, producer)
	resolver := chat.NewResolver(ticketSvc)

	ticketHandler := handler.NewTicketHandler(ticketSvc, resolver)
	messageHandler := handler.NewMessageHandler(ticketSvc, messageSvc)
	streamHandler := handler.NewStreamHandler(ticketSvc, messageSvc, push.Feed{Hub: hub}, hub)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.New(ticketHandler, messageHandler, streamHandler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // вебсокет-стримы живут дольше любого таймаута записи
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:      cfg,
		httpSrv:  httpSrv,
		hub:      hub,
		producer: producer,
	}, nil
}

// Run запускает HTTP-сервер, блокируется до отмены ctx.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.httpSrv.Addr)
	log.Printf("  Swagger UI:    %s/swagger", base)
	log.Printf("  Swagger spec:  %s/swagger/openapi.json", base)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  API v1:        %s/api/v1/", base)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()
	// Сначала рвём подписки: стримы завершаются кадром going-away,
	// затем гасим сам сервер.
	a.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := a.producer.Close(); err != nil {
		log.Printf("kafka: close: %v", err)
	}
	return nil
}
