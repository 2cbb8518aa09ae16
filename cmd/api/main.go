package main

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/safar/go-commerce-api/internal/auth"
	"github.com/safar/go-commerce-api/internal/config"
	"github.com/safar/go-commerce-api/internal/database"
	"github.com/safar/go-commerce-api/internal/events"
	"github.com/safar/go-commerce-api/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Printf("Publishing order events to %v topic %s", cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}

	srv := &apiServer{
		db:        db,
		cfg:       cfg,
		tokens:    auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL),
		refresh:   auth.NewRefreshStore(redisClient, cfg.Auth.RefreshTTL),
		publisher: publisher,
		metrics:   metrics.NewServerMetrics(),
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func (s *apiServer) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/auth/register", s.instrument("register", s.handleRegister)).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.instrument("login", s.handleLogin)).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", s.instrument("refresh", s.handleRefresh)).Methods(http.MethodPost)

	r.HandleFunc("/profile", s.instrument("get_profile", s.requireAuth(s.handleGetProfile))).Methods(http.MethodGet)
	r.HandleFunc("/profile", s.instrument("update_profile", s.requireAuth(s.handleUpdateProfile))).Methods(http.MethodPut)

	r.HandleFunc("/products", s.instrument("list_products", s.handleListProducts)).Methods(http.MethodGet)
	r.HandleFunc("/products", s.instrument("create_product", s.requireRole(auth.RoleManager, s.handleCreateProduct))).Methods(http.MethodPost)
	r.HandleFunc("/products/{id}", s.instrument("get_product", s.handleGetProduct)).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", s.instrument("update_product", s.requireRole(auth.RoleManager, s.handleUpdateProduct))).Methods(http.MethodPut)
	r.HandleFunc("/products/{id}", s.instrument("delete_product", s.requireRole(auth.RoleManager, s.handleDeleteProduct))).Methods(http.MethodDelete)

	r.HandleFunc("/orders", s.instrument("list_orders", s.requireAuth(s.handleListOrders))).Methods(http.MethodGet)
	r.HandleFunc("/orders", s.instrument("create_order", s.requireAuth(s.handleCreateOrder))).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id}", s.instrument("get_order", s.requireAuth(s.handleGetOrder))).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}/status", s.instrument("update_order_status", s.requireRole(auth.RoleManager, s.handleUpdateOrderStatus))).Methods(http.MethodPatch)

	r.HandleFunc("/wishlist", s.instrument("list_wishlist", s.requireAuth(s.handleListWishlist))).Methods(http.MethodGet)
	r.HandleFunc("/wishlist", s.instrument("add_wishlist", s.requireAuth(s.handleAddWishlist))).Methods(http.MethodPost)
	r.HandleFunc("/wishlist/{id}", s.instrument("remove_wishlist", s.requireAuth(s.handleRemoveWishlist))).Methods(http.MethodDelete)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	return r
}
