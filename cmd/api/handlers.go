package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/safar/go-commerce-api/internal/auth"
	"github.com/safar/go-commerce-api/internal/config"
	"github.com/safar/go-commerce-api/internal/events"
	"github.com/safar/go-commerce-api/internal/metrics"
	"github.com/safar/go-commerce-api/internal/store"
	"github.com/shopspring/decimal"
)

type apiServer struct {
	db        *sql.DB
	cfg       *config.Config
	tokens    *auth.TokenIssuer
	refresh   *auth.RefreshStore
	publisher events.Publisher
	metrics   *metrics.ServerMetrics
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (s *apiServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		PhoneNumber string `json:"phone_number"`
		Address     string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := store.RegisterUser(r.Context(), s.db, store.RegisterUserRequest{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		BcryptCost:  s.cfg.Auth.BcryptCost,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}

	access, err := s.tokens.IssueAccess(user.ID, user.Username, user.Roles)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	refresh, err := s.refresh.Issue(r.Context(), user.ID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User registered successfully",
		"user":    user,
		"access":  access,
		"refresh": refresh,
	})
}

func (s *apiServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := store.GetUserByUsername(r.Context(), s.db, req.Username)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	access, err := s.tokens.IssueAccess(user.ID, user.Username, user.Roles)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	refresh, err := s.refresh.Issue(r.Context(), user.ID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"access":  access,
		"refresh": refresh,
		"roles":   user.Roles,
	})
}

func (s *apiServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID, err := s.refresh.Redeem(r.Context(), req.Refresh)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	user, err := store.GetUser(r.Context(), s.db, userID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	access, err := s.tokens.IssueAccess(user.ID, user.Username, user.Roles)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	refresh, err := s.refresh.Issue(r.Context(), user.ID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tokenPair{Access: access, Refresh: refresh})
}

func (s *apiServer) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())

	user, err := store.GetUser(r.Context(), s.db, actor.UserID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

func (s *apiServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())

	var req struct {
		Email       string `json:"email"`
		PhoneNumber string `json:"phone_number"`
		Address     string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := store.UpdateProfile(r.Context(), s.db, actor.UserID, req.Email, req.PhoneNumber, req.Address)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

func (s *apiServer) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := paginationParams(r)

	result, err := store.ListProducts(r.Context(), s.db, page, pageSize)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SKU         string `json:"sku"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Price       string `json:"price"`
		Stock       int    `json:"stock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid price")
		return
	}

	product, err := store.CreateProduct(r.Context(), s.db, req.SKU, req.Name, req.Description, price, req.Stock)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func (s *apiServer) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	product, err := store.GetProduct(r.Context(), s.db, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (s *apiServer) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Price       string `json:"price"`
		Stock       int    `json:"stock"`
		IsActive    bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid price")
		return
	}

	product, err := store.UpdateProduct(r.Context(), s.db, id, req.Name, req.Description, price, req.Stock, req.IsActive)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (s *apiServer) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	if err := store.DeleteProduct(r.Context(), s.db, id); err != nil {
		respondStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleListOrders(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())

	cursor := r.URL.Query().Get("cursor")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var result *store.CursorPage
	var err error
	if auth.Authorize(actor, auth.RoleManager) {
		result, err = store.ListAllOrders(r.Context(), s.db, cursor, limit)
	} else {
		result, err = store.ListOrders(r.Context(), s.db, actor.UserID, cursor, limit)
	}
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())

	var req struct {
		Items []struct {
			ProductID string `json:"product_id"`
			Quantity  int    `json:"quantity"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var items []store.OrderItemRequest
	for _, item := range req.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid product ID")
			return
		}
		items = append(items, store.OrderItemRequest{
			ProductID: productID,
			Quantity:  item.Quantity,
		})
	}

	order, err := store.CreateOrder(r.Context(), s.db, store.CreateOrderRequest{
		UserID: actor.UserID,
		Items:  items,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}

	if err := s.publisher.PublishOrderPlaced(r.Context(), events.OrderPlaced{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		ItemCount:   len(order.Items),
		PlacedAt:    order.CreatedAt,
	}); err != nil {
		log.Printf("Publish order placed event for %s: %v", order.ID, err)
	}

	respondJSON(w, http.StatusCreated, order)
}

func (s *apiServer) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := store.GetOrder(r.Context(), s.db, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	if !auth.CanAccessOrder(actor, order) {
		respondError(w, http.StatusForbidden, "permission denied")
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *apiServer) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := store.UpdateOrderStatus(r.Context(), s.db, id, req.Status)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *apiServer) handleListWishlist(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())

	items, err := store.ListWishlist(r.Context(), s.db, actor.UserID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, items)
}

func (s *apiServer) handleAddWishlist(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())

	var req struct {
		ProductID string `json:"product_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "Product ID is required")
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	item, created, err := store.AddToWishlist(r.Context(), s.db, actor.UserID, productID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, item)
}

func (s *apiServer) handleRemoveWishlist(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid wishlist item ID")
		return
	}

	if err := store.RemoveFromWishlist(r.Context(), s.db, actor.UserID, id); err != nil {
		respondStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func paginationParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
