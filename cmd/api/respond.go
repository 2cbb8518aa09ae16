package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/safar/go-commerce-api/internal/auth"
	"github.com/safar/go-commerce-api/internal/database"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps the error taxonomy to HTTP statuses: validation 400,
// not found 404, permission 403, unauthenticated 401, everything else 500.
func respondStoreError(w http.ResponseWriter, err error) {
	var stockErr *database.StockError
	if errors.As(err, &stockErr) {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":      "insufficient stock",
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})
		return
	}

	switch {
	case errors.Is(err, database.ErrValidation),
		errors.Is(err, database.ErrEmptyOrder),
		errors.Is(err, database.ErrInvalidQuantity),
		errors.Is(err, database.ErrInvalidStatus),
		errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrProductInUse),
		errors.Is(err, database.ErrDuplicateUser):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrWishlistNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, database.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrRefreshNotFound):
		respondError(w, http.StatusUnauthorized, err.Error())
	default:
		log.Printf("Internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
