package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/safar/go-commerce-api/internal/database"
	"github.com/safar/go-commerce-api/internal/models"
)

// AddToWishlist links a product to a user's wishlist. The pair is unique; a
// repeated add returns the existing row with created=false, mirroring
// get-or-create semantics.
func AddToWishlist(ctx context.Context, db *sql.DB, userID int64, productID uuid.UUID) (*models.WishlistItem, bool, error) {
	// Inactive products can still be wishlisted; only nonexistent ones fail.
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	if err != nil {
		return nil, false, fmt.Errorf("check product exists: %w", err)
	}
	if !exists {
		return nil, false, database.ErrProductNotFound
	}

	item := &models.WishlistItem{}
	err = db.QueryRowContext(ctx,
		`INSERT INTO wishlist_items (id, user_id, product_id, added_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id, product_id) DO NOTHING
		 RETURNING id, user_id, product_id, added_at`,
		uuid.New(), userID, productID).Scan(
		&item.ID,
		&item.UserID,
		&item.ProductID,
		&item.AddedAt,
	)
	if err == nil {
		return item, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("add to wishlist: %w", err)
	}

	// Conflict: the row already exists, fetch it.
	err = db.QueryRowContext(ctx,
		`SELECT id, user_id, product_id, added_at
		 FROM wishlist_items
		 WHERE user_id = $1 AND product_id = $2`,
		userID, productID).Scan(
		&item.ID,
		&item.UserID,
		&item.ProductID,
		&item.AddedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("get wishlist item: %w", err)
	}

	return item, false, nil
}

func ListWishlist(ctx context.Context, db *sql.DB, userID int64) ([]models.WishlistItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, product_id, added_at
		 FROM wishlist_items
		 WHERE user_id = $1
		 ORDER BY added_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list wishlist: %w", err)
	}
	defer rows.Close()

	var items []models.WishlistItem
	for rows.Next() {
		var item models.WishlistItem
		err := rows.Scan(&item.ID, &item.UserID, &item.ProductID, &item.AddedAt)
		if err != nil {
			return nil, fmt.Errorf("scan wishlist item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// RemoveFromWishlist deletes a wishlist row owned by the user. Rows belonging
// to other users read as absent.
func RemoveFromWishlist(ctx context.Context, db *sql.DB, userID int64, id uuid.UUID) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM wishlist_items WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return fmt.Errorf("remove from wishlist: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrWishlistNotFound
	}

	return nil
}
