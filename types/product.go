package types

import "time"

// Product represents an item in the catalog.
type Product struct {
	// ID is the unique identifier of the product.
	ID int `json:"id" db:"id"`

	// Name is the human-readable product name.
	Name string `json:"name" db:"name"`

	// Description contains the full marketing copy for the product.
	Description string `json:"description" db:"description"`

	// Category is the exact catalog category the product belongs to
	// (e.g. "Men", "Women", "Accessories").
	Category string `json:"category" db:"category"`

	// Brand is the manufacturer or label name.
	Brand string `json:"brand" db:"brand"`

	// Price is the unit price in the shop currency.
	Price float64 `json:"price" db:"price"`

	// Stock is the number of units currently available.
	Stock int `json:"stock" db:"stock"`

	// ImageKey references the product image in object storage. Empty when
	// no image has been uploaded.
	ImageKey string `json:"image_key,omitempty" db:"image_key"`

	// IsActive marks whether the product appears in listings. Deleted
	// products are deactivated rather than removed.
	IsActive bool `json:"is_active" db:"is_active"`

	// CreatedAt is the timestamp at which the product was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the product.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
