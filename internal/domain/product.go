package domain

import (
	"strings"
	"unicode"
)

// Supported supermarkets. Catalog rows carry one of these values.
const (
	StoreTesco      = "tesco"
	StoreSainsburys = "sainsburys"
)

// Stores lists the retailers the matcher compares, in response order.
var Stores = []string{StoreTesco, StoreSainsburys}

// IsKnownStore reports whether store is one of the supported supermarkets
func IsKnownStore(store string) bool {
	return store == StoreTesco || store == StoreSainsburys
}

// StoreKey maps a retailer display name such as "Sainsbury's" or "Tesco"
// to its store key: lower-cased, without apostrophes or spaces. The result
// still needs an IsKnownStore check.
func StoreKey(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\'', '’', '‘', ' ':
			return -1
		}
		return unicode.ToLower(r)
	}, strings.TrimSpace(name))
}

// RawProduct is a scraped catalog entry. Catalogs are append-only and
// read-only to the matcher; duplicates are possible.
type RawProduct struct {
	ID           int64  `json:"id,omitempty"`
	Supermarket  string `json:"supermarket" validate:"required,oneof=tesco sainsburys"`
	Name         string `json:"name" validate:"required"`
	Price        string `json:"price" validate:"required"`
	PricePerUnit string `json:"pricePerUnit,omitempty"`
	ImageURL     string `json:"imageUrl" validate:"required"`
	Category     string `json:"category" validate:"required"`
}

// StoreProduct is one retailer's side of a matched pair as returned to clients
type StoreProduct struct {
	Name         string   `json:"name" validate:"required"`
	Price        string   `json:"price" validate:"required"`
	Quantity     *float64 `json:"quantity"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	PricePerUnit string   `json:"pricePerUnit,omitempty"`
}

// DuplicateGroup describes catalog rows sharing the same name
type DuplicateGroup struct {
	Name       string   `json:"name"`
	Count      int      `json:"count"`
	Categories []string `json:"categories"`
}
