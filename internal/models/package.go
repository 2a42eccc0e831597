package models

import (
	"fmt"
	"strings"
)

// CreditPackage is a purchasable bundle of credits.
type CreditPackage struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Credits int64   `json:"credits"`
	Price   float64 `json:"price"`
}

// Label renders the package the way the purchase dialog lists it.
func (p CreditPackage) Label() string {
	return fmt.Sprintf("₹%.0f - %d credits (%s)", p.Price, p.Credits, p.Name)
}

// DefaultPackages lists the credit bundles on sale.
func DefaultPackages() []CreditPackage {
	return []CreditPackage{
		{ID: "starter", Name: "Starter", Credits: 1000, Price: 10},
		{ID: "pro", Name: "Pro", Credits: 7000, Price: 49},
		{ID: "premium", Name: "Premium", Credits: 13000, Price: 99},
	}
}

// FindPackage looks up a package by ID or name, case-insensitively.
func FindPackage(idOrName string) (CreditPackage, bool) {
	for _, p := range DefaultPackages() {
		if strings.EqualFold(p.ID, idOrName) || strings.EqualFold(p.Name, idOrName) {
			return p, true
		}
	}
	return CreditPackage{}, false
}
