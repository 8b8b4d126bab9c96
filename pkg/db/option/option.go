// Package option provides composable query modifiers for the generic stores.
package option

import "gorm.io/gorm"

type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type queryOptionFunc func(*gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

func Limit(n int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB { return db.Limit(n) })
}

func Order(expr string) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB { return db.Order(expr) })
}

func Where(query any, args ...any) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) })
}
