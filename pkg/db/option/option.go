package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	EQ  Operator = "="
	GTE Operator = ">="
	LTE Operator = "<="
	GT  Operator = ">"
	LT  Operator = "<"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator filters on a single column comparison.
func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(cond.Field)
		if field == "" {
			return db
		}
		op := cond.Operator
		if op == "" {
			op = EQ
		}
		return db.Where(fmt.Sprintf("%s %s ?", field, op), cond.Value)
	})
}

type QuerySortBy struct {
	Field string
	Desc  bool
	Allow map[string]bool
}

// WithSortBy orders results; fields outside Allow fall back to id.
func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(sort.Field)
		if field == "" || !sort.Allow[field] {
			field = "id"
		}
		if sort.Desc {
			return db.Order(field + " DESC")
		}
		return db.Order(field + " ASC")
	})
}

func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}
