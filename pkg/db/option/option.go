package option

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a gorm query before execution.
type QueryOption func(*gorm.DB) *gorm.DB

// Operator for ApplyOperator conditions.
type Operator string

const (
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	NE  Operator = "<>"
)

// LockingUpdate is a gorm scope enabling SELECT ... FOR UPDATE on every query
// in the transaction it is applied to.
func LockingUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func WithLockingUpdate() QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return LockingUpdate(tx)
	}
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

func WithSortBy(s QuerySortBy) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		col := s.SortBy
		if col == "" || (s.Allow != nil && !s.Allow[col]) {
			col = "created_at"
		}
		dir := "ASC"
		if s.OrderBy == "desc" || s.OrderBy == "DESC" {
			dir = "DESC"
		}
		return tx.Order(fmt.Sprintf("%s %s", col, dir))
	}
}

type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

func ApplyOperator(c Condition) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
	}
}

func WithLimit(n int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(n)
	}
}
