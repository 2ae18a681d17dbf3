package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrStaleWrite means the row changed since it was read.
	ErrStaleWrite     = errors.New("stale write: record was modified concurrently")
	// ErrInvoiceSettled means a conditional payment found the invoice already paid or void.
	ErrInvoiceSettled = errors.New("invoice is no longer unpaid")
	ErrNotFound       = gorm.ErrRecordNotFound
	ErrDuplicate      = gorm.ErrDuplicatedKey
)

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s literally anywhere in the column.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
