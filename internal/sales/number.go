package sales

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document number prefixes
const (
	SalePrefix   = "INV"
	ReturnPrefix = "RET"
)

const numberAttempts = 5

func newNumber(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102150405"), suffix)
}

// uniqueNumber draws numbers until one is unused in model's table. The unique
// index still backs this up against a concurrent insert.
func uniqueNumber(tx *gorm.DB, model interface{}, prefix string, now time.Time) (string, error) {
	for i := 0; i < numberAttempts; i++ {
		n := newNumber(prefix, now)
		var count int64
		if err := tx.Model(model).Where("number = ?", n).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return n, nil
		}
	}
	return "", ErrNumberExhausted
}
