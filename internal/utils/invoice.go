package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenInvoiceCode returns a receipt number like INV-20261015-3F9A1C0B7D.
func GenInvoiceCode(t time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("INV-%s-%s", t.Format("20060102"), id[:10])
}
