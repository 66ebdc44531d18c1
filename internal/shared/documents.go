package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentType enumerates the workflow document families.
type DocumentType string

const (
	DocMaterialRequest DocumentType = "material_request"
	DocChallan         DocumentType = "challan"
	DocBill            DocumentType = "bill"
	DocInvoice         DocumentType = "invoice"
)

// Parties names the principals that own a document. Unused counterparties stay uuid.Nil.
type Parties struct {
	Company  uuid.UUID
	Supplier uuid.UUID
	Customer uuid.UUID
}

// ParseDocumentID parses a document id. Malformed ids cannot name a stored document and
// report ErrNotFound.
func ParseDocumentID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrNotFound, raw)
	}
	return id, nil
}

// GenerateNumber builds a document number from prefix and the current unix time in
// nanoseconds.
func GenerateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
