package purchases

import (
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// receiptPrefix marks parent-purchase receipt codes.
const receiptPrefix = "po_"

// NewReceipt returns a short, human-pasteable receipt code.
func NewReceipt() string {
	id := uuid.New()
	return receiptPrefix + base58.Encode(id[:])
}
