// Package scanning is the optional fallback for ticket documents no
// provider pattern recognizes: a vision model reads the document and the
// result becomes a pending expense the user must confirm.
package scanning

// TicketData is what a vision model could read off a travel document.
// Date is ISO 8601 or empty when the model found none; the caller decides
// the fallback date.
type TicketData struct {
	Title  string  `json:"title"`
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

// Scanner analyzes a ticket document with a vision model.
type Scanner interface {
	// ScanTicket extracts ticket metadata from an image or PDF.
	ScanTicket(imageData []byte, contentType string) (*TicketData, error)
	// Close releases the scanner's resources.
	Close() error
}
