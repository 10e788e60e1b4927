package model

// ChangeType classifies a detected listing change.
type ChangeType string

const (
	ChangeNew     ChangeType = "new"
	ChangeRestock ChangeType = "restock"
	ChangeSoldOut ChangeType = "soldout"
	ChangePrice   ChangeType = "price"
	ChangeStatus  ChangeType = "status"
)

// Change is one detected difference between a freshly scraped listing
// and its stored state. OldValue/NewValue are stringified so that
// status and price changes share one shape.
type Change struct {
	Type     ChangeType
	Listing  Listing
	OldValue string
	NewValue string
}

// Notifiable reports whether this change type produces subscriber
// alerts. Generic status churn (e.g. preorder -> available) is logged
// to history but never dispatched.
func (c Change) Notifiable() bool {
	switch c.Type {
	case ChangeNew, ChangeRestock, ChangeSoldOut, ChangePrice:
		return true
	}
	return false
}
