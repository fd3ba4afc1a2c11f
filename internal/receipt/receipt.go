package receipt

import "time"

// Receipt represents a saved receipt
type Receipt struct {
	ID          string    `json:"id"`
	ShopName    string    `json:"shopName"`
	TotalAmount float64   `json:"totalAmount"` // full precision, rendered with 2 decimals
	Date        time.Time `json:"date"`        // set when the receipt is saved
	ImageURI    string    `json:"imageUri"`    // not owned by the store
}

// List is an ordered receipt list, newest first.
type List []Receipt

// Find returns the receipt with the given ID
func (l List) Find(id string) (Receipt, bool) {
	for _, r := range l {
		if r.ID == id {
			return r, true
		}
	}
	return Receipt{}, false
}

func (l List) clone() List {
	out := make(List, len(l))
	copy(out, l)
	return out
}
