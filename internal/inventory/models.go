package inventory

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when no item has the requested id.
var ErrNotFound = errors.New("item not found")

// Item is one inventory record.
type Item struct {
	ID                  int64     `json:"item_id"`
	Name                string    `json:"item_name"`
	Description         string    `json:"item_description,omitempty"`
	Manufacturer        string    `json:"manufacturer,omitempty"`
	ManufacturerContact string    `json:"manufacturer_contact,omitempty"`
	Tags                []string  `json:"tags,omitempty"`
	IsCheckedOut        bool      `json:"is_checked_out"`
	CheckOutDate        time.Time `json:"check_out_date,omitzero"`
	CheckOutPOC         string    `json:"check_out_poc,omitempty"`
	ImagePath           string    `json:"image_path,omitempty"`
	DateAdded           time.Time `json:"date_added"`
}

// Status returns the checkout triple of the item.
func (i Item) Status() CheckoutStatus {
	return CheckoutStatus{CheckedOut: i.IsCheckedOut, Date: i.CheckOutDate, POC: i.CheckOutPOC}
}

// Apply returns a copy of the item with the checkout triple replaced.
func (i Item) Apply(status CheckoutStatus) Item {
	i.IsCheckedOut = status.CheckedOut
	i.CheckOutDate = status.Date
	i.CheckOutPOC = status.POC
	return i
}

// CheckoutStatus is the checkout triple written as a unit.
type CheckoutStatus struct {
	CheckedOut bool
	Date       time.Time
	POC        string
}

// NewItem describes an item to create.
type NewItem struct {
	Name                string
	Description         string
	Manufacturer        string
	ManufacturerContact string
	Tags                []string
}

func (n NewItem) validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return errors.New("item name is required")
	}
	return nil
}

func joinTags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}
	return strings.Join(out, ",")
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
