package domain

// Customer is a single customer record. Records are passed by value and are
// never modified by the query pipeline.
type Customer struct {
	FirstName         string `json:"firstName" yaml:"first_name" bson:"firstName"`
	LastName          string `json:"lastName" yaml:"last_name" bson:"lastName"`
	TotalOrdersPlaced int    `json:"totalOrdersPlaced" yaml:"total_orders_placed" bson:"totalOrdersPlaced"`
}

// FullName returns "FirstName LastName".
func (c Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

// Criteria is a set of optional search conditions. A nil pointer or a zero
// count means the condition is absent and contributes no filter term.
type Criteria struct {
	FirstName     *string `json:"firstName,omitempty"`
	LastName      *string `json:"lastName,omitempty"`
	MinOrderCount int     `json:"minOrderCount,omitempty"` // TotalOrdersPlaced > MinOrderCount
	MaxOrderCount int     `json:"maxOrderCount,omitempty"` // TotalOrdersPlaced < MaxOrderCount
}
