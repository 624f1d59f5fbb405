package directory

import (
	"strconv"
	"strings"
)

// Product is one row of a supplier's product table. Price keeps the
// raw input value; identity is positional within the supplier's list.
type Product struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

// DisplayPrice renders the price with two decimal places. Values that
// do not parse are shown as entered.
func (p Product) DisplayPrice() string {
	f, err := strconv.ParseFloat(strings.TrimSpace(p.Price), 64)
	if err != nil {
		return p.Price
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// Supplier is a directory record. The id is assigned by the store on
// create and stable thereafter; the struct body is what gets stored.
type Supplier struct {
	ID       string    `json:"-"`
	Name     string    `json:"name"`
	Origin   string    `json:"origin"`
	Category string    `json:"category"`
	Desc     string    `json:"desc"`
	Products []Product `json:"products"`
}

// Draft carries the supplier form fields for a create or edit.
type Draft struct {
	Name     string `json:"name"`
	Origin   string `json:"origin"`
	Category string `json:"category"`
	Desc     string `json:"desc"`
}
