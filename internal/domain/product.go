package domain

// CurrencyNIS is the only currency the catalog site prices in.
const CurrencyNIS = "NIS"

type Specification struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ProductRecord is the data extracted from a single product page.
type ProductRecord struct {
	ProductNumber      string          `json:"productNumber"` // Digits from the URL path, empty when absent
	URL                string          `json:"url"`
	Title              string          `json:"shortDescription"`
	Brand              string          `json:"brand"`
	Model              string          `json:"model"`
	SKUNumber          string          `json:"skuNumber"`
	Price              string          `json:"price"`    // Cleaned numeric string
	OldPrice           string          `json:"oldPrice"` // Cleaned numeric string
	Images             []string        `json:"images"`
	MoreImages         []string        `json:"moreImages"`
	Videos             []string        `json:"videos"`
	Specifications     []Specification `json:"specifications"` // Brand, model and SKU rows excluded
	LogoURL            string          `json:"logoUrl"`
	Description        string          `json:"description"`
	Information        string          `json:"information"`
	TermsAndConditions string          `json:"termsAndConditions"`
	Currency           string          `json:"currency"`
}

// HasProductNumber reports whether the record can be stored.
func (p *ProductRecord) HasProductNumber() bool {
	return p != nil && p.ProductNumber != ""
}
