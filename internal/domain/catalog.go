package domain

// Category is one catalog category of a scrape task.
type Category struct {
	Slug string `json:"categorySlug"` // Directory name of the category output
	Link string `json:"categoryLink"` // Listing URL, page 1
	Name string `json:"categoryName"` // Display name (Hebrew)
}

type CatalogPage struct {
	PageNumber int      `json:"page_number"` // 1-based listing page
	URL        string   `json:"url"`         // URL the page was fetched from
	Links      []string `json:"links"`       // Normalized product links in document order
}
