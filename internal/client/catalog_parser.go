package client

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"payngo/scraper/internal/apperrors"
	"payngo/scraper/internal/domain"
	"payngo/scraper/internal/normalize"
)

const (
	productLinkSelector = "a.product-item-link[href]"

	titleSelector    = "h1.page-title .base"
	priceSelector    = "div.final-price span.price"
	oldPriceSelector = "div.old-price span.price"
	gallerySelector  = `div.relative[aria-live="polite"]`
	videoSelector    = `div[x-show="activeTab === 'description'"]`
	specRowSelector  = "div#product-attributes table.additional-attributes tr"
	skuSelector      = "div.product-sku"
	logoSelector     = "div.m-logo img"

	skuLabel   = "מק"
	modelLabel = "דגם"
	brandLabel = "מותג"
)

var (
	descriptionTab = regexp.MustCompile(`activeTab\s*===\s*'description'`)
	informationTab = regexp.MustCompile(`activeTab\s*===\s*'product\.info\.tab_important_information'`)
	conditionsTab  = regexp.MustCompile(`activeTab\s*===\s*'product\.info\.tab_additional_conditions'`)

	specKeySuffix = regexp.MustCompile(`[:\x{FE55}\x{FF1A}]+\s*$`)
	modelPrefix   = regexp.MustCompile(`^` + modelLabel + `[\s:]*`)

	// Specification rows that are promoted to their own fields.
	excludedSpecPrefixes = []string{`מק"ט`, modelLabel, brandLabel}

	descriptionPanel = []finder{
		byAttrPattern("div", "x-show", descriptionTab),
		bySelector("div#product-description"),
		bySelector("div.product.attribute.overview .value"),
		bySelector("div.prose"),
	}
)

type catalogParser struct {
	normalizer normalize.Normalizer
}

func newCatalogParser(domainURL string) *catalogParser {
	return &catalogParser{
		normalizer: normalize.New(domainURL),
	}
}

func parseDocument(op, url, html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, apperrors.NewParse(op, url, err)
	}
	return doc, nil
}

// ParseProductLinks extracts the product links of a category listing page, normalized against pageURL and
// deduplicated within the page.
func (p *catalogParser) ParseProductLinks(html, pageURL string, pageNumber int) (*domain.CatalogPage, error) {
	doc, err := parseDocument("parse listing", pageURL, html)
	if err != nil {
		return nil, err
	}

	page := &domain.CatalogPage{
		PageNumber: pageNumber,
		URL:        pageURL,
		Links:      make([]string, 0),
	}

	seen := make(map[string]struct{})
	doc.Find(productLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			return
		}

		link := normalize.NormalizeLink(pageURL, href)
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		page.Links = append(page.Links, link)
	})

	log.Debugf("Parsed page %d with %d links", pageNumber, len(page.Links))
	return page, nil
}

// ParseProductDetails extracts a product record from a product page. Missing elements produce empty fields.
func (p *catalogParser) ParseProductDetails(html, productURL string) (*domain.ProductRecord, error) {
	doc, err := parseDocument("parse product", productURL, html)
	if err != nil {
		return nil, err
	}
	root := doc.Selection

	rawSpecs := p.extractSpecifications(root)
	sku, model := p.extractSKUAndModel(root)
	panel := p.descriptionProse(root)

	product := &domain.ProductRecord{
		ProductNumber:      normalize.ProductNumber(productURL),
		URL:                productURL,
		Title:              p.textOf(root, titleSelector, " "),
		Brand:              brandOf(rawSpecs),
		Model:              model,
		SKUNumber:          sku,
		Price:              normalize.CleanPrice(p.textOf(root, priceSelector, "")),
		OldPrice:           normalize.CleanPrice(p.textOf(root, oldPriceSelector, "")),
		Images:             p.extractImages(root),
		MoreImages:         p.extractMoreImages(panel),
		Videos:             p.extractVideos(root),
		Specifications:     filterSpecifications(rawSpecs),
		LogoURL:            p.extractLogo(root),
		Description:        p.extractDescription(panel),
		Information:        p.extractInformation(root),
		TermsAndConditions: p.extractTerms(root),
		Currency:           domain.CurrencyNIS,
	}

	return product, nil
}

// textOf joins the text of the first match of selector with sep. Prices use "" so split digits stay together.
func (p *catalogParser) textOf(root *goquery.Selection, selector, sep string) string {
	sel := firstMatch(root, bySelector(selector))
	if sel == nil {
		return ""
	}
	return strippedText(sel, sep)
}

func (p *catalogParser) extractImages(root *goquery.Selection) []string {
	gallery := firstMatch(root, bySelector(gallerySelector))
	if gallery == nil {
		return []string{}
	}
	return p.collectImages(gallery, nil)
}

// descriptionProse returns the description panel, narrowed to its nested prose block when there is one.
func (p *catalogParser) descriptionProse(root *goquery.Selection) *goquery.Selection {
	panel := firstMatch(root, descriptionPanel...)
	if panel == nil {
		return nil
	}
	if prose := firstMatch(panel, bySelector("div.prose")); prose != nil {
		return prose
	}
	return panel
}

func (p *catalogParser) extractMoreImages(panel *goquery.Selection) []string {
	if panel == nil {
		return []string{}
	}
	return p.collectImages(panel, isTemplateImage)
}

// isTemplateImage matches unrendered front-end bindings such as ":src" expressions.
func isTemplateImage(src string) bool {
	return strings.HasPrefix(src, ":") ||
		strings.HasPrefix(strings.TrimSpace(src), "image.") ||
		strings.Contains(src, "imageSource")
}

func (p *catalogParser) collectImages(container *goquery.Selection, exclude func(string) bool) []string {
	images := make([]string, 0)
	seen := make(map[string]struct{})

	container.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := imageSource(img)
		if src == "" {
			return
		}
		if exclude != nil && exclude(src) {
			return
		}
		if !strings.HasPrefix(src, "http") && !strings.HasPrefix(src, "/") {
			return
		}

		u := p.normalizer.URL(src)
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		images = append(images, u)
	})

	return images
}

func (p *catalogParser) extractDescription(panel *goquery.Selection) string {
	if panel == nil {
		return ""
	}
	return strings.Join(texts(panel, "p"), ", ")
}

func (p *catalogParser) extractVideos(root *goquery.Selection) []string {
	videos := make([]string, 0)

	tab := firstMatch(root, bySelector(videoSelector))
	if tab == nil {
		return videos
	}

	tab.Find("video[src], source[src], iframe[src]").Each(func(_ int, s *goquery.Selection) {
		if u := p.normalizer.URL(s.AttrOr("src", "")); u != "" {
			videos = append(videos, u)
		}
	})
	return videos
}

func (p *catalogParser) extractSpecifications(root *goquery.Selection) []domain.Specification {
	specs := make([]domain.Specification, 0)

	root.Find(specRowSelector).Each(func(_ int, row *goquery.Selection) {
		th := row.Find("th").First()
		td := row.Find("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return
		}

		key := strings.TrimSpace(specKeySuffix.ReplaceAllString(strippedText(th, " "), ""))
		specs = append(specs, domain.Specification{
			Key:   key,
			Value: strippedText(td, " "),
		})
	})

	return specs
}

func brandOf(specs []domain.Specification) string {
	for _, s := range specs {
		if strings.HasPrefix(s.Key, brandLabel) {
			return s.Value
		}
	}
	return ""
}

func filterSpecifications(specs []domain.Specification) []domain.Specification {
	out := make([]domain.Specification, 0, len(specs))
	for _, s := range specs {
		excluded := false
		for _, prefix := range excludedSpecPrefixes {
			if strings.HasPrefix(s.Key, prefix) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, s)
		}
	}
	return out
}

func (p *catalogParser) extractSKUAndModel(root *goquery.Selection) (sku, model string) {
	box := firstMatch(root, bySelector(skuSelector))
	if box == nil {
		return "", ""
	}

	box.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		if text := strippedText(span, ""); strings.HasPrefix(text, skuLabel) {
			sku = normalize.Digits(text)
			return false
		}
		return true
	})

	box.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		if text := strippedText(span, " "); strings.HasPrefix(text, modelLabel) {
			model = strings.TrimSpace(modelPrefix.ReplaceAllString(text, ""))
			return false
		}
		return true
	})

	return sku, model
}

func (p *catalogParser) extractLogo(root *goquery.Selection) string {
	img := firstMatch(root, bySelector(logoSelector))
	if img == nil {
		return ""
	}
	src, ok := img.Attr("src")
	if !ok {
		return ""
	}
	return p.normalizer.URL(src)
}

func (p *catalogParser) extractInformation(root *goquery.Selection) string {
	panel := firstMatch(root, byAttrPattern("div", "x-show", informationTab))
	if panel == nil {
		return ""
	}
	return strings.Join(texts(panel, "p, li"), ", ")
}

func (p *catalogParser) extractTerms(root *goquery.Selection) string {
	panel := firstMatch(root, byAttrPattern("div", "x-show", conditionsTab))
	if panel == nil {
		return ""
	}

	terms := texts(panel, "p, div")
	if len(terms) == 0 {
		if all := strippedText(panel, " "); all != "" {
			terms = []string{all}
		}
	}
	return strings.Join(terms, ", ")
}
