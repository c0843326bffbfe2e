package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const listSeparator = ", "

// FlattenedRecord is a product as written to the category output file: media lists joined into strings,
// specifications expanded into key1/value1... pairs and the category attached.
type FlattenedRecord struct {
	ProductNumber      string
	URL                string
	Title              string
	Brand              string
	Model              string
	SKUNumber          string
	Price              string
	OldPrice           string
	LogoURL            string
	Description        string
	Information        string
	TermsAndConditions string
	Currency           string

	Images           string // Served paths
	SourceImages     string
	MoreImages       string // Served paths
	SourceMoreImages string
	Videos           string // Served paths
	SourceVideos     string

	Specifications []Specification
	Category       Category
}

// Flatten combines an extracted product with its downloaded media and category.
func Flatten(p *ProductRecord, images, moreImages []ImageAsset, videos []VideoAsset, category Category) *FlattenedRecord {
	served, source := joinImages(images)
	moreServed, moreSource := joinImages(moreImages)

	videoServed := make([]string, 0, len(videos))
	videoSource := make([]string, 0, len(videos))
	for _, v := range videos {
		videoServed = append(videoServed, v.Served)
		videoSource = append(videoSource, v.Source)
	}

	return &FlattenedRecord{
		ProductNumber:      p.ProductNumber,
		URL:                p.URL,
		Title:              p.Title,
		Brand:              p.Brand,
		Model:              p.Model,
		SKUNumber:          p.SKUNumber,
		Price:              p.Price,
		OldPrice:           p.OldPrice,
		LogoURL:            p.LogoURL,
		Description:        p.Description,
		Information:        p.Information,
		TermsAndConditions: p.TermsAndConditions,
		Currency:           p.Currency,
		Images:             served,
		SourceImages:       source,
		MoreImages:         moreServed,
		SourceMoreImages:   moreSource,
		Videos:             strings.Join(videoServed, listSeparator),
		SourceVideos:       strings.Join(videoSource, listSeparator),
		Specifications:     p.Specifications,
		Category:           category,
	}
}

func joinImages(assets []ImageAsset) (served, source string) {
	s := make([]string, 0, len(assets))
	src := make([]string, 0, len(assets))
	for _, a := range assets {
		s = append(s, a.Served)
		src = append(src, a.Source)
	}
	return strings.Join(s, listSeparator), strings.Join(src, listSeparator)
}

// MarshalJSON writes the fields in a fixed order with the specification pairs between the media
// fields and the category fields.
func (r *FlattenedRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	write := func(key, value string) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false

		if err := encodeString(&buf, key); err != nil {
			return err
		}
		buf.WriteByte(':')
		return encodeString(&buf, value)
	}

	fields := []struct{ key, value string }{
		{"productNumber", r.ProductNumber},
		{"url", r.URL},
		{"shortDescription", r.Title},
		{"brand", r.Brand},
		{"model", r.Model},
		{"skuNumber", r.SKUNumber},
		{"price", r.Price},
		{"oldPrice", r.OldPrice},
		{"logoUrl", r.LogoURL},
		{"description", r.Description},
		{"information", r.Information},
		{"termsAndConditions", r.TermsAndConditions},
		{"currency", r.Currency},
		{"images", r.Images},
		{"sourceImages", r.SourceImages},
		{"moreImages", r.MoreImages},
		{"sourceMoreImages", r.SourceMoreImages},
		{"videos", r.Videos},
		{"sourceVideos", r.SourceVideos},
	}
	for _, f := range fields {
		if err := write(f.key, f.value); err != nil {
			return nil, err
		}
	}

	for i, spec := range r.Specifications {
		if err := write(fmt.Sprintf("key%d", i+1), spec.Key); err != nil {
			return nil, err
		}
		if err := write(fmt.Sprintf("value%d", i+1), spec.Value); err != nil {
			return nil, err
		}
	}

	for _, f := range []struct{ key, value string }{
		{"categorySlug", r.Category.Slug},
		{"categoryName", r.Category.Name},
		{"categoryLink", r.Category.Link},
	} {
		if err := write(f.key, f.value); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates every value with a newline
	buf.Truncate(buf.Len() - 1)
	return nil
}
