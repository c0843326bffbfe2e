package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *ProductRecord {
	return &ProductRecord{
		ProductNumber: "123456",
		URL:           "https://www.payngo.co.il/tv/123456.html",
		Title:         "טלוויזיה 55 אינץ'",
		Brand:         "Samsung",
		Model:         "QE55",
		SKUNumber:     "700123",
		Price:         "2499.90",
		Currency:      CurrencyNIS,
		Specifications: []Specification{
			{Key: "גודל מסך", Value: "55"},
			{Key: "רזולוציה", Value: "4K <UHD>"},
		},
	}
}

func TestFlattenJoinsMedia(t *testing.T) {
	images := []ImageAsset{
		{Source: "https://cdn/a.jpg", Served: "/img/p_123456_1.jpg"},
		{Source: "https://cdn/b.png", Served: "/img/p_123456_2.png"},
	}
	videos := []VideoAsset{{Source: "https://cdn/v.webm", Served: "/vid/v_123456_1.mp4"}}
	category := Category{Slug: "tv", Link: "https://www.payngo.co.il/tv.html", Name: "טלוויזיות"}

	flat := Flatten(sampleRecord(), images, nil, videos, category)

	assert.Equal(t, "/img/p_123456_1.jpg, /img/p_123456_2.png", flat.Images)
	assert.Equal(t, "https://cdn/a.jpg, https://cdn/b.png", flat.SourceImages)
	assert.Equal(t, "", flat.MoreImages)
	assert.Equal(t, "", flat.SourceMoreImages)
	assert.Equal(t, "/vid/v_123456_1.mp4", flat.Videos)
	assert.Equal(t, "https://cdn/v.webm", flat.SourceVideos)
	assert.Equal(t, category, flat.Category)
}

func TestFlattenedRecordKeyOrder(t *testing.T) {
	flat := Flatten(sampleRecord(), nil, nil, nil, Category{Slug: "tv", Link: "https://x/tv.html", Name: "טלוויזיות"})

	data, err := json.Marshal(flat)
	require.NoError(t, err)

	body := string(data)
	order := []string{
		`"productNumber"`, `"url"`, `"shortDescription"`, `"brand"`, `"model"`, `"skuNumber"`,
		`"price"`, `"oldPrice"`, `"logoUrl"`, `"description"`, `"information"`, `"termsAndConditions"`,
		`"currency"`, `"images"`, `"sourceImages"`, `"moreImages"`, `"sourceMoreImages"`, `"videos"`,
		`"sourceVideos"`, `"key1"`, `"value1"`, `"key2"`, `"value2"`, `"categorySlug"`, `"categoryName"`,
		`"categoryLink"`,
	}

	last := -1
	for _, key := range order {
		idx := strings.Index(body, key)
		require.GreaterOrEqual(t, idx, 0, "missing %s", key)
		assert.Greater(t, idx, last, "%s out of order", key)
		last = idx
	}

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "גודל מסך", decoded["key1"])
	assert.Equal(t, "4K <UHD>", decoded["value2"])
	assert.Equal(t, "NIS", decoded["currency"])
	assert.NotContains(t, decoded, "key3")
}

func TestTaskReportDefaults(t *testing.T) {
	data, err := json.Marshal(NewTaskReport("task-1", 0, 2))
	require.NoError(t, err)
	assert.JSONEq(t, `{"task":"task-1","failedCount":0,"successCount":2,"errorLog":{},"files":[]}`, string(data))
}
