package models

// Batch is a set of images fetched from the external indexing service,
// identified by the service's opaque batch id. Immutable after creation;
// expiry is the only teardown.
type Batch struct {
	ID     string   `json:"id"`
	Images []*Image `json:"images"`
}

// Image holds the assembled full-resolution rendition and its thumbnail.
type Image struct {
	ID             string `json:"id"`
	ImageBytes     []byte `json:"-"`
	ThumbnailBytes []byte `json:"-"`
}
