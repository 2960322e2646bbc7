package imagery

import (
	"encoding/xml"
	"fmt"
)

const (
	relImage     = "relations/image"
	relDeepzoom  = "relations/image/deepzoom"
	relThumbnail = "relations/image/thumbnail"
)

// ImageEntry is one image reference lifted from a batch manifest.
type ImageEntry struct {
	ID          string
	MetadataURL string
	ThumbURL    string
}

type manifestFeed struct {
	Entries []manifestEntry `xml:"entry"`
}

type manifestEntry struct {
	Rel   string         `xml:"http://familysearch.org/idx rel,attr"`
	UUID  string         `xml:"http://familysearch.org/idx uuid,attr"`
	Links []manifestLink `xml:"link"`
}

type manifestLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// ParseManifest extracts the image entries from a batch manifest feed.
// Entries missing either artifact link are rejected rather than skipped, so
// a malformed manifest fails the job instead of producing a partial batch.
func ParseManifest(data []byte) ([]ImageEntry, error) {
	var feed manifestFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	var entries []ImageEntry
	for _, entry := range feed.Entries {
		if entry.Rel != relImage {
			continue
		}
		image := ImageEntry{ID: entry.UUID}
		for _, link := range entry.Links {
			switch link.Rel {
			case relDeepzoom:
				image.MetadataURL = link.Href
			case relThumbnail:
				image.ThumbURL = link.Href
			}
		}
		if image.ID == "" || image.MetadataURL == "" || image.ThumbURL == "" {
			return nil, fmt.Errorf("manifest image entry %q is missing artifact links", entry.UUID)
		}
		entries = append(entries, image)
	}
	return entries, nil
}

// deepzoomMetadata is the tiled-image descriptor behind an image's metadata
// URL.
type deepzoomMetadata struct {
	TileSize int    `xml:"TileSize,attr"`
	Overlap  int    `xml:"Overlap,attr"`
	Format   string `xml:"Format,attr"`
	Size     struct {
		Width  int `xml:"Width,attr"`
		Height int `xml:"Height,attr"`
	} `xml:"Size"`
}

// ParseDeepzoom decodes the deepzoom descriptor XML.
func ParseDeepzoom(data []byte) (deepzoomMetadata, error) {
	var meta deepzoomMetadata
	if err := xml.Unmarshal(data, &meta); err != nil {
		return deepzoomMetadata{}, fmt.Errorf("parse deepzoom metadata: %w", err)
	}
	if meta.TileSize <= 0 || meta.Size.Width <= 0 || meta.Size.Height <= 0 {
		return deepzoomMetadata{}, fmt.Errorf("deepzoom metadata has invalid dimensions")
	}
	return meta, nil
}
