package fetcher

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/yavzali/catalogwatch/internal/model"
)

// ParseJSONSnapshot decodes a scraped catalog snapshot: a JSON array of
// catalog entries as produced by the scraping layer.
func ParseJSONSnapshot(r io.Reader) ([]model.CatalogEntry, error) {
	var entries []model.CatalogEntry
	dec := json.NewDecoder(r)
	if err := dec.Decode(&entries); err != nil {
		return nil, eris.Wrap(err, "snapshot: decode json")
	}
	return entries, nil
}
