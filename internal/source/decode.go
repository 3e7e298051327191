package source

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

// decodeListings streams a JSON array of raw listings off the wire so
// a large result page never has to sit in memory twice.
func decodeListings(ctx context.Context, r io.Reader) ([]model.RawListing, error) {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, eris.Wrap(err, "read opening token")
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '[' {
		return nil, eris.Errorf("malformed listing payload: expected '[', got %v", tok)
	}

	var listings []model.RawListing
	for decoder.More() {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "decode cancelled")
		}
		var l model.RawListing
		if err := decoder.Decode(&l); err != nil {
			return nil, eris.Wrap(err, "decode listing element")
		}
		listings = append(listings, l)
	}

	if _, err := decoder.Token(); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "read closing token")
	}
	return listings, nil
}
