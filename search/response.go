package search

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aluiziolira/go-wb-ranker/models"
)

type searchResponse struct {
	Data *searchData `json:"data"`
}

type searchData struct {
	Products json.RawMessage `json:"products"`
	Total    *int            `json:"total"`
}

type product struct {
	ID         json.RawMessage `json:"id"`
	Sizes      []productSize   `json:"sizes"`
	SalePriceU float64         `json:"salePriceU"`
	PriceU     float64         `json:"priceU"`
}

type productSize struct {
	Price *sizePrice `json:"price"`
}

type sizePrice struct {
	Product float64 `json:"product"`
	Total   float64 `json:"total"`
	Basic   float64 `json:"basic"`
}

// parsePage decodes a search response body. page is 1-based and pageSize is
// used to infer continuation when the API omits the total.
func parsePage(body []byte, page, pageSize int) (models.PageResult, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.PageResult{}, ErrMalformedResponse{Err: fmt.Errorf("decode body: %w", err)}
	}
	if resp.Data == nil {
		return models.PageResult{}, ErrMalformedResponse{Err: errors.New("missing data section")}
	}

	raw := bytes.TrimSpace(resp.Data.Products)
	var products []product
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		// An exhausted query comes back without a products array.
	case raw[0] != '[':
		return models.PageResult{}, ErrMalformedResponse{Err: errors.New("products is not an array")}
	default:
		if err := json.Unmarshal(raw, &products); err != nil {
			return models.PageResult{}, ErrMalformedResponse{Err: fmt.Errorf("decode products: %w", err)}
		}
	}

	items := make([]models.Item, 0, len(products))
	for i, p := range products {
		id, err := productID(p.ID)
		if err != nil {
			return models.PageResult{}, ErrMalformedResponse{Err: fmt.Errorf("product %d: %w", i+1, err)}
		}
		items = append(items, models.Item{
			ID:    id,
			Rank:  i + 1,
			Price: p.priceRub(),
		})
	}

	hasNext := len(products) >= pageSize
	if total := resp.Data.Total; total != nil {
		hasNext = page*pageSize < *total
	}
	return models.PageResult{Items: items, HasNextPage: hasNext}, nil
}

func productID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("missing id")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode id: %w", err)
		}
		if s == "" {
			return "", errors.New("empty id")
		}
		return s, nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return "", fmt.Errorf("id %s is not an integer", raw)
	}
	return strconv.FormatInt(n, 10), nil
}

// priceRub picks the first non-zero kopeck price and converts it to rubles.
func (p product) priceRub() *float64 {
	var kopecks float64
	if len(p.Sizes) > 0 && p.Sizes[0].Price != nil {
		sp := p.Sizes[0].Price
		for _, v := range []float64{sp.Product, sp.Total, sp.Basic} {
			if v != 0 {
				kopecks = v
				break
			}
		}
	}
	if kopecks == 0 {
		kopecks = p.SalePriceU
	}
	if kopecks == 0 {
		kopecks = p.PriceU
	}
	if kopecks == 0 {
		return nil
	}
	rub := kopecks / 100
	return &rub
}
