// Package instruments manages the tradable universe of A-share listings.
package instruments

import "github.com/datanger/workbench/internal/domain"

// Instrument is one listed security.
type Instrument struct {
	Symbol    string          `json:"symbol"`
	Exchange  domain.Exchange `json:"exchange"`
	Market    domain.Market   `json:"market"`
	Name      string          `json:"name"`
	Industry  string          `json:"industry,omitempty"`
	IsActive  bool            `json:"is_active"`
	UpdatedAt string          `json:"updated_at"`
}
