// Package offer defines the electricity supply offer record shared by the data
// sources, the decision engines and the presentation layer.
package offer

import (
	"encoding/json"
	"strings"
)

// Commodity is the energy commodity an offer supplies.
type Commodity string

const (
	CommodityElectric Commodity = "ELECTRIC"
	CommodityGas      Commodity = "GAS"
)

// ParseCommodity folds a raw commodity label to its canonical upper-case form.
// Unknown labels are kept (upper-cased) so they can still be compared.
func ParseCommodity(s string) Commodity {
	return Commodity(strings.ToUpper(strings.TrimSpace(s)))
}

// ServiceClass is the customer segment an offer is sold to.
type ServiceClass string

const (
	ServiceClassResidential ServiceClass = "RESIDENTIAL"
	ServiceClassCommercial  ServiceClass = "COMMERCIAL"
)

// ParseServiceClass folds a raw service class label to upper case.
func ParseServiceClass(s string) ServiceClass {
	return ServiceClass(strings.ToUpper(strings.TrimSpace(s)))
}

// OfferType is the pricing structure of an offer.
type OfferType string

const (
	OfferTypeFixed    OfferType = "FIXED"
	OfferTypeVariable OfferType = "VARIABLE"
	OfferTypeUnknown  OfferType = "UNKNOWN"
)

// ParseOfferType matches "fixed" and "variable" case-insensitively. Anything
// else, including blank, is OfferTypeUnknown.
func ParseOfferType(s string) OfferType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed":
		return OfferTypeFixed
	case "variable":
		return OfferTypeVariable
	default:
		return OfferTypeUnknown
	}
}

// Offer is one supply plan record as fetched for a single query. Offers are
// never mutated after fetch; derived values live on scoring.ScoredOffer.
type Offer struct {
	DisplayName     string   `json:"DISPLAY_NAME"`
	Commodity       string   `json:"COMMODITY"`
	ServiceClass    string   `json:"SERVICE_CLASS"`
	ServiceZone     string   `json:"SERVICE_ZONE"`
	OfferType       string   `json:"OFFER_TYPE"`
	Rate            RawField `json:"RATE"`
	PercentageGreen RawField `json:"PERCENTAGE_GREEN"`
	CancellationFee RawField `json:"CANCELLATION_FEE"`
	ValueAdded      RawField `json:"VALUE_ADDED"`
	URL             RawField `json:"URL"`
}

// Type returns the parsed offer type.
func (o Offer) Type() OfferType { return ParseOfferType(o.OfferType) }

// SwitchURL returns the provider sign-up link, or "" when the source left it
// blank or used the "0" placeholder.
func (o Offer) SwitchURL() string {
	u := strings.TrimSpace(o.URL.String())
	if u == "" || u == "0" {
		return ""
	}
	return u
}

// Columns lists the record keys in the order tabular sources use.
var Columns = []string{
	"DISPLAY_NAME",
	"COMMODITY",
	"SERVICE_CLASS",
	"SERVICE_ZONE",
	"OFFER_TYPE",
	"RATE",
	"PERCENTAGE_GREEN",
	"CANCELLATION_FEE",
	"VALUE_ADDED",
	"URL",
}

// FromRow builds an Offer from a column→cell map such as a CSV row or a SQL
// row scanned into strings. Missing columns are treated as null.
func FromRow(row map[string]string) Offer {
	return Offer{
		DisplayName:     row["DISPLAY_NAME"],
		Commodity:       row["COMMODITY"],
		ServiceClass:    row["SERVICE_CLASS"],
		ServiceZone:     row["SERVICE_ZONE"],
		OfferType:       row["OFFER_TYPE"],
		Rate:            FromCell(row["RATE"]),
		PercentageGreen: FromCell(row["PERCENTAGE_GREEN"]),
		CancellationFee: FromCell(row["CANCELLATION_FEE"]),
		ValueAdded:      FromCell(row["VALUE_ADDED"]),
		URL:             FromCell(row["URL"]),
	}
}

// Cell renders a field for a nullable text column as its JSON encoding, so
// the field kind survives storage. Null fields map to nil.
func Cell(f RawField) *string {
	if f.IsNull() {
		return nil
	}
	b, err := f.MarshalJSON()
	if err != nil {
		s := f.String()
		return &s
	}
	s := string(b)
	return &s
}

// FromNullableCell is the inverse of Cell. Cells that are not valid JSON are
// read as untyped text with FromCell.
func FromNullableCell(s *string) RawField {
	if s == nil {
		return Null()
	}
	var f RawField
	if err := json.Unmarshal([]byte(*s), &f); err == nil {
		return f
	}
	return FromCell(*s)
}
