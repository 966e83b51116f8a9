// Package filter restricts an offer collection to one commodity and service class.
package filter

import "esco-optimizer/pkg/offer"

// Segment is a commodity/service-class pair.
type Segment struct {
	Commodity    offer.Commodity    `json:"commodity" yaml:"commodity"`
	ServiceClass offer.ServiceClass `json:"service_class" yaml:"service_class"`
}

// ElectricResidential is the default segment.
var ElectricResidential = Segment{
	Commodity:    offer.CommodityElectric,
	ServiceClass: offer.ServiceClassResidential,
}

// NewSegment builds a segment from raw labels, folding case.
func NewSegment(commodity, serviceClass string) Segment {
	return Segment{
		Commodity:    offer.ParseCommodity(commodity),
		ServiceClass: offer.ParseServiceClass(serviceClass),
	}
}

// Matches reports whether an offer belongs to the segment. Offers with a
// blank commodity or service class never match.
func (s Segment) Matches(o offer.Offer) bool {
	c := offer.ParseCommodity(o.Commodity)
	sc := offer.ParseServiceClass(o.ServiceClass)
	if c == "" || sc == "" {
		return false
	}
	return c == s.Commodity && sc == s.ServiceClass
}

// Apply returns the matching offers in input order. An empty result is valid.
func (s Segment) Apply(offers []offer.Offer) []offer.Offer {
	out := make([]offer.Offer, 0, len(offers))
	for _, o := range offers {
		if s.Matches(o) {
			out = append(out, o)
		}
	}
	return out
}

// FilterSegment keeps the offers whose commodity and service class equal the
// given labels case-insensitively.
func FilterSegment(offers []offer.Offer, commodity, serviceClass string) []offer.Offer {
	return NewSegment(commodity, serviceClass).Apply(offers)
}
