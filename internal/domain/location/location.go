// Package location implements the geographic narrowing of search results:
// country/region/city parsing, normalization, and matching.
package location

import (
	"fmt"
	"regexp"
	"strings"
)

// Input limits for region and city values.
const (
	MaxRegionLength = 64
	MaxCityLength   = 64
)

var (
	countryRe = regexp.MustCompile(`^[a-zA-Z]{2}$`)
	regionRe  = regexp.MustCompile(`^[a-zA-Z0-9 ._'-]+$`)
	cityRe    = regexp.MustCompile(`^[a-zA-Z0-9 .'-]+$`)
)

// Place is one artist location row as persisted upstream.
type Place struct {
	City    string
	Region  string
	Country string // ISO 3166-1 alpha-2, lowercase
	Primary bool
}

// Filter narrows results by country, optional region, optional city.
// All fields are stored normalized: lowercase, city slugified.
type Filter struct {
	country string
	region  string
	city    string
}

// ParseFilter validates and normalizes raw filter values. Returns nil
// when all values are empty (no filter). Malformed values are a caller
// error, never silently dropped.
func ParseFilter(country, region, city string) (*Filter, error) {
	country = strings.TrimSpace(country)
	region = strings.TrimSpace(region)
	city = strings.TrimSpace(city)

	if country == "" && region == "" && city == "" {
		return nil, nil
	}
	if country == "" {
		return nil, fmt.Errorf("region or city filter requires a country")
	}
	if !countryRe.MatchString(country) {
		return nil, fmt.Errorf("country %q is not an ISO 3166-1 alpha-2 code", country)
	}
	if region != "" {
		if len(region) > MaxRegionLength {
			return nil, fmt.Errorf("region too long (max %d chars)", MaxRegionLength)
		}
		if !regionRe.MatchString(region) {
			return nil, fmt.Errorf("region %q has disallowed characters", region)
		}
	}
	if city != "" {
		if len(city) > MaxCityLength {
			return nil, fmt.Errorf("city too long (max %d chars)", MaxCityLength)
		}
		if !cityRe.MatchString(city) {
			return nil, fmt.Errorf("city %q has disallowed characters", city)
		}
	}

	return &Filter{
		country: strings.ToLower(country),
		region:  strings.ToLower(region),
		city:    Slug(city),
	}, nil
}

// Country returns the normalized country code.
func (f *Filter) Country() string { return f.country }

// Region returns the normalized region, empty when unset.
func (f *Filter) Region() string { return f.region }

// City returns the normalized city slug, empty when unset.
func (f *Filter) City() string { return f.city }

// Matches reports whether one place satisfies the filter.
// Comparison is case-insensitive; cities compare by slug.
func (f *Filter) Matches(p Place) bool {
	if f == nil {
		return true
	}
	if strings.ToLower(p.Country) != f.country {
		return false
	}
	if f.region != "" && strings.ToLower(p.Region) != f.region {
		return false
	}
	if f.city != "" && Slug(p.City) != f.city {
		return false
	}
	return true
}

// MatchesAny reports whether any of the places satisfies the filter.
// A nil filter matches everything, including artists with no locations.
func (f *Filter) MatchesAny(places []Place) bool {
	if f == nil {
		return true
	}
	for _, p := range places {
		if f.Matches(p) {
			return true
		}
	}
	return false
}

var slugStripRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug normalizes a city name for comparison: lowercase, runs of
// non-alphanumerics collapsed to single hyphens, trimmed.
func Slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStripRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
