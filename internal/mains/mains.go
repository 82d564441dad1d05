// Package mains works out the local electrical mains frequency, the
// frequency a hum marker on the spectrum is drawn at.
package mains

import (
	"fmt"
	"strings"
	"sync"

	tz "github.com/medama-io/go-timezone-country"
	"github.com/thlib/go-timezone-local/tzlocal"
)

// Fallback is used when the timezone has no country or detection fails.
// 50 Hz is the more common supply worldwide.
const Fallback = 50

var countryMap = sync.OnceValues(tz.NewTimezoneCountryMap)

// Frequency returns the local mains frequency in Hz (50 or 60).
func Frequency() int {
	timezone, err := tzlocal.RuntimeTZ()
	if err != nil {
		return Fallback
	}
	return FrequencyForTimezone(timezone)
}

// Resolve returns configured when it names a real supply frequency,
// otherwise the detected one. source describes where the value came from
// for logs and reports.
func Resolve(configured int) (hz int, source string, err error) {
	switch configured {
	case 50, 60:
		return configured, "config", nil
	case 0:
	default:
		return 0, "", fmt.Errorf("mains frequency must be 50 or 60 Hz, got %d", configured)
	}
	timezone, tzErr := tzlocal.RuntimeTZ()
	if tzErr != nil {
		return Fallback, "default", nil
	}
	return FrequencyForTimezone(timezone), "timezone " + timezone, nil
}

// FrequencyForTimezone returns the mains frequency for an IANA timezone.
func FrequencyForTimezone(timezone string) int {
	if timezone == "UTC" || timezone == "GMT" || strings.HasPrefix(timezone, "Etc/") {
		return Fallback
	}

	tzMap, err := countryMap()
	if err != nil {
		return Fallback
	}
	country, err := tzMap.GetCountry(timezone)
	if err != nil {
		return Fallback
	}
	return frequencyForCountry(country)
}

// frequencyForCountry returns the mains frequency for a country name.
func frequencyForCountry(country string) int {
	// Japan is split by region; Tokyo and the east run at 50 Hz.
	if hz60Countries[country] {
		return 60
	}
	return Fallback
}

// hz60Countries lists countries using 60Hz mains power.
// All other countries use 50Hz.
// Source: https://en.wikipedia.org/wiki/Mains_electricity_by_country
var hz60Countries = map[string]bool{
	// North America
	"United States": true,
	"Canada":        true,
	"Mexico":        true,

	// Central America
	"Belize":      true,
	"Costa Rica":  true,
	"El Salvador": true,
	"Guatemala":   true,
	"Honduras":    true,
	"Nicaragua":   true,
	"Panama":      true,

	// Caribbean
	"Bahamas":             true,
	"Barbados":            true,
	"Cayman Islands":      true,
	"Cuba":                true,
	"Dominican Republic":  true,
	"Haiti":               true,
	"Jamaica":             true,
	"Puerto Rico":         true,
	"Trinidad and Tobago": true,
	"U.S. Virgin Islands": true,

	// South America (partial, most use 50Hz)
	"Brazil":    true, // Note: Brazil has both 50Hz and 60Hz regions; 60Hz predominant
	"Colombia":  true,
	"Ecuador":   true,
	"Guyana":    true,
	"Peru":      true,
	"Suriname":  true,
	"Venezuela": true,

	// Asia (partial)
	"South Korea":  true,
	"Taiwan":       true,
	"Philippines":  true,
	"Saudi Arabia": true,

	// Pacific
	"Guam":             true,
	"American Samoa":   true,
	"Marshall Islands": true,
	"Micronesia":       true,
	"Palau":            true,
}
