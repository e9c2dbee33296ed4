package symbols

import (
	"strings"

	"bookflow/models"
)

// venueAliases maps canonical asset codes to the code a venue expects on the
// wire. Kraken's websocket API still names bitcoin XBT and dogecoin XDG.
var venueAliases = map[string]map[string]string{
	"kraken": {
		"BTC":  "XBT",
		"DOGE": "XDG",
	},
}

// ToVenue renders an instrument the way the venue expects it in subscribe
// requests: uppercased BASE/QUOTE with venue-specific asset codes.
func ToVenue(venue string, inst models.Instrument) string {
	aliases := venueAliases[strings.ToLower(venue)]
	base, quote := inst.Base, inst.Quote
	if a, ok := aliases[base]; ok {
		base = a
	}
	if a, ok := aliases[quote]; ok {
		quote = a
	}
	return base + "/" + quote
}

// FromVenue parses a venue pair string back into a canonical instrument.
func FromVenue(venue, pair string) (models.Instrument, error) {
	inst, err := models.ParseInstrument(pair)
	if err != nil {
		return models.Instrument{}, err
	}
	for canonical, alias := range venueAliases[strings.ToLower(venue)] {
		if inst.Base == alias {
			inst.Base = canonical
		}
		if inst.Quote == alias {
			inst.Quote = canonical
		}
	}
	return inst, nil
}
