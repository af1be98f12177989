package currency

import (
	"errors"
	"fmt"

	"quotefetch/internal/normalize"
)

// ErrInvalidParameter is returned for lookup constraints that name an
// attribute the currency table does not have.
var ErrInvalidParameter = errors.New("invalid lookup parameter")

// Info is the ISO 4217 metadata of one currency.
type Info struct {
	Name      string   `json:"name"`
	Countries []string `json:"countries"`
	Number    string   `json:"number"`
}

// iso4217 is the built-in currency table, keyed by alphabetic code.
var iso4217 = map[string]Info{
	"AED": {"United Arab Emirates dirham", []string{"United Arab Emirates"}, "784"},
	"ARS": {"Argentine peso", []string{"Argentina"}, "032"},
	"AUD": {"Australian dollar", []string{"Australia", "Kiribati", "Nauru", "Tuvalu"}, "036"},
	"BGN": {"Bulgarian lev", []string{"Bulgaria"}, "975"},
	"BRL": {"Brazilian real", []string{"Brazil"}, "986"},
	"CAD": {"Canadian dollar", []string{"Canada"}, "124"},
	"CHF": {"Swiss franc", []string{"Switzerland", "Liechtenstein"}, "756"},
	"CLP": {"Chilean peso", []string{"Chile"}, "152"},
	"CNY": {"Renminbi", []string{"China"}, "156"},
	"COP": {"Colombian peso", []string{"Colombia"}, "170"},
	"CZK": {"Czech koruna", []string{"Czechia"}, "203"},
	"DKK": {"Danish krone", []string{"Denmark", "Faroe Islands", "Greenland"}, "208"},
	"EGP": {"Egyptian pound", []string{"Egypt"}, "818"},
	"EUR": {"Euro", []string{
		"Austria", "Belgium", "Croatia", "Cyprus", "Estonia", "Finland", "France",
		"Germany", "Greece", "Ireland", "Italy", "Latvia", "Lithuania", "Luxembourg",
		"Malta", "Netherlands", "Portugal", "Slovakia", "Slovenia", "Spain",
	}, "978"},
	"GBP": {"Pound sterling", []string{"United Kingdom", "Isle of Man", "Jersey", "Guernsey"}, "826"},
	"HKD": {"Hong Kong dollar", []string{"Hong Kong"}, "344"},
	"HUF": {"Hungarian forint", []string{"Hungary"}, "348"},
	"IDR": {"Indonesian rupiah", []string{"Indonesia"}, "360"},
	"ILS": {"Israeli new shekel", []string{"Israel"}, "376"},
	"INR": {"Indian rupee", []string{"India", "Bhutan"}, "356"},
	"ISK": {"Icelandic krona", []string{"Iceland"}, "352"},
	"JPY": {"Japanese yen", []string{"Japan"}, "392"},
	"KRW": {"South Korean won", []string{"South Korea"}, "410"},
	"KWD": {"Kuwaiti dinar", []string{"Kuwait"}, "414"},
	"MAD": {"Moroccan dirham", []string{"Morocco", "Western Sahara"}, "504"},
	"MXN": {"Mexican peso", []string{"Mexico"}, "484"},
	"MYR": {"Malaysian ringgit", []string{"Malaysia"}, "458"},
	"NGN": {"Nigerian naira", []string{"Nigeria"}, "566"},
	"NOK": {"Norwegian krone", []string{"Norway", "Svalbard and Jan Mayen", "Bouvet Island"}, "578"},
	"NZD": {"New Zealand dollar", []string{"New Zealand", "Cook Islands", "Niue", "Pitcairn Islands", "Tokelau"}, "554"},
	"PEN": {"Peruvian sol", []string{"Peru"}, "604"},
	"PHP": {"Philippine peso", []string{"Philippines"}, "608"},
	"PKR": {"Pakistani rupee", []string{"Pakistan"}, "586"},
	"PLN": {"Polish zloty", []string{"Poland"}, "985"},
	"RON": {"Romanian leu", []string{"Romania"}, "946"},
	"RSD": {"Serbian dinar", []string{"Serbia"}, "941"},
	"RUB": {"Russian ruble", []string{"Russia"}, "643"},
	"SAR": {"Saudi riyal", []string{"Saudi Arabia"}, "682"},
	"SEK": {"Swedish krona", []string{"Sweden"}, "752"},
	"SGD": {"Singapore dollar", []string{"Singapore"}, "702"},
	"THB": {"Thai baht", []string{"Thailand"}, "764"},
	"TRY": {"Turkish lira", []string{"Turkey"}, "949"},
	"TWD": {"New Taiwan dollar", []string{"Taiwan"}, "901"},
	"UAH": {"Ukrainian hryvnia", []string{"Ukraine"}, "980"},
	"USD": {"United States dollar", []string{
		"United States", "American Samoa", "British Virgin Islands", "Ecuador",
		"El Salvador", "Guam", "Marshall Islands", "Micronesia", "Palau",
		"Panama", "Puerto Rico", "Timor-Leste", "Turks and Caicos Islands",
		"U.S. Virgin Islands",
	}, "840"},
	"VND": {"Vietnamese dong", []string{"Vietnam"}, "704"},
	"ZAR": {"South African rand", []string{"South Africa", "Eswatini", "Lesotho", "Namibia"}, "710"},
}

// Known returns a copy of the built-in currency table.
func Known() map[string]Info {
	out := make(map[string]Info, len(iso4217))
	for code, info := range iso4217 {
		out[code] = info
	}
	return out
}

// Lookup filters the currency table by attribute constraints. Keys are
// "code", "name", "country" or "number"; values are plain strings
// (substring match) or *regexp.Regexp. All constraints must match.
func Lookup(constraints map[string]any) (map[string]Info, error) {
	for key := range constraints {
		switch key {
		case "code", "name", "country", "number":
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidParameter, key)
		}
	}

	out := map[string]Info{}
	for code, info := range iso4217 {
		match := true
		for key, pattern := range constraints {
			var value any
			switch key {
			case "code":
				value = code
			case "name":
				value = info.Name
			case "country":
				value = info.Countries
			case "number":
				value = info.Number
			}
			if !normalize.SmartCompare(value, pattern) {
				match = false
				break
			}
		}
		if match {
			out[code] = info
		}
	}
	return out, nil
}
