// units.go - Canonical unit names for catalog comparison

package match

import "strings"

// unitAliases folds the unit spellings seen on supplier invoices onto
// the catalog's canonical short forms.
var unitAliases = map[string]string{
	"piece":     "pcs",
	"pieces":    "pcs",
	"pc":        "pcs",
	"pcs":       "pcs",
	"buah":      "pcs",
	"biji":      "pcs",
	"butir":     "pcs",
	"ea":        "pcs",
	"unit":      "pcs",
	"bottle":    "btl",
	"bottles":   "btl",
	"botol":     "btl",
	"btl":       "btl",
	"crate":     "krat",
	"crates":    "krat",
	"krat":      "krat",
	"kilogram":  "kg",
	"kilograms": "kg",
	"kilo":      "kg",
	"kg":        "kg",
	"gram":      "g",
	"gr":        "g",
	"g":         "g",
	"liter":     "l",
	"litre":     "l",
	"ltr":       "l",
	"l":         "l",
	"pack":      "pak",
	"pak":       "pak",
	"bungkus":   "pak",
	"sachet":    "sct",
	"sct":       "sct",
	"box":       "dus",
	"dus":       "dus",
	"karton":    "dus",
	"kotak":     "dus",
	"ikat":      "ikat",
	"sisir":     "sisir",
}

// CanonicalUnit maps a raw unit string to its canonical form. Unknown
// units pass through lowercased so comparisons stay case-insensitive.
func CanonicalUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.TrimSuffix(u, ".")
	if canon, ok := unitAliases[u]; ok {
		return canon
	}
	return u
}

// SameUnit reports whether two raw unit strings refer to the same
// canonical unit. Empty strings match anything: an invoice that omits
// the unit should not produce a mismatch.
func SameUnit(a, b string) bool {
	ca, cb := CanonicalUnit(a), CanonicalUnit(b)
	if ca == "" || cb == "" {
		return true
	}
	return ca == cb
}
