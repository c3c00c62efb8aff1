package patient

import (
	"sort"
	"strings"
)

// PrescribedRemedy is the remedy chosen at a consultation.
type PrescribedRemedy struct {
	RemedyName         string `json:"remedyName" bson:"remedyName"`
	Potency            string `json:"potency" bson:"potency"`     // e.g. "30C", "200C", "1M"
	Dosage             string `json:"dosage" bson:"dosage"`       // e.g. "2 pills"
	Frequency          string `json:"frequency" bson:"frequency"` // e.g. "Single dose"
	Duration           string `json:"duration" bson:"duration"`
	Instructions       string `json:"instructions" bson:"instructions"`
	ReasonForSelection string `json:"reasonForSelection" bson:"reasonForSelection"`
}

// Normalize trims every field. Empty optional fields stay empty strings.
func (r PrescribedRemedy) Normalize() PrescribedRemedy {
	return PrescribedRemedy{
		RemedyName:         strings.TrimSpace(r.RemedyName),
		Potency:            strings.TrimSpace(r.Potency),
		Dosage:             strings.TrimSpace(r.Dosage),
		Frequency:          strings.TrimSpace(r.Frequency),
		Duration:           strings.TrimSpace(r.Duration),
		Instructions:       strings.TrimSpace(r.Instructions),
		ReasonForSelection: strings.TrimSpace(r.ReasonForSelection),
	}
}

// CommonRemedies backs remedy autocomplete.
var CommonRemedies = []string{
	"Aconite",
	"Apis Mellifica",
	"Arnica Montana",
	"Arsenicum Album",
	"Belladonna",
	"Bryonia Alba",
	"Calcarea Carbonica",
	"Carbo Vegetabilis",
	"Chamomilla",
	"Gelsemium",
	"Hepar Sulph",
	"Ignatia Amara",
	"Lachesis",
	"Lycopodium",
	"Mercurius Solubilis",
	"Natrum Muriaticum",
	"Nux Vomica",
	"Phosphorus",
	"Pulsatilla",
	"Rhus Toxicodendron",
	"Sepia",
	"Silicea",
	"Staphysagria",
	"Sulphur",
	"Thuja Occidentalis",
}

// SearchRemedies returns catalogue entries containing q (case-insensitive).
// Prefix matches sort ahead of inner matches.
func SearchRemedies(q string) []string {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		out := make([]string, len(CommonRemedies))
		copy(out, CommonRemedies)
		return out
	}

	var prefix, inner []string
	for _, name := range CommonRemedies {
		lower := strings.ToLower(name)
		switch {
		case strings.HasPrefix(lower, q):
			prefix = append(prefix, name)
		case strings.Contains(lower, q):
			inner = append(inner, name)
		}
	}
	sort.Strings(prefix)
	sort.Strings(inner)

	out := make([]string, 0, len(prefix)+len(inner))
	out = append(out, prefix...)
	return append(out, inner...)
}
