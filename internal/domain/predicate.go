package domain

// PredicateKind enumerates the predicate identifiers this system knows how
// to interpret. Anything else is carried as PredicateOpaque so that
// canonicalization stays total over receipts produced by newer issuers.
type PredicateKind string

const (
	PredicateAgeGTE18          PredicateKind = "age_gte_18"
	PredicateAgeGTE21          PredicateKind = "age_gte_21"
	PredicateIdentityVerified  PredicateKind = "identity_verified"
	PredicateResidencyVerified PredicateKind = "residency_verified"
	PredicateIncomeVerified    PredicateKind = "income_verified"
	PredicateBackgroundChecked PredicateKind = "background_checked"
	PredicateOpaque            PredicateKind = "opaque"
)

var knownPredicates = map[string]PredicateKind{
	string(PredicateAgeGTE18):          PredicateAgeGTE18,
	string(PredicateAgeGTE21):          PredicateAgeGTE21,
	string(PredicateIdentityVerified):  PredicateIdentityVerified,
	string(PredicateResidencyVerified): PredicateResidencyVerified,
	string(PredicateIncomeVerified):    PredicateIncomeVerified,
	string(PredicateBackgroundChecked): PredicateBackgroundChecked,
}

// Predicate is one proven claim referenced by a consent receipt. For known
// kinds Raw equals the kind's identifier; for opaque predicates Raw holds
// the original identifier unmodified.
type Predicate struct {
	Kind PredicateKind
	Raw  string
}

func ParsePredicate(identifier string) Predicate {
	if kind, ok := knownPredicates[identifier]; ok {
		return Predicate{Kind: kind, Raw: identifier}
	}
	return Predicate{Kind: PredicateOpaque, Raw: identifier}
}

func ParsePredicates(identifiers []string) []Predicate {
	out := make([]Predicate, 0, len(identifiers))
	for _, id := range identifiers {
		out = append(out, ParsePredicate(id))
	}
	return out
}

// Identifier returns the string that participates in canonicalization.
func (p Predicate) Identifier() string {
	return p.Raw
}

func (p Predicate) Known() bool {
	return p.Kind != PredicateOpaque
}
