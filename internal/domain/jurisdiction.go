package domain

import "strings"

// JurisdictionTable maps relying-party identifier suffixes to jurisdiction
// codes. It is configuration data, loaded at startup; nothing log-critical
// depends on it.
type JurisdictionTable struct {
	suffixes map[string]string
}

func NewJurisdictionTable(suffixToCode map[string]string) *JurisdictionTable {
	normalized := make(map[string]string, len(suffixToCode))
	for suffix, code := range suffixToCode {
		normalized[strings.ToLower(strings.TrimPrefix(suffix, "."))] = code
	}
	return &JurisdictionTable{suffixes: normalized}
}

// Lookup returns the jurisdiction for an RP identifier, matching the longest
// configured dot-suffix. Unknown identifiers map to the empty string.
func (t *JurisdictionTable) Lookup(rpIdentifier string) string {
	if t == nil || len(t.suffixes) == 0 {
		return ""
	}
	host := strings.ToLower(rpIdentifier)
	labels := strings.Split(host, ".")
	for i := 0; i < len(labels); i++ {
		candidate := strings.Join(labels[i:], ".")
		if code, ok := t.suffixes[candidate]; ok {
			return code
		}
	}
	return ""
}
