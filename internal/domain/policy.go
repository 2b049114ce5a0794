package domain

// PolicyInput is the document handed to the consent-policy engine when a
// receipt is issued.
type PolicyInput struct {
	Purpose      string        `json:"purpose"`
	Predicates   []string      `json:"predicates"`
	RPIdentifier string        `json:"rp_identifier"`
	Jurisdiction string        `json:"jurisdiction,omitempty"`
	Consent      PolicyConsent `json:"consent"`
}

type PolicyConsent struct {
	ExplicitConsent              bool `json:"explicit_consent"`
	DataMinimizationAcknowledged bool `json:"data_minimization_acknowledged"`
	RetentionPeriodUnderstood    bool `json:"retention_period_understood"`
	RevocationRightsUnderstood   bool `json:"revocation_rights_understood"`
	RetentionPeriodDays          int  `json:"retention_period_days"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	BundleID   string       `json:"bundle_id,omitempty"`
	BundleHash string       `json:"bundle_hash"`
	Result     PolicyResult `json:"result"`
}
