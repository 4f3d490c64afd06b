package model

// RiderIdentity is the canonical identity row for one rider key. Display
// attributes are the most frequent value observed across all periods; the key
// itself never changes once assigned. Variant counters flag identities that
// need human review.
type RiderIdentity struct {
	RiderKey     string `json:"rider_key"`
	CEEID        string `json:"cee_id"`
	Name         string `json:"name"`
	TaxID        string `json:"tax_id"` // PAN-like identifier, may be absent
	City         string `json:"city"`
	Provider     string `json:"provider"`
	DeliveryMode string `json:"delivery_mode"`

	ObservedWeeks int `json:"observed_weeks"`
	NameVariants  int `json:"name_variants"`
	TaxIDVariants int `json:"tax_id_variants"`
	CityVariants  int `json:"city_variants"`
}

// IdentityConflict records one rider whose name, tax id, or city varied across
// periods. Conflicts are reported for human review and never auto-resolved.
type IdentityConflict struct {
	RiderKey      string   `json:"rider_key"`
	Field         string   `json:"field"`     // "name", "tax_id", or "city"
	Canonical     string   `json:"canonical"` // the mode-vote winner
	Variants      []string `json:"variants"`  // every distinct value observed
	Periods       []string `json:"periods"`   // period keys where a variant disagreed
	ObservedWeeks int      `json:"observed_weeks"`
}
