package models

// Investor is the identity dimension keyed by the source system's investor id.
type Investor struct {
	InvestorID   string  `json:"investor_id"`
	InvestorType *string `json:"investor_type"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	CountryCode  *string `json:"country_code"`
	RawID        *string `json:"raw_id"`
}

// Merge folds a later observation of the same investor into i using the
// same rule as the store's upsert.
func (i *Investor) Merge(newer Investor) {
	i.InvestorType = coalesce(newer.InvestorType, i.InvestorType)
	i.FirstName = coalesce(newer.FirstName, i.FirstName)
	i.LastName = coalesce(newer.LastName, i.LastName)
	i.CountryCode = coalesce(newer.CountryCode, i.CountryCode)
	i.RawID = coalesce(newer.RawID, i.RawID)
}

// DisplayName joins first and last name, falling back to the id.
func (i *Investor) DisplayName() string {
	return DisplayName(deref(i.FirstName), deref(i.LastName), i.InvestorID)
}

// DisplayName builds "first last", ignoring blanks and literal "nan" left by
// older extracts. fallback is used when both parts are empty.
func DisplayName(first, last, fallback string) string {
	name := ""
	for _, part := range []string{first, last} {
		if part == "" || part == "nan" || part == "NaN" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += part
	}
	if name == "" {
		return fallback
	}
	return name
}

// InvestorMatch is an investor resolved from a free-text watchlist pattern
type InvestorMatch struct {
	InvestorID     string `json:"investor_id"`
	InvestorType   string `json:"investor_type"`
	Name           string `json:"name"`
	MatchedPattern string `json:"matched_pattern"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
