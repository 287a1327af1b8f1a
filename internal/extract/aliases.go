package extract

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Field is a canonical column of the position-change extract
type Field string

const (
	FieldInvestorID   Field = "investor_id"
	FieldInvestorType Field = "investor_type"
	FieldFirstName    Field = "first_name"
	FieldLastName     Field = "last_name"
	FieldCountryCode  Field = "country_code"
	FieldRawID        Field = "raw_id"

	FieldISIN              Field = "isin"
	FieldTicker            Field = "ticker"
	FieldISINName          Field = "isin_name"
	FieldPaperGroup        Field = "paper_group"
	FieldIssuerOrgnr       Field = "issuer_orgnr"
	FieldIssuerName        Field = "issuer_name"
	FieldRegisteredCountry Field = "registered_country"
	FieldMarket            Field = "market"
	FieldSector            Field = "sector"
	FieldGICSSector        Field = "gics_sector"
	FieldAskPaper          Field = "ask_paper"
	FieldIssuedShares      Field = "issued_shares"

	FieldDateToday        Field = "date_today"
	FieldDateYesterday    Field = "date_yesterday"
	FieldHoldingToday     Field = "holding_today"
	FieldHoldingYesterday Field = "holding_yesterday"
	FieldPriceToday       Field = "price_today"
	FieldPriceYesterday   Field = "price_yesterday"
	FieldChangeQty        Field = "change_qty"
	FieldAbsChangeQty     Field = "abs_change_qty"
	FieldChangePercent    Field = "change_percent"
	FieldFlagExit         Field = "flag_exit_source"
	FieldFlagNew          Field = "flag_new_source"
	FieldRank             Field = "rank"
)

// MandatoryFields must resolve to a column or the whole file is rejected.
var MandatoryFields = []Field{FieldISIN, FieldInvestorID, FieldDateToday}

// Aliases maps each canonical field to the header names it may appear under,
// in order of preference.
type Aliases map[Field][]string

// DefaultAliases covers every extract vintage seen so far. Several headers
// carry a trailing space in older files.
var DefaultAliases = Aliases{
	FieldInvestorID:   {"New_ID", "investor_ID", "Investor_ID", "InvestorID"},
	FieldInvestorType: {"Investortype", "InvestorType"},
	FieldFirstName:    {"Fornavn", "FirstName"},
	FieldLastName:     {"Etternavn", "LastName"},
	FieldCountryCode:  {"Country code", "Country_code", "CountryCode"},
	FieldRawID:        {"Date of Birth", "DOB", "Raw_ID"},

	FieldISIN:              {"ISIN"},
	FieldTicker:            {"Ticker"},
	FieldISINName:          {"ISINNAVN", "ISINNAVN ", "ISINName"},
	FieldPaperGroup:        {"PAPIRGRUPPE", "Papirgruppe"},
	FieldIssuerOrgnr:       {"Orgnr", "Org.nr", "IssuerOrgnr"},
	FieldIssuerName:        {"Utsteder navn", "Utsteder_navn", "IssuerName"},
	FieldRegisteredCountry: {"Registrert land", "Registered country"},
	FieldMarket:            {"Markedsplass", "Market"},
	FieldSector:            {"Sektor", "Sector"},
	FieldGICSSector:        {"GICS_SECTOR", "GICS Sector"},
	FieldAskPaper:          {"ASK-papir", "ASK_papir"},
	FieldIssuedShares:      {"Utstedt antall", "Issued_shares"},

	FieldDateToday:        {"DatoIdag", "Dato idag", "DateToday"},
	FieldDateYesterday:    {"DatoIgaar", "Dato igaar", "DateYesterday"},
	FieldHoldingToday:     {"Beh. idag", "Beh idag", "Holding today"},
	FieldHoldingYesterday: {"Beh. igaar", "Beh igaar", "Holding yesterday"},
	FieldPriceToday:       {"Kurs idag", "Kurs idag ", "Price today"},
	FieldPriceYesterday:   {"Kurs igaar", "Kurs igaar ", "Price yesterday"},
	FieldChangeQty:        {"Change", "ChangeQty"},
	FieldAbsChangeQty:     {"AbsChange", "Abs change"},
	FieldChangePercent:    {"ChangePercent", "Change %"},
	FieldFlagExit:         {"Forlatt", "Exit"},
	FieldFlagNew:          {"Ny", "New"},
	FieldRank:             {"Rank"},
}

// Columns maps resolved fields to their index in a row. Absent fields are
// not in the map.
type Columns map[Field]int

// Resolve picks, for every field, the first alias present in header.
// Header names are matched exactly.
func (a Aliases) Resolve(header []string) Columns {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}

	cols := make(Columns)
	for field, names := range a {
		for _, n := range names {
			if i, ok := idx[n]; ok {
				cols[field] = i
				break
			}
		}
	}
	return cols
}

// Missing returns the mandatory fields cols does not resolve.
func (c Columns) Missing() []Field {
	var missing []Field
	for _, f := range MandatoryFields {
		if _, ok := c[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// LoadAliases reads a YAML overlay of the form
//
//	price_yesterday: ["Sluttkurs igaar"]
//	investor_id: ["Eier_ID"]
//
// and returns DefaultAliases with the extra names placed ahead of the
// built-in ones. An empty path returns DefaultAliases unchanged.
func LoadAliases(path string) (Aliases, error) {
	if path == "" {
		return DefaultAliases, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read aliases file: %w", err)
	}

	var overlay map[string][]string
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse aliases file %s: %w", path, err)
	}

	merged := make(Aliases, len(DefaultAliases))
	for f, names := range DefaultAliases {
		merged[f] = append([]string(nil), names...)
	}
	for key, names := range overlay {
		f := Field(key)
		if _, known := DefaultAliases[f]; !known {
			return nil, fmt.Errorf("aliases file %s: unknown field %q", path, key)
		}
		merged[f] = append(append([]string(nil), names...), merged[f]...)
	}
	return merged, nil
}
