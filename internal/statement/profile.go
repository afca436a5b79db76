package statement

// Profile maps the column layout of one source institution's export onto the
// fields the normalizer needs. Profiles are static configuration: adding a
// bank means adding an entry here, not code.
type Profile struct {
	Name              string
	DateColumn        string
	DateLayouts       []string
	DescriptionColumn string
	// AmountColumn holds a signed value. When empty, CreditColumn and
	// DebitColumn hold split unsigned values instead.
	AmountColumn    string
	CreditColumn    string
	DebitColumn     string
	ReferenceColumn string
}

// Split reports whether the profile uses separate credit/debit columns.
func (p Profile) Split() bool {
	return p.AmountColumn == ""
}

var profiles = map[string]Profile{
	"generic-csv": {
		Name:              "generic-csv",
		DateColumn:        "date",
		DateLayouts:       []string{"2006-01-02", "02/01/2006"},
		DescriptionColumn: "description",
		AmountColumn:      "amount",
		ReferenceColumn:   "reference",
	},
	"split-credit-debit": {
		Name:              "split-credit-debit",
		DateColumn:        "date",
		DateLayouts:       []string{"2006-01-02", "02/01/2006"},
		DescriptionColumn: "description",
		CreditColumn:      "credit",
		DebitColumn:       "debit",
		ReferenceColumn:   "reference",
	},
	"extrato-br": {
		Name:              "extrato-br",
		DateColumn:        "Data",
		DateLayouts:       []string{"02/01/2006"},
		DescriptionColumn: "Historico",
		AmountColumn:      "Valor",
		ReferenceColumn:   "Documento",
	},
}

// ProfileByName resolves a registered source-format profile.
func ProfileByName(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// ProfileNames lists the registered profiles.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	return names
}
