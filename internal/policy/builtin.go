package policy

// personContexts are the ancestor elements under which a flat name
// holds a person rather than an organization.
var personContexts = []string{
	"patient",
	"assignedPerson",
	"guardianPerson",
	"associatedPerson",
	"relatedPerson",
	"informationRecipient",
	"subject",
}

// builtinFields is the default eICR rule table. It targets the Safe
// Harbor identifier locations of an HL7 CDA document: person and
// organization names, address parts, contact points, instance
// identifiers, and timestamps.
var builtinFields = []SensitiveField{
	{Element: "given", Text: true, Category: GivenName},
	{Element: "family", Text: true, Category: FamilyName},
	{Element: "prefix", Text: true, Category: NamePrefix},
	{Element: "suffix", Text: true, Category: NameSuffix},

	// A name element carrying flat text is a person name inside person
	// wrappers and an organization name everywhere else. Name elements
	// that only wrap given/family children have no text and are skipped.
	{Element: "name", Text: true, Category: PersonName, Within: personContexts},
	{Element: "name", Text: true, Category: Organization},

	{Element: "streetAddressLine", Text: true, Category: Street},
	{Element: "city", Text: true, Category: City},
	{Element: "county", Text: true, Category: County},
	{Element: "state", Text: true, Category: State},
	{Element: "country", Text: true, Category: Country},
	{Element: "postalCode", Text: true, Category: PostalCode},

	{Element: "telecom", Attributes: []string{"value"}, Category: Telecom},

	{Element: "id", Attributes: []string{"root", "extension"}, Category: Identifier},
	{Element: "setId", Attributes: []string{"root", "extension"}, Category: Identifier},

	{Element: "time", Attributes: []string{"value"}, Category: Date},
	{Element: "effectiveTime", Attributes: []string{"value"}, Category: Date},
	{Element: "birthTime", Attributes: []string{"value"}, Category: Date},
	{Element: "deceasedTime", Attributes: []string{"value"}, Category: Date},

	// IVL_TS bounds are dates only inside effectiveTime; low/high under
	// observation reference ranges are measurements and must not change.
	{Element: "low", Attributes: []string{"value"}, Category: Date, Within: []string{"effectiveTime"}},
	{Element: "high", Attributes: []string{"value"}, Category: Date, Within: []string{"effectiveTime"}},
}

var builtin = func() *Policy {
	p, err := New(builtinFields)
	if err != nil {
		panic(err)
	}
	return p
}()

// Builtin returns the default eICR field policy.
func Builtin() *Policy {
	return builtin
}
