package model

// Attributes are the structured fields an extractor derives from a
// listing's free-text name. Empty string means the field could not be
// determined.
type Attributes struct {
	// Series is the source work (anime/game/manga title).
	Series string `db:"series"`

	// Character is the depicted character's name, unnormalized.
	Character string `db:"character_name"`

	// Manufacturer is the normalized manufacturer, which may differ
	// from the store's raw manufacturer text.
	Manufacturer string `db:"extracted_manufacturer"`

	// Scale is the figure scale ("1/7", "non-scale", ...).
	Scale string `db:"scale"`

	// Version is the edition/variant ("bunny ver.", "rerelease", ...).
	Version string `db:"version"`

	// ProductLine is the named line ("figma", "POP UP PARADE", ...).
	ProductLine string `db:"product_line"`

	// ProductType is the broad kind ("figure", "plushie", ...).
	ProductType string `db:"product_type"`
}

// Empty reports whether no field was extracted at all.
func (a Attributes) Empty() bool {
	return a == Attributes{}
}
