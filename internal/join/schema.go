package join

import (
	"github.com/sells-group/geojoin/internal/feature"
)

// FieldNames names the leading output fields and the prefixes applied to
// the copied source and reference attributes.
type FieldNames struct {
	SourceID        string `yaml:"source_id"`
	ReferenceID     string `yaml:"reference_id"`
	Distance        string `yaml:"distance"`
	SourcePrefix    string `yaml:"source_prefix"`
	ReferencePrefix string `yaml:"reference_prefix"`
}

// DefaultFieldNames returns the standard output naming.
func DefaultFieldNames() FieldNames {
	return FieldNames{
		SourceID:        "source_id",
		ReferenceID:     "reference_id",
		Distance:        "distance",
		SourcePrefix:    "src_",
		ReferencePrefix: "ref_",
	}
}

// OutputSchema merges the two input schemas into the joined layer schema:
// the source id, reference id and distance fields, then every source field
// and every reference field with their prefixes, in input order.
func OutputSchema(src, ref feature.Schema, names FieldNames) (feature.Schema, error) {
	for _, n := range []struct{ what, value string }{
		{"source id field", names.SourceID},
		{"reference id field", names.ReferenceID},
		{"distance field", names.Distance},
	} {
		if n.value == "" {
			return nil, &InputError{Reason: n.what + " name is empty"}
		}
	}

	out := make(feature.Schema, 0, 3+len(src)+len(ref))
	out = append(out,
		feature.Field{Name: names.SourceID, Type: feature.TypeInt},
		feature.Field{Name: names.ReferenceID, Type: feature.TypeInt},
		feature.Field{Name: names.Distance, Type: feature.TypeFloat},
	)
	for _, f := range src {
		out = append(out, feature.Field{Name: names.SourcePrefix + f.Name, Type: f.Type})
	}
	for _, f := range ref {
		out = append(out, feature.Field{Name: names.ReferencePrefix + f.Name, Type: f.Type})
	}

	if err := out.Validate(); err != nil {
		return nil, &InputError{Reason: "output schema", Err: err}
	}
	return out, nil
}
