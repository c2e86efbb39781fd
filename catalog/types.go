package catalog

// Kind classifies a catalog node.
type Kind string

// Node kinds. Folders group other nodes; the three telemetry kinds are
// leaves distinguished by how their values should be interpreted.
const (
	KindFolder  Kind = "folder"
	KindNumeric Kind = "numeric-telemetry"
	KindString  Kind = "string-telemetry"
	KindImage   Kind = "image-telemetry"
)

// ParseKind returns the Kind named by s, if any. Used to resolve explicit
// type-override alias tags on parameters.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindFolder, KindNumeric, KindString, KindImage:
		return Kind(s), true
	default:
		return "", false
	}
}

// IsTelemetry reports whether the kind is a telemetry leaf.
func (k Kind) IsTelemetry() bool {
	return k == KindNumeric || k == KindString || k == KindImage
}

// Hints describe how a value field should be used by a consumer:
// Range marks a plottable value axis, Domain marks the temporal axis.
type Hints struct {
	Range  int `json:"range,omitempty"`
	Domain int `json:"domain,omitempty"`
}

// ValueMetadata describes one field of a telemetry point.
type ValueMetadata struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
	Format string `json:"format,omitempty"`
	Hints  *Hints `json:"hints,omitempty"`
}

// TelemetryMetadata describes the fields carried by samples of a
// telemetry leaf: the engineering value plus the shared timestamp field.
type TelemetryMetadata struct {
	Values []ValueMetadata `json:"values"`
}

// Node is one catalog entry. Folder nodes own an ordered Composition of
// child keys; telemetry nodes instead carry Telemetry metadata. Nodes are
// owned by the catalog: lookups return defensive copies, never aliases
// into the built dictionary.
type Node struct {
	Key         string             `json:"key"`
	Name        string             `json:"name"`
	Kind        Kind               `json:"kind"`
	Composition []string           `json:"composition,omitempty"`
	Telemetry   *TelemetryMetadata `json:"telemetry,omitempty"`
}

// clone returns a deep copy of the node.
func (n *Node) clone() *Node {
	out := &Node{
		Key:  n.Key,
		Name: n.Name,
		Kind: n.Kind,
	}
	if n.Composition != nil {
		out.Composition = make([]string, len(n.Composition))
		copy(out.Composition, n.Composition)
	}
	if n.Telemetry != nil {
		values := make([]ValueMetadata, len(n.Telemetry.Values))
		copy(values, n.Telemetry.Values)
		for i, v := range values {
			if v.Hints != nil {
				h := *v.Hints
				values[i].Hints = &h
			}
		}
		out.Telemetry = &TelemetryMetadata{Values: values}
	}
	return out
}

// telemetryFor builds the value/timestamp field metadata for a leaf of
// the given kind. Numeric and image leaves mark the value field as a
// range; image leaves additionally carry the image format. The timestamp
// field is shared by all kinds: sourced from the sample's timestamp,
// ISO-8601 formatted, marked as the temporal domain.
func telemetryFor(kind Kind) *TelemetryMetadata {
	value := ValueMetadata{
		Key:  "value",
		Name: "Value",
	}
	switch kind {
	case KindNumeric:
		value.Hints = &Hints{Range: 1}
	case KindImage:
		value.Hints = &Hints{Range: 1}
		value.Format = "image"
	}

	timestamp := ValueMetadata{
		Key:    "utc",
		Name:   "Timestamp",
		Source: "timestamp",
		Format: "iso8601",
		Hints:  &Hints{Domain: 1},
	}

	return &TelemetryMetadata{Values: []ValueMetadata{value, timestamp}}
}
