package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/groundlink/errors"
)

func TestToKey(t *testing.T) {
	tests := []struct {
		name          string
		qualifiedName string
		expected      string
	}{
		{"root", "/", "~"},
		{"top-level folder", "/Sat", "~Sat"},
		{"nested parameter", "/Sat/Power/Bus_Voltage", "~Sat~Power~Bus_Voltage"},
		{"aggregate member", "/Sat/pos.x", "~Sat~pos.x"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, ToKey(test.qualifiedName))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	qualifiedNames := []string{
		"/",
		"/Sat",
		"/Sat/Temp",
		"/Sat/Power/Bus_Voltage",
		"/Sat/pos.x",
		"/Deep/Nested/Path/With/Many/Segments",
	}

	for _, qn := range qualifiedNames {
		t.Run(qn, func(t *testing.T) {
			back, err := ToQualifiedName(ToKey(qn))
			require.NoError(t, err)
			assert.Equal(t, qn, back)
		})
	}
}

func TestToQualifiedName_Malformed(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"contains separator", "~Sat/Temp"},
		{"raw qualified name", "/Sat/Temp"},
		{"missing leading tilde", "Sat~Temp"},
		{"empty", ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ToQualifiedName(test.key)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorContains(t, err, "malformed identifier")
		})
	}
}

func TestParentQualifiedName(t *testing.T) {
	tests := []struct {
		name          string
		qualifiedName string
		parent        string
		ok            bool
	}{
		{"nested parameter", "/Sat/Temp", "/Sat", true},
		{"deeply nested", "/Sat/Power/Bus_Voltage", "/Sat/Power", true},
		{"aggregate member keeps folder parent", "/Sat/pos.x", "/Sat", true},
		{"top-level folder has no parent", "/Sat", "", false},
		{"root has no parent", "/", "", false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			parent, ok := ParentQualifiedName(test.qualifiedName)
			assert.Equal(t, test.ok, ok)
			assert.Equal(t, test.parent, parent)
		})
	}
}
