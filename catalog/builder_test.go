package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves canned collections and counts fetch sequences.
type fakeSource struct {
	mu           sync.Mutex
	spaceSystems []SpaceSystem
	parameters   []Parameter
	failures     int
	builds       atomic.Int32
	delay        time.Duration
}

func (f *fakeSource) SpaceSystems(_ context.Context) ([]SpaceSystem, error) {
	f.builds.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("upstream unavailable")
	}
	return f.spaceSystems, nil
}

func (f *fakeSource) Parameters(_ context.Context) ([]Parameter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parameters, nil
}

func floatType() *ParameterType {
	return &ParameterType{EngType: "float"}
}

func TestBuilderSatelliteTree(t *testing.T) {
	source := &fakeSource{
		spaceSystems: []SpaceSystem{
			{Name: "simulator", QualifiedName: "/"},
			{Name: "Sat", QualifiedName: "/Sat"},
		},
		parameters: []Parameter{
			{Name: "Temp", QualifiedName: "/Sat/Temp", Type: floatType()},
		},
	}
	b := NewBuilder(source, "simulator")
	ctx := context.Background()

	root, err := b.Node(ctx, b.RootKey())
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, "~", root.Key)
	assert.Equal(t, "simulator", root.Name)
	assert.Equal(t, KindFolder, root.Kind)
	assert.Equal(t, []string{"~Sat"}, root.Composition)

	sat, err := b.Node(ctx, "~Sat")
	require.NoError(t, err)
	require.NotNil(t, sat)
	assert.Equal(t, "Sat", sat.Name)
	assert.Equal(t, KindFolder, sat.Kind)
	assert.Equal(t, []string{"~Sat~Temp"}, sat.Composition)

	temp, err := b.Node(ctx, "~Sat~Temp")
	require.NoError(t, err)
	require.NotNil(t, temp)
	assert.Equal(t, "Temp", temp.Name)
	assert.Equal(t, KindNumeric, temp.Kind)
	require.NotNil(t, temp.Telemetry)
	require.Len(t, temp.Telemetry.Values, 2)

	value := temp.Telemetry.Values[0]
	assert.Equal(t, "value", value.Key)
	require.NotNil(t, value.Hints)
	assert.Equal(t, 1, value.Hints.Range)

	ts := temp.Telemetry.Values[1]
	assert.Equal(t, "utc", ts.Key)
	assert.Equal(t, "timestamp", ts.Source)
	assert.Equal(t, "iso8601", ts.Format)
	require.NotNil(t, ts.Hints)
	assert.Equal(t, 1, ts.Hints.Domain)
}

func TestBuilderChildOrdering(t *testing.T) {
	source := &fakeSource{
		spaceSystems: []SpaceSystem{
			{Name: "b", QualifiedName: "/b"},
			{Name: "a", QualifiedName: "/a"},
			{Name: "c", QualifiedName: "/c"},
		},
	}
	b := NewBuilder(source, "simulator")

	root, err := b.Node(context.Background(), b.RootKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"~a", "~b", "~c"}, root.Composition)
}

func TestBuilderNestedSpaceSystems(t *testing.T) {
	source := &fakeSource{
		spaceSystems: []SpaceSystem{
			{
				Name:          "Sat",
				QualifiedName: "/Sat",
				Sub: []SpaceSystem{
					{Name: "Power", QualifiedName: "/Sat/Power"},
					{Name: "Comms", QualifiedName: "/Sat/Comms"},
				},
			},
			{Name: "Power", QualifiedName: "/Sat/Power"},
			{Name: "Comms", QualifiedName: "/Sat/Comms"},
		},
	}
	b := NewBuilder(source, "simulator")
	ctx := context.Background()

	sat, err := b.Node(ctx, "~Sat")
	require.NoError(t, err)
	require.NotNil(t, sat)
	assert.Equal(t, []string{"~Sat~Comms", "~Sat~Power"}, sat.Composition)

	// Nested systems are reachable but not direct children of the root.
	root, err := b.Node(ctx, b.RootKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"~Sat"}, root.Composition)
}

func TestBuilderAggregateExpansion(t *testing.T) {
	source := &fakeSource{
		spaceSystems: []SpaceSystem{
			{Name: "Sat", QualifiedName: "/Sat"},
		},
		parameters: []Parameter{
			{
				Name:          "Pos",
				QualifiedName: "/Sat/Pos",
				Type: &ParameterType{
					EngType: "aggregate",
					Member: []Member{
						{Name: "x", Type: floatType()},
						{Name: "y", Type: floatType()},
					},
				},
			},
		},
	}
	b := NewBuilder(source, "simulator")
	ctx := context.Background()

	pos, err := b.Node(ctx, "~Sat~Pos")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, KindFolder, pos.Kind)
	assert.Nil(t, pos.Telemetry)

	x, err := b.Node(ctx, "~Sat~Pos.x")
	require.NoError(t, err)
	require.NotNil(t, x)
	assert.Equal(t, "Pos_x", x.Name)
	assert.Equal(t, KindNumeric, x.Kind)

	y, err := b.Node(ctx, "~Sat~Pos.y")
	require.NoError(t, err)
	require.NotNil(t, y)
	assert.Equal(t, "Pos_y", y.Name)

	sat, err := b.Node(ctx, "~Sat")
	require.NoError(t, err)
	assert.Equal(t, []string{"~Sat~Pos", "~Sat~Pos.x", "~Sat~Pos.y"}, sat.Composition)
}

func TestBuilderOmitAlias(t *testing.T) {
	source := &fakeSource{
		spaceSystems: []SpaceSystem{
			{Name: "Sat", QualifiedName: "/Sat"},
		},
		parameters: []Parameter{
			{Name: "Temp", QualifiedName: "/Sat/Temp", Type: floatType()},
			{
				Name:          "Hidden",
				QualifiedName: "/Sat/Hidden",
				Type:          floatType(),
				Alias:         []Alias{{Namespace: AliasNamespaceOmit, Name: "any"}},
			},
		},
	}
	b := NewBuilder(source, "simulator")
	ctx := context.Background()

	hidden, err := b.Node(ctx, "~Sat~Hidden")
	require.NoError(t, err)
	assert.Nil(t, hidden)

	sat, err := b.Node(ctx, "~Sat")
	require.NoError(t, err)
	assert.Equal(t, []string{"~Sat~Temp"}, sat.Composition)
}

func TestBuilderTypeOverride(t *testing.T) {
	source := &fakeSource{
		spaceSystems: []SpaceSystem{
			{Name: "Sat", QualifiedName: "/Sat"},
		},
		parameters: []Parameter{
			{
				Name:          "Camera",
				QualifiedName: "/Sat/Camera",
				Type:          &ParameterType{EngType: "binary"},
				Alias:         []Alias{{Namespace: AliasNamespaceType, Name: "image-telemetry"}},
			},
		},
	}
	b := NewBuilder(source, "simulator")

	camera, err := b.Node(context.Background(), "~Sat~Camera")
	require.NoError(t, err)
	require.NotNil(t, camera)
	assert.Equal(t, KindImage, camera.Kind)
	require.NotNil(t, camera.Telemetry)
	assert.Equal(t, "image", camera.Telemetry.Values[0].Format)
}

func TestBuilderDropsUnresolvableParent(t *testing.T) {
	source := &fakeSource{
		spaceSystems: []SpaceSystem{
			{Name: "Sat", QualifiedName: "/Sat"},
		},
		parameters: []Parameter{
			{Name: "Temp", QualifiedName: "/Sat/Temp", Type: floatType()},
			{Name: "Lost", QualifiedName: "/Ghost/Lost", Type: floatType()},
		},
	}
	b := NewBuilder(source, "simulator")
	ctx := context.Background()

	lost, err := b.Node(ctx, "~Ghost~Lost")
	require.NoError(t, err)
	assert.Nil(t, lost)

	temp, err := b.Node(ctx, "~Sat~Temp")
	require.NoError(t, err)
	assert.NotNil(t, temp)
}

func TestBuilderUnknownKey(t *testing.T) {
	source := &fakeSource{}
	b := NewBuilder(source, "simulator")

	node, err := b.Node(context.Background(), "~Nope")
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestBuilderSingleInflightBuild(t *testing.T) {
	source := &fakeSource{
		spaceSystems: []SpaceSystem{
			{Name: "Sat", QualifiedName: "/Sat"},
		},
		delay: 50 * time.Millisecond,
	}
	b := NewBuilder(source, "simulator")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			node, err := b.Node(ctx, "~Sat")
			assert.NoError(t, err)
			assert.NotNil(t, node)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), source.builds.Load())
}

func TestBuilderFailedBuildRetries(t *testing.T) {
	source := &fakeSource{
		spaceSystems: []SpaceSystem{
			{Name: "Sat", QualifiedName: "/Sat"},
		},
		failures: 1,
	}
	b := NewBuilder(source, "simulator")
	ctx := context.Background()

	_, err := b.Node(ctx, "~Sat")
	require.Error(t, err)

	node, err := b.Node(ctx, "~Sat")
	require.NoError(t, err)
	assert.NotNil(t, node)
	assert.Equal(t, int32(2), source.builds.Load())
}

func TestBuilderReturnsCopies(t *testing.T) {
	source := &fakeSource{
		spaceSystems: []SpaceSystem{
			{Name: "Sat", QualifiedName: "/Sat"},
		},
		parameters: []Parameter{
			{Name: "Temp", QualifiedName: "/Sat/Temp", Type: floatType()},
		},
	}
	b := NewBuilder(source, "simulator")
	ctx := context.Background()

	first, err := b.Node(ctx, "~Sat")
	require.NoError(t, err)
	first.Name = "mutated"
	first.Composition[0] = "mutated"

	second, err := b.Node(ctx, "~Sat")
	require.NoError(t, err)
	assert.Equal(t, "Sat", second.Name)
	assert.Equal(t, []string{"~Sat~Temp"}, second.Composition)
}

func TestBuilderChildren(t *testing.T) {
	source := &fakeSource{
		spaceSystems: []SpaceSystem{
			{Name: "Sat", QualifiedName: "/Sat"},
		},
		parameters: []Parameter{
			{Name: "Temp", QualifiedName: "/Sat/Temp", Type: floatType()},
			{Name: "Mode", QualifiedName: "/Sat/Mode", Type: &ParameterType{EngType: "enumeration"}},
		},
	}
	b := NewBuilder(source, "simulator")

	children, err := b.Children(context.Background(), "~Sat")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Temp", children[0].Name)
	assert.Equal(t, KindNumeric, children[0].Kind)
	assert.Equal(t, "Mode", children[1].Name)
	assert.Equal(t, KindString, children[1].Kind)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		ptype   *ParameterType
		aliases []Alias
		want    Kind
	}{
		{name: "nil type defaults numeric", want: KindNumeric},
		{name: "integer", ptype: &ParameterType{EngType: "integer"}, want: KindNumeric},
		{name: "float", ptype: &ParameterType{EngType: "float"}, want: KindNumeric},
		{name: "string", ptype: &ParameterType{EngType: "string"}, want: KindString},
		{name: "enumeration", ptype: &ParameterType{EngType: "enumeration"}, want: KindString},
		{name: "boolean", ptype: &ParameterType{EngType: "boolean"}, want: KindString},
		{
			name:    "override wins over type",
			ptype:   &ParameterType{EngType: "float"},
			aliases: []Alias{{Namespace: AliasNamespaceType, Name: "string-telemetry"}},
			want:    KindString,
		},
		{
			name:    "override to image",
			ptype:   &ParameterType{EngType: "binary"},
			aliases: []Alias{{Namespace: AliasNamespaceType, Name: "image-telemetry"}},
			want:    KindImage,
		},
		{
			name:    "invalid override ignored",
			ptype:   &ParameterType{EngType: "float"},
			aliases: []Alias{{Namespace: AliasNamespaceType, Name: "bogus"}},
			want:    KindNumeric,
		},
		{
			name:    "folder override ignored",
			ptype:   &ParameterType{EngType: "float"},
			aliases: []Alias{{Namespace: AliasNamespaceType, Name: "folder"}},
			want:    KindNumeric,
		},
		{
			name:    "unrelated namespace ignored",
			ptype:   &ParameterType{EngType: "float"},
			aliases: []Alias{{Namespace: "MDB:OPS Name", Name: "string-telemetry"}},
			want:    KindNumeric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.ptype, tt.aliases))
		})
	}
}

func TestIsTopLevel(t *testing.T) {
	assert.True(t, isTopLevel("/Sat"))
	assert.False(t, isTopLevel("/Sat/Power"))
	assert.False(t, isTopLevel("Sat"))
}
