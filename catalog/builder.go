// Package catalog builds and serves the hierarchical dictionary of
// addressable telemetry objects for one server instance. The dictionary
// is assembled once, lazily, from the server's paginated mission-database
// collections: space systems become folder nodes, parameters become
// telemetry leaves, and aggregate parameters expand recursively into
// synthetic folders with one child per member.
package catalog

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/c360/groundlink/errors"
	"github.com/c360/groundlink/identifier"
	"github.com/c360/groundlink/metric"
)

// RootQualifiedName is the qualified name of the synthetic instance root.
const RootQualifiedName = "/"

// Builder produces and caches the catalog dictionary. The build runs at
// most once concurrently: callers arriving while a build is in flight
// await the shared result. A failed build is not cached; the next lookup
// retries from scratch.
type Builder struct {
	source   Source
	instance string
	logger   *slog.Logger
	metrics  *builderMetrics
	timeout  time.Duration

	mu       sync.Mutex
	nodes    map[string]*Node
	inflight *buildFuture
}

type buildFuture struct {
	done  chan struct{}
	nodes map[string]*Node
	err   error
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics registers builder metrics with the given registry.
func WithMetrics(registry *metric.Registry) BuilderOption {
	return func(b *Builder) {
		b.metrics = newBuilderMetrics(registry)
	}
}

// WithBuildTimeout bounds a single build attempt. The build runs
// detached from any one caller's context so that concurrent callers
// share its outcome; this timeout is its only deadline.
func WithBuildTimeout(d time.Duration) BuilderOption {
	return func(b *Builder) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewBuilder creates a catalog builder for the given instance.
func NewBuilder(source Source, instance string, opts ...BuilderOption) *Builder {
	b := &Builder{
		source:   source,
		instance: instance,
		logger:   slog.Default(),
		timeout:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RootKey returns the key of the catalog's root folder node.
func (b *Builder) RootKey() string {
	return identifier.ToKey(RootQualifiedName)
}

// Node returns the catalog node for key, building the dictionary on
// first use. Unknown keys return (nil, nil): absence is not an error.
// The returned node is a copy; mutating it does not affect the catalog.
func (b *Builder) Node(ctx context.Context, key string) (*Node, error) {
	nodes, err := b.dictionary(ctx)
	if err != nil {
		return nil, err
	}
	node, ok := nodes[key]
	if !ok {
		return nil, nil
	}
	return node.clone(), nil
}

// Children returns copies of the child nodes of the folder named by key,
// in composition order. A non-folder or unknown key yields no children.
func (b *Builder) Children(ctx context.Context, key string) ([]*Node, error) {
	nodes, err := b.dictionary(ctx)
	if err != nil {
		return nil, err
	}
	parent, ok := nodes[key]
	if !ok {
		return nil, nil
	}
	children := make([]*Node, 0, len(parent.Composition))
	for _, childKey := range parent.Composition {
		if child, ok := nodes[childKey]; ok {
			children = append(children, child.clone())
		}
	}
	return children, nil
}

// dictionary returns the built node mapping, triggering or joining a
// build as needed.
func (b *Builder) dictionary(ctx context.Context) (map[string]*Node, error) {
	b.mu.Lock()
	if b.nodes != nil {
		nodes := b.nodes
		b.mu.Unlock()
		return nodes, nil
	}
	fut := b.inflight
	if fut == nil {
		fut = &buildFuture{done: make(chan struct{})}
		b.inflight = fut
		go b.runBuild(fut)
	}
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, errors.WrapTransient(ctx.Err(), "Builder", "dictionary", "await build")
	case <-fut.done:
		return fut.nodes, fut.err
	}
}

// runBuild executes one build attempt and publishes its result to every
// waiter. On success the mapping is cached for the builder's lifetime;
// on failure the in-flight marker is cleared so a later call rebuilds.
func (b *Builder) runBuild(fut *buildFuture) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	started := time.Now()
	nodes, err := b.build(ctx)

	b.mu.Lock()
	if err == nil {
		b.nodes = nodes
	}
	b.inflight = nil
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.observeBuild(time.Since(started), len(nodes), err)
	}
	if err != nil {
		b.logger.Error("catalog build failed", "instance", b.instance, "error", err)
	} else {
		b.logger.Info("catalog built",
			"instance", b.instance,
			"nodes", len(nodes),
			"elapsed", time.Since(started))
	}

	fut.nodes = nodes
	fut.err = err
	close(fut.done)
}

// build fetches the metadata collections and assembles the dictionary.
func (b *Builder) build(ctx context.Context) (map[string]*Node, error) {
	spaceSystems, err := b.source.SpaceSystems(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Builder", "build", "fetch space systems")
	}
	parameters, err := b.source.Parameters(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Builder", "build", "fetch parameters")
	}

	nodes := make(map[string]*Node, len(spaceSystems)+len(parameters)+1)
	root := &Node{
		Key:  b.RootKey(),
		Name: b.instance,
		Kind: KindFolder,
	}
	nodes[root.Key] = root

	// Sort once for deterministic, stable child ordering.
	ordered := make([]SpaceSystem, len(spaceSystems))
	copy(ordered, spaceSystems)
	slices.SortStableFunc(ordered, func(a, c SpaceSystem) int {
		return strings.Compare(a.Name, c.Name)
	})

	for _, ss := range ordered {
		// The synthetic root already exists.
		if ss.QualifiedName == RootQualifiedName {
			continue
		}
		b.addSpaceSystem(nodes, ss)
		if isTopLevel(ss.QualifiedName) {
			root.Composition = append(root.Composition, identifier.ToKey(ss.QualifiedName))
		}
	}

	for _, p := range parameters {
		b.addParameter(nodes, p.QualifiedName, p.Name, p.Type, p.Alias)
	}

	return nodes, nil
}

// addSpaceSystem creates a folder node, seeding its composition with its
// declared sub-folders in name order.
func (b *Builder) addSpaceSystem(nodes map[string]*Node, ss SpaceSystem) {
	node := &Node{
		Key:  identifier.ToKey(ss.QualifiedName),
		Name: ss.Name,
		Kind: KindFolder,
	}

	if len(ss.Sub) > 0 {
		subs := make([]SpaceSystem, len(ss.Sub))
		copy(subs, ss.Sub)
		slices.SortStableFunc(subs, func(a, c SpaceSystem) int {
			return strings.Compare(a.Name, c.Name)
		})
		for _, sub := range subs {
			qn := sub.QualifiedName
			if qn == "" {
				qn = ss.QualifiedName + "/" + sub.Name
			}
			node.Composition = append(node.Composition, identifier.ToKey(qn))
		}
	}

	nodes[node.Key] = node
}

// addParameter creates the node(s) for one parameter and attaches them to
// the resolved parent folder. Aggregate parameters become folders and
// recurse into their members; a parameter whose parent folder cannot be
// resolved is dropped, not errored.
func (b *Builder) addParameter(
	nodes map[string]*Node,
	qualifiedName, name string,
	ptype *ParameterType,
	aliases []Alias,
) {
	if _, omitted := hasAlias(aliases, AliasNamespaceOmit); omitted {
		return
	}

	parentQN, ok := identifier.ParentQualifiedName(qualifiedName)
	if !ok {
		b.logger.Debug("dropping parameter without parent path", "qualifiedName", qualifiedName)
		b.dropParameter()
		return
	}
	parent, ok := nodes[identifier.ToKey(parentQN)]
	if !ok {
		b.logger.Debug("dropping parameter with unresolvable parent",
			"qualifiedName", qualifiedName, "parent", parentQN)
		b.dropParameter()
		return
	}

	key := identifier.ToKey(qualifiedName)

	if ptype != nil && strings.EqualFold(ptype.EngType, "aggregate") {
		folder := &Node{
			Key:         key,
			Name:        name,
			Kind:        KindFolder,
			Composition: []string{},
		}
		nodes[key] = folder
		parent.Composition = append(parent.Composition, key)

		for _, member := range ptype.Member {
			b.addParameter(nodes,
				qualifiedName+"."+member.Name,
				name+"_"+member.Name,
				member.Type,
				nil)
		}
		return
	}

	kind := classify(ptype, aliases)
	nodes[key] = &Node{
		Key:       key,
		Name:      name,
		Kind:      kind,
		Telemetry: telemetryFor(kind),
	}
	parent.Composition = append(parent.Composition, key)
}

func (b *Builder) dropParameter() {
	if b.metrics != nil {
		b.metrics.parametersDropped.Inc()
	}
}

// classify determines the telemetry kind of a non-aggregate parameter.
// Priority: explicit type-override alias; then numeric for entries
// lacking type info (built-ins); then engineering type, where integer
// and float map to numeric and everything else to string. Image is only
// reachable through the override alias.
func classify(ptype *ParameterType, aliases []Alias) Kind {
	if name, ok := hasAlias(aliases, AliasNamespaceType); ok {
		if kind, valid := ParseKind(name); valid && kind.IsTelemetry() {
			return kind
		}
	}
	if ptype == nil {
		return KindNumeric
	}
	switch strings.ToLower(ptype.EngType) {
	case "integer", "float":
		return KindNumeric
	default:
		return KindString
	}
}

// isTopLevel reports whether the qualified name's only path separator is
// the leading one.
func isTopLevel(qualifiedName string) bool {
	return strings.HasPrefix(qualifiedName, "/") &&
		strings.Count(qualifiedName, "/") == 1
}
