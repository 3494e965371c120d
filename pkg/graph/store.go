package graph

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/btree"

	"github.com/sanonone/pharmakg/pkg/annotation"
	"github.com/sanonone/pharmakg/pkg/variant"
)

// numStripes is the size of the per-key lock pool. Keys are hashed onto
// the pool, so unrelated keys sharing a stripe only cost contention,
// never correctness.
const numStripes = 64

type node struct {
	typ   NodeType
	key   string
	attrs Attributes

	// Variant-only state. The store keeps every fragment ever applied
	// (deduplicated per source and kind) and recomputes the merged view
	// on each change; merging a commutative fragment set is what makes
	// annotation upserts order-independent.
	fragments []annotation.Fragment
	merged    annotation.Annotated
	conflict  error
}

type edgeKey struct {
	typ  EdgeType
	from string
	to   string
}

type edge struct {
	key     edgeKey
	attrs   Attributes
	studies map[string]struct{}
}

type endpoint struct {
	typ NodeType
	key string
}

type posEntry struct {
	pos int
	key string
}

// Store is the in-memory knowledge graph. All exported methods are safe
// for concurrent use.
//
// Locking is two-level: mu guards the map structure and adjacency lists
// with short critical sections, while a striped lock pool serializes
// mutations of any single node or edge so that a multi-field merge is
// applied atomically per key. Writers take the stripe first and mu only
// inside it; readers never hold both at once.
type Store struct {
	mu      sync.RWMutex
	stripes [numStripes]sync.RWMutex

	nodes map[NodeType]map[string]*node
	edges map[edgeKey]*edge
	out   map[endpoint]map[EdgeType][]*edge
	in    map[endpoint]map[EdgeType][]*edge

	// byPos orders variants per chromosome for range scans.
	byPos map[string]*btree.BTreeG[posEntry]

	backend Backend
	retry   RetryPolicy
	logger  *slog.Logger
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		nodes:  make(map[NodeType]map[string]*node),
		edges:  make(map[edgeKey]*edge),
		out:    make(map[endpoint]map[EdgeType][]*edge),
		in:     make(map[endpoint]map[EdgeType][]*edge),
		byPos:  make(map[string]*btree.BTreeG[posEntry]),
		logger: slog.Default().With("component", "graph"),
	}
}

// NewWithBackend creates a store that mirrors every applied mutation to a
// durable backend. The in-memory state remains the source of truth: the
// mutation is applied locally first, then pushed with retries per policy.
func NewWithBackend(b Backend, policy RetryPolicy) *Store {
	s := New()
	s.backend = b
	s.retry = policy
	return s
}

func lessPos(a, b posEntry) bool {
	if a.pos != b.pos {
		return a.pos < b.pos
	}
	return a.key < b.key
}

func (s *Store) stripe(typ NodeType, key string) *sync.RWMutex {
	h := fnv.New32a()
	h.Write([]byte(string(typ)))
	h.Write([]byte{':'})
	h.Write([]byte(key))
	return &s.stripes[h.Sum32()%numStripes]
}

func (s *Store) edgeStripe(k edgeKey) *sync.RWMutex {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s|%s", k.typ, k.from, k.to)
	return &s.stripes[h.Sum32()%numStripes]
}

// canonicalKey applies the per-type key normalization. Drug names are
// matched case-insensitively across sources, so their canonical key is
// lower case. Variant keys are assumed already canonical (see
// pkg/variant); gene symbols and study ids are used verbatim.
func canonicalKey(typ NodeType, key string) string {
	key = strings.TrimSpace(key)
	if typ == NodeDrug {
		return strings.ToLower(key)
	}
	return key
}

// getNode returns the live node pointer, or nil. Callers must hold the
// node's stripe (at least read-locked) before touching its fields.
func (s *Store) getNode(typ NodeType, key string) *node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[typ][key]
}

// ensureNode returns the node for (typ, key), creating a stub if absent.
// It acquires and releases the node's stripe internally and never nests
// stripe locks, so it is safe to call for several endpoints in sequence.
func (s *Store) ensureNode(typ NodeType, key string) *node {
	st := s.stripe(typ, key)
	st.Lock()
	defer st.Unlock()
	return s.ensureNodeLocked(typ, key)
}

// indexVariantLocked adds a variant key to the positional index. Keys
// that do not parse (foreign stubs) are simply not range-queryable.
// Caller holds s.mu.
func (s *Store) indexVariantLocked(key string) {
	vk, err := variant.Normalize(key)
	if err != nil {
		return
	}
	tr := s.byPos[vk.Chrom]
	if tr == nil {
		tr = btree.NewBTreeG(lessPos)
		s.byPos[vk.Chrom] = tr
	}
	tr.Set(posEntry{pos: vk.Pos, key: key})
}

// UpsertNode creates the node if absent and merges attrs into it:
// last-write-wins per attribute, with nil values ignored so partial
// records never erase earlier state. Re-applying the same call is a
// no-op. Variant attributes are owned by the annotation pipeline and
// flow exclusively through ApplyFragments; attrs passed here for a
// Variant are rejected.
func (s *Store) UpsertNode(typ NodeType, key string, attrs Attributes) error {
	if !typ.Valid() {
		return integrityErr("UpsertNode", "unknown node type %q", typ)
	}
	key = canonicalKey(typ, key)
	if key == "" {
		return integrityErr("UpsertNode", "empty %s key", typ)
	}
	if typ == NodeVariant && len(attrs) > 0 {
		return integrityErr("UpsertNode", "variant %s: attributes must be applied as annotation fragments", key)
	}

	st := s.stripe(typ, key)
	st.Lock()
	n := s.ensureNodeLocked(typ, key)
	for k, v := range attrs {
		if v == nil {
			continue
		}
		n.attrs[k] = v
	}
	view := viewOf(n)
	st.Unlock()

	return s.mirrorNode(view)
}

// ensureNodeLocked is ensureNode for callers already holding the node's
// stripe lock.
func (s *Store) ensureNodeLocked(typ NodeType, key string) *node {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey := s.nodes[typ]
	if byKey == nil {
		byKey = make(map[string]*node)
		s.nodes[typ] = byKey
	}
	if n := byKey[key]; n != nil {
		return n
	}
	n := &node{typ: typ, key: key, attrs: make(Attributes)}
	byKey[key] = n
	if typ == NodeVariant {
		s.indexVariantLocked(key)
	}
	return n
}

// UpsertRelationship creates or updates the (typ, from, to) edge.
// Endpoint stubs are created as needed, attrs merge last-write-wins on
// non-nil values and the supporting-study set grows by union, so
// re-applying any call sequence in any order converges to the same edge.
//
// AFFECTS and TREATS require at least one study key
// (ErrNoSupportingStudies otherwise). A HAS_VARIANT upsert asserts the
// variant's primary gene: any HAS_VARIANT edge from a different gene is
// re-pointed, keeping exactly one per variant.
func (s *Store) UpsertRelationship(typ EdgeType, from, to string, attrs Attributes, studyKeys []string) error {
	schema, ok := edgeSchema[typ]
	if !ok {
		return integrityErr("UpsertRelationship", "unknown edge type %q", typ)
	}
	from = canonicalKey(schema[0], from)
	to = canonicalKey(schema[1], to)
	if from == "" || to == "" {
		return integrityErr("UpsertRelationship", "%s edge with empty endpoint (%q -> %q)", typ, from, to)
	}
	if typ.requiresStudies() && len(studyKeys) == 0 {
		return fmt.Errorf("%s %s -> %s: %w", typ, from, to, ErrNoSupportingStudies)
	}
	if !typ.requiresStudies() && len(studyKeys) > 0 {
		return integrityErr("UpsertRelationship", "%s edge does not carry studies", typ)
	}

	// Endpoints and study stubs first; each call locks and releases its
	// own stripe, so ordering cannot deadlock.
	s.ensureNode(schema[0], from)
	s.ensureNode(schema[1], to)
	for _, sk := range studyKeys {
		if strings.TrimSpace(sk) == "" {
			return integrityErr("UpsertRelationship", "%s %s -> %s: blank study key", typ, from, to)
		}
		s.ensureNode(NodeStudy, sk)
	}

	ek := edgeKey{typ: typ, from: from, to: to}
	st := s.edgeStripe(ek)
	st.Lock()

	s.mu.Lock()
	e := s.edges[ek]
	created := e == nil
	if created {
		e = &edge{key: ek, attrs: make(Attributes), studies: make(map[string]struct{})}
		s.edges[ek] = e
		s.link(schema, e)
	}
	if typ == EdgeHasVariant {
		s.repointHasVariantLocked(from, to)
	}
	s.mu.Unlock()

	for k, v := range attrs {
		if v == nil {
			continue
		}
		e.attrs[k] = v
	}
	for _, sk := range studyKeys {
		e.studies[sk] = struct{}{}
	}
	view := viewOfEdge(e)
	st.Unlock()

	return s.mirrorEdge(view)
}

// link inserts the edge into both adjacency maps. Caller holds s.mu.
func (s *Store) link(schema [2]NodeType, e *edge) {
	fromEP := endpoint{typ: schema[0], key: e.key.from}
	toEP := endpoint{typ: schema[1], key: e.key.to}
	if s.out[fromEP] == nil {
		s.out[fromEP] = make(map[EdgeType][]*edge)
	}
	s.out[fromEP][e.key.typ] = append(s.out[fromEP][e.key.typ], e)
	if s.in[toEP] == nil {
		s.in[toEP] = make(map[EdgeType][]*edge)
	}
	s.in[toEP][e.key.typ] = append(s.in[toEP][e.key.typ], e)
}

// repointHasVariantLocked removes HAS_VARIANT edges into the variant
// from any gene other than the asserted one. Caller holds s.mu.
func (s *Store) repointHasVariantLocked(gene, variantKey string) {
	ep := endpoint{typ: NodeVariant, key: variantKey}
	existing := s.in[ep][EdgeHasVariant]
	kept := existing[:0]
	for _, e := range existing {
		if e.key.from == gene {
			kept = append(kept, e)
			continue
		}
		delete(s.edges, e.key)
		geneEP := endpoint{typ: NodeGene, key: e.key.from}
		s.out[geneEP][EdgeHasVariant] = removeEdge(s.out[geneEP][EdgeHasVariant], e)
		s.logger.Debug("re-pointed variant to new primary gene",
			"variant", variantKey, "old_gene", e.key.from, "new_gene", gene)
	}
	s.in[ep][EdgeHasVariant] = kept
}

func removeEdge(list []*edge, target *edge) []*edge {
	for i, e := range list {
		if e == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// ApplyFragments folds annotation fragments into a variant node. The
// store retains one fragment per (source, kind) pair, replacing earlier
// assertions from the same source, and recomputes the merged view from
// the full retained set, which makes the result independent of arrival
// order and immune to lower-trust late arrivals degrading it.
//
// A Tier-1 conflict is returned as *annotation.ConflictError; the
// partial merge (conflicted field absent) is still stored and returned.
func (s *Store) ApplyFragments(key variant.Key, frags []annotation.Fragment) (annotation.Annotated, error) {
	if key.IsZero() {
		return annotation.Annotated{}, integrityErr("ApplyFragments", "zero variant key")
	}
	ks := key.String()

	st := s.stripe(NodeVariant, ks)
	st.Lock()
	n := s.ensureNodeLocked(NodeVariant, ks)

	next := make([]annotation.Fragment, 0, len(n.fragments)+len(frags))
	replaced := func(old annotation.Fragment) bool {
		for _, f := range frags {
			if f.Source == old.Source && f.Kind == old.Kind {
				return true
			}
		}
		return false
	}
	for _, old := range n.fragments {
		if !replaced(old) {
			next = append(next, old)
		}
	}
	next = append(next, frags...)

	merged, err := annotation.Merge(key, next)
	var conflict *annotation.ConflictError
	if err != nil && !errors.As(err, &conflict) {
		// Validation failure: reject the batch, keep prior state.
		st.Unlock()
		return annotation.Annotated{}, err
	}
	n.fragments = next
	n.merged = merged
	n.conflict = nil
	if err != nil {
		n.conflict = err
	}
	view := viewOf(n)
	st.Unlock()

	if merr := s.mirrorNode(view); merr != nil {
		return merged, merr
	}
	return merged, err
}

// Annotation returns the merged annotation view of a variant and whether
// the variant exists in the graph.
func (s *Store) Annotation(key variant.Key) (annotation.Annotated, bool) {
	ks := key.String()
	n := s.getNode(NodeVariant, ks)
	if n == nil {
		return annotation.Annotated{}, false
	}
	st := s.stripe(NodeVariant, ks)
	st.RLock()
	defer st.RUnlock()
	return n.merged, true
}

// GetNode returns a read-only copy of the node.
func (s *Store) GetNode(typ NodeType, key string) (NodeView, bool) {
	key = canonicalKey(typ, key)
	n := s.getNode(typ, key)
	if n == nil {
		return NodeView{}, false
	}
	st := s.stripe(typ, key)
	st.RLock()
	defer st.RUnlock()
	return viewOf(n), true
}

// Study returns the typed projection of a Study node.
func (s *Store) Study(key string) (StudyView, bool) {
	nv, ok := s.GetNode(NodeStudy, key)
	if !ok {
		return StudyView{}, false
	}
	sv := StudyView{Key: key}
	if v, ok := nv.Attrs[AttrEffectSize].(float64); ok {
		sv.EffectSize = v
	}
	switch v := nv.Attrs[AttrSampleSize].(type) {
	case int:
		sv.SampleSize = v
	case float64:
		sv.SampleSize = int(v)
	}
	if v, ok := nv.Attrs[AttrPubRef].(string); ok {
		sv.PubRef = v
	}
	return sv, true
}

// OutEdges returns copies of the outgoing edges of the given type.
func (s *Store) OutEdges(typ NodeType, key string, et EdgeType) []EdgeView {
	return s.edgeViews(s.adjacency(true, typ, key, et))
}

// InEdges returns copies of the incoming edges of the given type.
func (s *Store) InEdges(typ NodeType, key string, et EdgeType) []EdgeView {
	return s.edgeViews(s.adjacency(false, typ, key, et))
}

func (s *Store) adjacency(outgoing bool, typ NodeType, key string, et EdgeType) []*edge {
	key = canonicalKey(typ, key)
	ep := endpoint{typ: typ, key: key}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []*edge
	if outgoing {
		list = s.out[ep][et]
	} else {
		list = s.in[ep][et]
	}
	cp := make([]*edge, len(list))
	copy(cp, list)
	return cp
}

func (s *Store) edgeViews(list []*edge) []EdgeView {
	if len(list) == 0 {
		return nil
	}
	views := make([]EdgeView, 0, len(list))
	for _, e := range list {
		st := s.edgeStripe(e.key)
		st.RLock()
		views = append(views, viewOfEdge(e))
		st.RUnlock()
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].From != views[j].From {
			return views[i].From < views[j].From
		}
		return views[i].To < views[j].To
	})
	return views
}

// VariantsOfGene returns the variant keys linked to a gene, sorted.
func (s *Store) VariantsOfGene(gene string) []string {
	edges := s.OutEdges(NodeGene, gene, EdgeHasVariant)
	keys := make([]string, 0, len(edges))
	for _, e := range edges {
		keys = append(keys, e.To)
	}
	sort.Strings(keys)
	return keys
}

// GeneOfVariant returns the primary gene of a variant, if linked.
func (s *Store) GeneOfVariant(variantKey string) (string, bool) {
	edges := s.InEdges(NodeVariant, variantKey, EdgeHasVariant)
	if len(edges) == 0 {
		return "", false
	}
	return edges[0].From, true
}

// VariantsInRange returns the variant keys on a chromosome whose
// position lies in [lo, hi], in positional order.
func (s *Store) VariantsInRange(chrom string, lo, hi int) []string {
	s.mu.RLock()
	tr := s.byPos[chrom]
	s.mu.RUnlock()
	if tr == nil {
		return nil
	}
	var keys []string
	tr.Ascend(posEntry{pos: lo}, func(e posEntry) bool {
		if e.pos > hi {
			return false
		}
		keys = append(keys, e.key)
		return true
	})
	return keys
}

// Fragments returns a copy of the retained annotation fragments of a
// variant, used when compacting the journal.
func (s *Store) Fragments(key variant.Key) []annotation.Fragment {
	ks := key.String()
	n := s.getNode(NodeVariant, ks)
	if n == nil {
		return nil
	}
	st := s.stripe(NodeVariant, ks)
	st.RLock()
	defer st.RUnlock()
	return append([]annotation.Fragment(nil), n.fragments...)
}

// Nodes snapshots every node as a view, ordered by type then key.
func (s *Store) Nodes() []NodeView {
	s.mu.RLock()
	ptrs := make([]*node, 0)
	for _, byKey := range s.nodes {
		for _, n := range byKey {
			ptrs = append(ptrs, n)
		}
	}
	s.mu.RUnlock()

	views := make([]NodeView, 0, len(ptrs))
	for _, n := range ptrs {
		st := s.stripe(n.typ, n.key)
		st.RLock()
		views = append(views, viewOf(n))
		st.RUnlock()
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Type != views[j].Type {
			return views[i].Type < views[j].Type
		}
		return views[i].Key < views[j].Key
	})
	return views
}

// Edges snapshots every edge as a view, ordered by type, from, to.
func (s *Store) Edges() []EdgeView {
	s.mu.RLock()
	ptrs := make([]*edge, 0, len(s.edges))
	for _, e := range s.edges {
		ptrs = append(ptrs, e)
	}
	s.mu.RUnlock()

	views := make([]EdgeView, 0, len(ptrs))
	for _, e := range ptrs {
		st := s.edgeStripe(e.key)
		st.RLock()
		views = append(views, viewOfEdge(e))
		st.RUnlock()
	}
	sort.Slice(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	return views
}

// Stats counts nodes and edges per type.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Nodes: make(map[NodeType]int, len(s.nodes)),
		Edges: make(map[EdgeType]int),
	}
	for typ, byKey := range s.nodes {
		st.Nodes[typ] = len(byKey)
	}
	for ek := range s.edges {
		st.Edges[ek.typ]++
	}
	return st
}

// viewOf copies a node into its public form. For variants the attribute
// bag is synthesized from the merged annotation, so readers see the
// pipeline's output rather than raw mutable state. Caller holds the
// node's stripe.
func viewOf(n *node) NodeView {
	v := NodeView{Type: n.typ, Key: n.key}
	if n.typ == NodeVariant {
		v.Attrs = variantAttrs(n.merged)
		return v
	}
	if len(n.attrs) > 0 {
		v.Attrs = make(Attributes, len(n.attrs))
		for k, val := range n.attrs {
			v.Attrs[k] = val
		}
	}
	return v
}

func variantAttrs(a annotation.Annotated) Attributes {
	attrs := make(Attributes)
	if a.Gene != "" {
		attrs["gene"] = a.Gene
	}
	if a.Effect != "" {
		attrs["effect"] = string(a.Effect)
	}
	if a.Pathogenicity != variant.PathogenicityAbsent {
		attrs["pathogenicity"] = string(a.Pathogenicity)
	}
	if a.Frequency != nil {
		attrs["frequency"] = *a.Frequency
	}
	if a.Conservation != nil {
		attrs["conservation"] = *a.Conservation
	}
	if len(a.Sources) > 0 {
		attrs["sources"] = append([]string(nil), a.Sources...)
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

// viewOfEdge copies an edge into its public form, studies sorted.
// Caller holds the edge's stripe.
func viewOfEdge(e *edge) EdgeView {
	v := EdgeView{Type: e.key.typ, From: e.key.from, To: e.key.to}
	if len(e.attrs) > 0 {
		v.Attrs = make(Attributes, len(e.attrs))
		for k, val := range e.attrs {
			v.Attrs[k] = val
		}
	}
	if len(e.studies) > 0 {
		v.Studies = make([]string, 0, len(e.studies))
		for sk := range e.studies {
			v.Studies = append(v.Studies, sk)
		}
		sort.Strings(v.Studies)
	}
	return v
}
