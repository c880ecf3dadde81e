package graph

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/paulmach/orb"
)

// Store holds the graph. Ids index directly into the arenas; removed edges
// leave a nil slot so ids are never reused.
type Store struct {
	mu    sync.RWMutex
	nodes []*nodeRecord
	edges []*edgeRecord
	ways  []*Way
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Stats counts live graph elements.
type Stats struct {
	Nodes int
	Edges int
	Ways  int
}

// Begin starts a transaction. A writable transaction holds the store's write
// lock until Commit or Rollback; a read-only one holds the read lock.
func (s *Store) Begin(writable bool) *Tx {
	if writable {
		s.mu.Lock()
	} else {
		s.mu.RLock()
	}
	return &Tx{store: s, writable: writable}
}

// Update runs fn in a writable transaction, committing if fn returns nil and
// rolling back otherwise.
func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.run(true, fn)
}

// View runs fn in a read-only transaction.
func (s *Store) View(fn func(tx *Tx) error) error {
	return s.run(false, fn)
}

func (s *Store) run(writable bool, fn func(tx *Tx) error) error {
	tx := s.Begin(writable)
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Tx is a transaction. Mutations are recorded in an undo log so that a
// rollback, or a rollback to a savepoint, restores the previous state.
type Tx struct {
	store    *Store
	writable bool
	done     bool
	undo     []func()
}

// Writable reports whether the transaction may mutate the store.
func (tx *Tx) Writable() bool { return tx.writable }

// Commit makes the transaction's changes permanent and releases the lock.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.finish()
	return nil
}

// Rollback discards every change made in the transaction and releases the lock.
func (tx *Tx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	tx.unwind(0)
	tx.finish()
	return nil
}

// Savepoint marks the current position in the undo log.
func (tx *Tx) Savepoint() int {
	return len(tx.undo)
}

// RollbackTo discards changes made after the savepoint sp.
func (tx *Tx) RollbackTo(sp int) error {
	if tx.done {
		return ErrTxDone
	}
	if sp < 0 || sp > len(tx.undo) {
		return fmt.Errorf("graph: invalid savepoint %d", sp)
	}
	tx.unwind(sp)
	return nil
}

func (tx *Tx) unwind(sp int) {
	for i := len(tx.undo) - 1; i >= sp; i-- {
		tx.undo[i]()
	}
	tx.undo = tx.undo[:sp]
}

func (tx *Tx) finish() {
	tx.done = true
	tx.undo = nil
	if tx.writable {
		tx.store.mu.Unlock()
	} else {
		tx.store.mu.RUnlock()
	}
}

func (tx *Tx) check(write bool) error {
	if tx.done {
		return ErrTxDone
	}
	if write && !tx.writable {
		return ErrTxReadOnly
	}
	return nil
}

func (tx *Tx) node(id NodeID) (*nodeRecord, error) {
	if id <= 0 || int(id) > len(tx.store.nodes) || tx.store.nodes[id-1] == nil {
		return nil, fmt.Errorf("node %d: %w", id, ErrNotFound)
	}
	return tx.store.nodes[id-1], nil
}

func (tx *Tx) edge(id EdgeID) (*edgeRecord, error) {
	if id <= 0 || int(id) > len(tx.store.edges) || tx.store.edges[id-1] == nil {
		return nil, fmt.Errorf("edge %d: %w", id, ErrNotFound)
	}
	return tx.store.edges[id-1], nil
}

// NodeSpec describes a node to create.
type NodeSpec struct {
	OsmID    int64
	Labels   []string
	Location *orb.Point
	Tags     map[string]string
}

// CreateNode adds a node.
func (tx *Tx) CreateNode(spec NodeSpec) (NodeID, error) {
	if err := tx.check(true); err != nil {
		return 0, err
	}
	s := tx.store
	rec := &nodeRecord{
		id:     NodeID(len(s.nodes) + 1),
		osmID:  spec.OsmID,
		labels: slices.Compact(slices.Sorted(slices.Values(spec.Labels))),
		tags:   spec.Tags,
	}
	if spec.Location != nil {
		p := *spec.Location
		rec.location = &p
	}
	s.nodes = append(s.nodes, rec)
	tx.undo = append(tx.undo, func() { s.nodes = s.nodes[:len(s.nodes)-1] })
	return rec.id, nil
}

// CreateLocatedNode adds a node at p.
func (tx *Tx) CreateLocatedNode(p orb.Point, labels ...string) (NodeID, error) {
	return tx.CreateNode(NodeSpec{Labels: labels, Location: &p})
}

// Node returns a snapshot of node id.
func (tx *Tx) Node(id NodeID) (Node, error) {
	if err := tx.check(false); err != nil {
		return Node{}, err
	}
	rec, err := tx.node(id)
	if err != nil {
		return Node{}, err
	}
	return rec.snapshot(), nil
}

// AddLabel adds label to node id. Adding a label twice is a no-op.
func (tx *Tx) AddLabel(id NodeID, label string) error {
	if err := tx.check(true); err != nil {
		return err
	}
	rec, err := tx.node(id)
	if err != nil {
		return err
	}
	i, found := slices.BinarySearch(rec.labels, label)
	if found {
		return nil
	}
	rec.labels = slices.Insert(rec.labels, i, label)
	tx.undo = append(tx.undo, func() { rec.labels = slices.Delete(rec.labels, i, i+1) })
	return nil
}

// CreateEdge adds a relationship from -> to. way is only meaningful for
// membership edges.
func (tx *Tx) CreateEdge(kind Kind, from, to NodeID, way WayID, props map[string]float64) (EdgeID, error) {
	if err := tx.check(true); err != nil {
		return 0, err
	}
	fromRec, err := tx.node(from)
	if err != nil {
		return 0, err
	}
	toRec, err := tx.node(to)
	if err != nil {
		return 0, err
	}
	s := tx.store
	rec := &edgeRecord{
		id:    EdgeID(len(s.edges) + 1),
		kind:  kind,
		from:  from,
		to:    to,
		way:   way,
		props: maps.Clone(props),
	}
	if rec.props == nil {
		rec.props = make(map[string]float64)
	}
	s.edges = append(s.edges, rec)
	fromRec.out = append(fromRec.out, rec.id)
	toRec.in = append(toRec.in, rec.id)
	tx.undo = append(tx.undo, func() {
		toRec.in = toRec.in[:len(toRec.in)-1]
		fromRec.out = fromRec.out[:len(fromRec.out)-1]
		s.edges = s.edges[:len(s.edges)-1]
	})
	return rec.id, nil
}

// Edge returns a snapshot of edge id.
func (tx *Tx) Edge(id EdgeID) (Edge, error) {
	if err := tx.check(false); err != nil {
		return Edge{}, err
	}
	rec, err := tx.edge(id)
	if err != nil {
		return Edge{}, err
	}
	return rec.snapshot(), nil
}

// SetEdgeProps sets the given properties on edge id, keeping other keys.
func (tx *Tx) SetEdgeProps(id EdgeID, props map[string]float64) error {
	if err := tx.check(true); err != nil {
		return err
	}
	rec, err := tx.edge(id)
	if err != nil {
		return err
	}
	prev := maps.Clone(rec.props)
	for k, v := range props {
		rec.props[k] = v
	}
	tx.undo = append(tx.undo, func() { rec.props = prev })
	return nil
}

// DeleteEdge removes edge id.
func (tx *Tx) DeleteEdge(id EdgeID) error {
	if err := tx.check(true); err != nil {
		return err
	}
	rec, err := tx.edge(id)
	if err != nil {
		return err
	}
	fromRec, _ := tx.node(rec.from)
	toRec, _ := tx.node(rec.to)
	oi := slices.Index(fromRec.out, id)
	ii := slices.Index(toRec.in, id)
	fromRec.out = slices.Delete(fromRec.out, oi, oi+1)
	toRec.in = slices.Delete(toRec.in, ii, ii+1)
	tx.store.edges[id-1] = nil
	tx.undo = append(tx.undo, func() {
		tx.store.edges[id-1] = rec
		toRec.in = slices.Insert(toRec.in, ii, id)
		fromRec.out = slices.Insert(fromRec.out, oi, id)
	})
	return nil
}

// Edges lists the edges of kind attached to node in the given direction, in
// creation order. Both lists incoming edges before outgoing ones.
func (tx *Tx) Edges(node NodeID, kind Kind, dir Direction) ([]Edge, error) {
	if err := tx.check(false); err != nil {
		return nil, err
	}
	rec, err := tx.node(node)
	if err != nil {
		return nil, err
	}
	var ids []EdgeID
	switch dir {
	case Outgoing:
		ids = rec.out
	case Incoming:
		ids = rec.in
	default:
		ids = append(slices.Clone(rec.in), rec.out...)
	}
	edges := make([]Edge, 0, len(ids))
	for _, id := range ids {
		e := tx.store.edges[id-1]
		if e.kind == kind {
			edges = append(edges, e.snapshot())
		}
	}
	return edges, nil
}

// Degree counts the edges of kind attached to node in the given direction.
func (tx *Tx) Degree(node NodeID, kind Kind, dir Direction) (int, error) {
	if err := tx.check(false); err != nil {
		return 0, err
	}
	rec, err := tx.node(node)
	if err != nil {
		return 0, err
	}
	n := 0
	count := func(ids []EdgeID) {
		for _, id := range ids {
			if tx.store.edges[id-1].kind == kind {
				n++
			}
		}
	}
	if dir != Incoming {
		count(rec.out)
	}
	if dir != Outgoing {
		count(rec.in)
	}
	return n, nil
}

// EdgesBetween lists the edges of kind connecting a and b in either direction.
func (tx *Tx) EdgesBetween(a, b NodeID, kind Kind) ([]Edge, error) {
	edges, err := tx.Edges(a, kind, Both)
	if err != nil {
		return nil, err
	}
	if _, err := tx.node(b); err != nil {
		return nil, err
	}
	between := edges[:0]
	for _, e := range edges {
		if e.Other(a) == b {
			between = append(between, e)
		}
	}
	return between, nil
}

// CreateWay registers a way. The ID field of w is ignored.
func (tx *Tx) CreateWay(w Way) (WayID, error) {
	if err := tx.check(true); err != nil {
		return 0, err
	}
	if _, err := tx.node(w.First); err != nil {
		return 0, fmt.Errorf("way %q first node: %w", w.Name, err)
	}
	s := tx.store
	w.ID = WayID(len(s.ways) + 1)
	s.ways = append(s.ways, &w)
	tx.undo = append(tx.undo, func() { s.ways = s.ways[:len(s.ways)-1] })
	return w.ID, nil
}

// Way returns way id.
func (tx *Tx) Way(id WayID) (Way, error) {
	if err := tx.check(false); err != nil {
		return Way{}, err
	}
	if id <= 0 || int(id) > len(tx.store.ways) {
		return Way{}, fmt.Errorf("way %d: %w", id, ErrNotFound)
	}
	return *tx.store.ways[id-1], nil
}

// WayByName returns the first way registered under name.
func (tx *Tx) WayByName(name string) (Way, error) {
	if err := tx.check(false); err != nil {
		return Way{}, err
	}
	for _, w := range tx.store.ways {
		if w.Name == name {
			return *w, nil
		}
	}
	return Way{}, fmt.Errorf("way %q: %w", name, ErrNotFound)
}

// Ways returns all ways in id order.
func (tx *Tx) Ways() []Way {
	ways := make([]Way, 0, len(tx.store.ways))
	for _, w := range tx.store.ways {
		ways = append(ways, *w)
	}
	return ways
}

// Stats counts the live nodes, edges and ways.
func (tx *Tx) Stats() Stats {
	st := Stats{Nodes: len(tx.store.nodes), Ways: len(tx.store.ways)}
	for _, e := range tx.store.edges {
		if e != nil {
			st.Edges++
		}
	}
	return st
}
