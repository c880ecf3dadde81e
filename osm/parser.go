package osm

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"

	"github.com/paulmach/orb"
	"github.com/qedus/osmpbf"

	"github.com/tijuhasz/osm/geom"
	"github.com/tijuhasz/osm/graph"
)

// OsmNode is a decoded PBF node.
type OsmNode struct {
	ID  int64
	Lat float64
	Lon float64
}

// WayRecord is a decoded PBF way.
type WayRecord struct {
	ID      int64
	NodeIDs []int64
	Tags    map[string]string
}

// Highways lists the highway tag values kept on import.
var Highways = []string{
	"motorway",
	"motorway_link",
	"trunk",
	"trunk_link",
	"primary",
	"primary_link",
	"secondary",
	"secondary_link",
	"tertiary",
	"tertiary_link",
	"unclassified",
	"residential",
	"service",
	"living_street",
}

// ImportStats summarizes an import.
type ImportStats struct {
	Nodes       int
	Ways        int
	DroppedWays int
}

// LoadOsmFile decodes the PBF file at filePath and imports its road network
// into store in a single transaction. The returned index covers every imported way.
func LoadOsmFile(filePath string, store *graph.Store, calc geom.Calculator, logger *slog.Logger) (*geom.WayIndex, ImportStats, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, ImportStats{}, err
	}
	defer f.Close()

	nodes, ways, err := Decode(f, logger)
	if err != nil {
		return nil, ImportStats{}, fmt.Errorf("decode %s: %w", filePath, err)
	}

	var (
		index *geom.WayIndex
		stats ImportStats
	)
	err = store.Update(func(tx *graph.Tx) error {
		var wayIDs []graph.WayID
		wayIDs, stats, err = Import(tx, nodes, ways, calc)
		if err != nil {
			return err
		}
		index, err = IndexWays(tx, wayIDs)
		return err
	})
	if err != nil {
		return nil, ImportStats{}, err
	}
	logger.Info("imported osm file", "path", filePath,
		"nodes", stats.Nodes, "ways", stats.Ways, "dropped_ways", stats.DroppedWays)
	return index, stats, nil
}

// Decode reads nodes and ways from a PBF stream. Relations are ignored.
func Decode(r io.Reader, logger *slog.Logger) (map[int64]*OsmNode, []*WayRecord, error) {
	d := osmpbf.NewDecoder(r)

	// use more memory from the start, it is faster
	d.SetBufferSize(osmpbf.MaxBlobSize)

	// start decoding with several goroutines, it is faster
	if err := d.Start(runtime.GOMAXPROCS(-1)); err != nil {
		return nil, nil, err
	}

	var rc uint64
	nodes := make(map[int64]*OsmNode)
	var ways []*WayRecord

	for {
		v, err := d.Decode()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, nil, err
		}
		switch v := v.(type) {
		case *osmpbf.Node:
			nodes[v.ID] = &OsmNode{ID: v.ID, Lat: v.Lat, Lon: v.Lon}
		case *osmpbf.Way:
			ways = append(ways, &WayRecord{ID: v.ID, NodeIDs: v.NodeIDs, Tags: v.Tags})
		case *osmpbf.Relation:
			// we ignore relations for now
			rc++
		default:
			return nil, nil, fmt.Errorf("unknown type %T", v)
		}
	}
	logger.Debug("decoded pbf", "nodes", len(nodes), "ways", len(ways), "relations", rc)
	return nodes, ways, nil
}

// Import writes the highway ways and the nodes they use into tx. Each way
// becomes a graph way whose consecutive nodes are linked by membership edges
// carrying their distance. Ways are imported in OSM id order.
func Import(tx *graph.Tx, nodes map[int64]*OsmNode, ways []*WayRecord, calc geom.Calculator) ([]graph.WayID, ImportStats, error) {
	var stats ImportStats

	// Build set for Highways for fast lookup
	whitelistedHighways := make(map[string]struct{}, len(Highways))
	for _, hw := range Highways {
		whitelistedHighways[hw] = struct{}{}
	}

	kept := make([]*WayRecord, 0, len(ways))
	for _, way := range ways {
		if _, ok := whitelistedHighways[way.Tags["highway"]]; !ok {
			stats.DroppedWays++
			continue
		}
		// Keep only the nodes present in the extract
		ids := make([]int64, 0, len(way.NodeIDs))
		for _, nid := range way.NodeIDs {
			if _, ok := nodes[nid]; ok {
				ids = append(ids, nid)
			}
		}
		if len(ids) < 2 {
			stats.DroppedWays++
			continue
		}
		kept = append(kept, &WayRecord{ID: way.ID, NodeIDs: ids, Tags: way.Tags})
	}
	slices.SortFunc(kept, func(a, b *WayRecord) int { return cmp.Compare(a.ID, b.ID) })

	graphIDs := make(map[int64]graph.NodeID)
	nodeFor := func(osmID int64) (graph.NodeID, error) {
		if id, ok := graphIDs[osmID]; ok {
			return id, nil
		}
		n := nodes[osmID]
		p := orb.Point{n.Lon, n.Lat}
		id, err := tx.CreateNode(graph.NodeSpec{OsmID: osmID, Labels: []string{graph.LabelNode}, Location: &p})
		if err != nil {
			return 0, err
		}
		graphIDs[osmID] = id
		stats.Nodes++
		return id, nil
	}

	wayIDs := make([]graph.WayID, 0, len(kept))
	for _, way := range kept {
		first, err := nodeFor(way.NodeIDs[0])
		if err != nil {
			return nil, stats, err
		}
		name := way.Tags["name"]
		if name == "" {
			name = fmt.Sprintf("way-%d", way.ID)
		}
		wayID, err := tx.CreateWay(graph.Way{OsmID: way.ID, Name: name, First: first, Tags: way.Tags})
		if err != nil {
			return nil, stats, err
		}
		prev, prevOsm := first, way.NodeIDs[0]
		for _, nid := range way.NodeIDs[1:] {
			if nid == prevOsm {
				continue
			}
			next, err := nodeFor(nid)
			if err != nil {
				return nil, stats, err
			}
			a, b := nodes[prevOsm], nodes[nid]
			dist := calc.Distance(orb.Point{a.Lon, a.Lat}, orb.Point{b.Lon, b.Lat})
			if _, err := tx.CreateEdge(graph.Membership, prev, next, wayID, map[string]float64{graph.PropDistance: dist}); err != nil {
				return nil, stats, err
			}
			prev, prevOsm = next, nid
		}
		wayIDs = append(wayIDs, wayID)
		stats.Ways++
	}
	return wayIDs, stats, nil
}

// IndexWays builds a spatial index over the given ways.
func IndexWays(tx *graph.Tx, wayIDs []graph.WayID) (*geom.WayIndex, error) {
	index := geom.NewWayIndex()
	for _, id := range wayIDs {
		way, err := LoadWay(tx, id)
		if err != nil {
			return nil, err
		}
		index.Insert(int64(id), way.Bound())
	}
	return index, nil
}
