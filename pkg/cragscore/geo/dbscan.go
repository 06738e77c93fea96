package geo

import (
	"fmt"
	"math"
	"sort"

	"github.com/cognicore/cragscore/pkg/cragscore/internalerr"
)

// Noise is the label of points that belong to no cluster.
const Noise = -1

// Params configures density clustering.
type Params struct {
	// Epsilon is the neighborhood radius in standardized units.
	Epsilon float64
	// MinRoutes is the neighborhood size, the point itself included, that
	// makes a point a core point.
	MinRoutes int
}

// DefaultParams returns epsilon 0.0007 and min_routes 3.
func DefaultParams() Params {
	return Params{Epsilon: 0.0007, MinRoutes: 3}
}

// Validate rejects non-positive parameters.
func (p Params) Validate() error {
	if !(p.Epsilon > 0) {
		return fmt.Errorf("epsilon must be positive, got %v: %w", p.Epsilon, internalerr.ErrInvalidInput)
	}
	if p.MinRoutes < 1 {
		return fmt.Errorf("min_routes must be at least 1, got %d: %w", p.MinRoutes, internalerr.ErrInvalidInput)
	}
	return nil
}

// Assignment is the clustering outcome for one route. Noise routes have
// Size 1.
type Assignment struct {
	ID    int64
	Label int
	Size  int
}

// Result holds one assignment per clustered point, in input order.
type Result struct {
	Assignments []Assignment
	Clusters    int
	Noise       int
	// Excluded counts input points with non-finite coordinates.
	Excluded int
}

// Cluster standardizes the valid points and runs DBSCAN on them. Points
// with non-finite coordinates are left out and counted.
func Cluster(pts []Point, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	valid := make([]Point, 0, len(pts))
	for _, pt := range pts {
		if pt.Valid() {
			valid = append(valid, pt)
		}
	}
	res := DBSCAN(Standardize(valid), p)
	res.Excluded = len(pts) - len(valid)
	return res, nil
}

// DBSCAN clusters points that are already in the metric space. A point is
// core when at least MinRoutes points, itself included, lie within Epsilon.
// Border points join the first cluster that reaches them. Labels follow the
// order in which clusters are discovered and carry no other meaning.
func DBSCAN(pts []Point, p Params) *Result {
	n := len(pts)
	res := &Result{Assignments: make([]Assignment, n)}
	if n == 0 {
		return res
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	if n >= p.MinRoutes {
		neighbors := newGrid(pts, p.Epsilon).neighborhoods()
		core := make([]bool, n)
		for i, nb := range neighbors {
			core[i] = len(nb) >= p.MinRoutes
		}

		next := 0
		for i := range pts {
			if labels[i] != Noise || !core[i] {
				continue
			}
			expand(i, next, neighbors, core, labels)
			next++
		}
		res.Clusters = next
	}

	sizes := make(map[int]int, res.Clusters)
	for _, l := range labels {
		if l != Noise {
			sizes[l]++
		}
	}
	for i, pt := range pts {
		a := Assignment{ID: pt.ID, Label: labels[i], Size: 1}
		if labels[i] == Noise {
			res.Noise++
		} else {
			a.Size = sizes[labels[i]]
		}
		res.Assignments[i] = a
	}
	return res
}

// expand grows cluster from seed breadth-first through core points.
func expand(seed, cluster int, neighbors [][]int, core []bool, labels []int) {
	labels[seed] = cluster
	queue := []int{seed}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range neighbors[cur] {
			if labels[nb] != Noise {
				continue
			}
			labels[nb] = cluster
			if core[nb] {
				queue = append(queue, nb)
			}
		}
	}
}

type cellKey struct{ x, y int64 }

// grid buckets points into square cells of side eps so that a radius query
// only inspects the 3x3 block around a point.
type grid struct {
	pts   []Point
	eps   float64
	cells map[cellKey][]int
}

func newGrid(pts []Point, eps float64) *grid {
	g := &grid{pts: pts, eps: eps, cells: make(map[cellKey][]int)}
	for i, pt := range pts {
		k := g.key(pt)
		g.cells[k] = append(g.cells[k], i)
	}
	return g
}

func (g *grid) key(pt Point) cellKey {
	return cellKey{
		x: int64(math.Floor(pt.Lat / g.eps)),
		y: int64(math.Floor(pt.Lon / g.eps)),
	}
}

// neighborhoods returns, for every point, the indices within eps of it,
// including the point itself, in ascending order.
func (g *grid) neighborhoods() [][]int {
	out := make([][]int, len(g.pts))
	for i, pt := range g.pts {
		k := g.key(pt)
		var nb []int
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for _, j := range g.cells[cellKey{k.x + dx, k.y + dy}] {
					if math.Hypot(pt.Lat-g.pts[j].Lat, pt.Lon-g.pts[j].Lon) <= g.eps {
						nb = append(nb, j)
					}
				}
			}
		}
		sort.Ints(nb)
		out[i] = nb
	}
	return out
}
