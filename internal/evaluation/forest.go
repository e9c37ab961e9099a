package evaluation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// maxTreeDepth bounds recursion on pathological inputs
const maxTreeDepth = 64

// RandomForest bags unpruned CART trees, each split drawing √d candidate features
type RandomForest struct {
	Trees int
	Seed  int64

	forest []*treeNode
}

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	// leaf: fraction of buggy rows that reached it
	positive float64
	leaf     bool
}

func (rf *RandomForest) Fit(x [][]float64, y []bool) error {
	if len(x) == 0 {
		return fmt.Errorf("random forest: empty training set")
	}
	trees := rf.Trees
	if trees <= 0 {
		trees = 100
	}
	d := len(x[0])
	mtry := int(math.Sqrt(float64(d)))
	if mtry < 1 {
		mtry = 1
	}

	rf.forest = make([]*treeNode, trees)
	for t := range rf.forest {
		// One stream per tree keeps the forest reproducible for a seed
		rng := rand.New(rand.NewPCG(uint64(rf.Seed), uint64(t)))
		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = rng.IntN(len(x))
		}
		b := treeBuilder{x: x, y: y, mtry: mtry, rng: rng}
		rf.forest[t] = b.grow(sample, 0)
	}
	return nil
}

func (rf *RandomForest) Score(row []float64) float64 {
	if len(rf.forest) == 0 {
		return 0.5
	}
	var sum float64
	for _, root := range rf.forest {
		n := root
		for !n.leaf {
			if row[n.feature] <= n.threshold {
				n = n.left
			} else {
				n = n.right
			}
		}
		sum += n.positive
	}
	return sum / float64(len(rf.forest))
}

type treeBuilder struct {
	x    [][]float64
	y    []bool
	mtry int
	rng  *rand.Rand
}

func (b *treeBuilder) leaf(rows []int) *treeNode {
	pos := 0
	for _, i := range rows {
		if b.y[i] {
			pos++
		}
	}
	return &treeNode{leaf: true, positive: float64(pos) / float64(len(rows))}
}

func (b *treeBuilder) grow(rows []int, depth int) *treeNode {
	pos := 0
	for _, i := range rows {
		if b.y[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(rows) || depth >= maxTreeDepth {
		return b.leaf(rows)
	}

	d := len(b.x[0])
	features := b.rng.Perm(d)
	bestGain, bestFeature, bestThreshold := 0.0, -1, 0.0
	parent := gini(pos, len(rows))

	// past mtry candidates, keep drawing only while no useful split is found
	for n, f := range features {
		if n >= b.mtry && bestFeature >= 0 {
			break
		}
		threshold, impurity, ok := b.bestSplit(rows, f)
		if !ok {
			continue
		}
		if gain := parent - impurity; gain > bestGain {
			bestGain, bestFeature, bestThreshold = gain, f, threshold
		}
	}
	if bestFeature < 0 {
		return b.leaf(rows)
	}

	var left, right []int
	for _, i := range rows {
		if b.x[i][bestFeature] <= bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      b.grow(left, depth+1),
		right:     b.grow(right, depth+1),
	}
}

// bestSplit finds the threshold on feature f with the lowest weighted Gini
// impurity. ok is false when every row has the same value.
func (b *treeBuilder) bestSplit(rows []int, f int) (threshold, impurity float64, ok bool) {
	sorted := append([]int(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool {
		return b.x[sorted[i]][f] < b.x[sorted[j]][f]
	})

	total, totalPos := len(sorted), 0
	for _, i := range sorted {
		if b.y[i] {
			totalPos++
		}
	}

	impurity = math.Inf(1)
	leftPos := 0
	for k := 0; k < total-1; k++ {
		if b.y[sorted[k]] {
			leftPos++
		}
		v, next := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
		if v == next {
			continue
		}
		nl, nr := k+1, total-k-1
		w := (float64(nl)*gini(leftPos, nl) + float64(nr)*gini(totalPos-leftPos, nr)) / float64(total)
		if w < impurity {
			impurity, threshold, ok = w, (v+next)/2, true
		}
	}
	return threshold, impurity, ok
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}
