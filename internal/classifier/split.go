package classifier

import (
	"math"
	"math/rand/v2"
	"slices"
	"sort"
)

type partition struct {
	train      []int
	test       []int
	stratified bool
}

// splitIndices partitions row indices into training and held-out sets. The
// held-out size is ceil(ratio*n). A stratified split is used when every label
// can place at least one row on each side; otherwise the rows are shuffled
// uniformly and held-out rows are traded back until every label is present in
// the training side.
func splitIndices(labels []string, ratio float64, seed uint64) partition {
	n := len(labels)
	nTest := int(math.Ceil(ratio * float64(n)))
	if nTest < 1 {
		nTest = 1
	}
	if nTest > n-1 {
		nTest = n - 1
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	byLabel := make(map[string][]int)
	for i, label := range labels {
		byLabel[label] = append(byLabel[label], i)
	}
	names := make([]string, 0, len(byLabel))
	for name := range byLabel {
		names = append(names, name)
	}
	slices.Sort(names)

	if alloc, ok := stratifiedAllocation(byLabel, names, n, nTest); ok {
		var p partition
		p.stratified = true
		for _, name := range names {
			rows := slices.Clone(byLabel[name])
			rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
			p.test = append(p.test, rows[:alloc[name]]...)
			p.train = append(p.train, rows[alloc[name]:]...)
		}
		slices.Sort(p.train)
		slices.Sort(p.test)
		return p
	}

	perm := rng.Perm(n)
	p := partition{
		test:  slices.Clone(perm[:nTest]),
		train: slices.Clone(perm[nTest:]),
	}
	ensureTrainCoverage(labels, p.train, p.test)
	slices.Sort(p.train)
	slices.Sort(p.test)
	return p
}

// stratifiedAllocation assigns held-out slots per label by largest remainder.
func stratifiedAllocation(byLabel map[string][]int, names []string, n, nTest int) (map[string]int, bool) {
	k := len(names)
	if nTest < k || n-nTest < k {
		return nil, false
	}

	type remainder struct {
		name string
		frac float64
	}
	alloc := make(map[string]int, k)
	rems := make([]remainder, 0, k)
	total := 0
	for _, name := range names {
		exact := float64(len(byLabel[name])) * float64(nTest) / float64(n)
		whole := int(math.Floor(exact))
		alloc[name] = whole
		total += whole
		rems = append(rems, remainder{name: name, frac: exact - float64(whole)})
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for i := 0; total < nTest && i < len(rems); i++ {
		alloc[rems[i].name]++
		total++
	}

	for _, name := range names {
		if c := alloc[name]; c == 0 || c >= len(byLabel[name]) {
			return nil, false
		}
	}
	return alloc, true
}

func ensureTrainCoverage(labels []string, train, test []int) {
	inTrain := make(map[string]int)
	for _, i := range train {
		inTrain[labels[i]]++
	}
	for ti, row := range test {
		label := labels[row]
		if inTrain[label] > 0 {
			continue
		}
		for tj, other := range train {
			if inTrain[labels[other]] > 1 {
				train[tj], test[ti] = row, other
				inTrain[labels[other]]--
				inTrain[label]++
				break
			}
		}
	}
}
