package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Split holds row indices for the two halves of a train/test split.
type Split struct {
	Train []int
	Test  []int
}

// splitSizes mirrors the usual rounding: the test half gets ceil(n*testSize)
// rows and the remainder trains.
func splitSizes(n int, testSize float64) (int, int, error) {
	if testSize <= 0 || testSize >= 1 {
		return 0, 0, fmt.Errorf("test size %.3f must be in (0, 1)", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return 0, 0, fmt.Errorf("test size %.3f over %d rows leaves an empty split", testSize, n)
	}
	return nTrain, nTest, nil
}

// TrainTestSplit shuffles n row indices with the given seed and cuts off a
// test share.
func TrainTestSplit(n int, testSize float64, seed int64) (Split, error) {
	nTrain, nTest, err := splitSizes(n, testSize)
	if err != nil {
		return Split{}, err
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	split := Split{
		Test:  append([]int(nil), perm[:nTest]...),
		Train: append([]int(nil), perm[nTest:nTest+nTrain]...),
	}
	return split, nil
}

// StratifiedTrainTestSplit keeps the class proportions of y in both halves.
// Every class needs at least two members.
func StratifiedTrainTestSplit(y []int, testSize float64, seed int64) (Split, error) {
	n := len(y)
	nTrain, nTest, err := splitSizes(n, testSize)
	if err != nil {
		return Split{}, err
	}

	classes, members := groupByClass(y)
	for _, c := range classes {
		if len(members[c]) < 2 {
			return Split{}, fmt.Errorf("class %d has %d member(s); stratified split needs at least 2", c, len(members[c]))
		}
	}
	if nTest < len(classes) || nTrain < len(classes) {
		return Split{}, fmt.Errorf("split of %d train / %d test rows cannot hold %d classes", nTrain, nTest, len(classes))
	}

	counts := make([]int, len(classes))
	for i, c := range classes {
		counts[i] = len(members[c])
	}
	testAlloc := apportion(counts, nTest)
	remaining := make([]int, len(counts))
	for i := range counts {
		remaining[i] = counts[i] - testAlloc[i]
	}
	trainAlloc := apportion(remaining, nTrain)

	rng := rand.New(rand.NewSource(seed))
	var split Split
	for i, c := range classes {
		rows := members[c]
		perm := rng.Perm(len(rows))
		for k := 0; k < trainAlloc[i]; k++ {
			split.Train = append(split.Train, rows[perm[k]])
		}
		for k := trainAlloc[i]; k < trainAlloc[i]+testAlloc[i]; k++ {
			split.Test = append(split.Test, rows[perm[k]])
		}
	}
	rng.Shuffle(len(split.Train), func(a, b int) { split.Train[a], split.Train[b] = split.Train[b], split.Train[a] })
	rng.Shuffle(len(split.Test), func(a, b int) { split.Test[a], split.Test[b] = split.Test[b], split.Test[a] })
	return split, nil
}

// apportion distributes total draws across classes proportionally to counts
// using largest remainders, never exceeding a class count.
func apportion(counts []int, total int) []int {
	var sum int
	for _, c := range counts {
		sum += c
	}
	alloc := make([]int, len(counts))
	if sum == 0 {
		return alloc
	}
	type rem struct {
		idx  int
		frac float64
	}
	rems := make([]rem, len(counts))
	assigned := 0
	for i, c := range counts {
		exact := float64(total) * float64(c) / float64(sum)
		alloc[i] = int(math.Floor(exact))
		assigned += alloc[i]
		rems[i] = rem{idx: i, frac: exact - float64(alloc[i])}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for k := 0; assigned < total && k < len(rems)*2; k++ {
		i := rems[k%len(rems)].idx
		if alloc[i] < counts[i] {
			alloc[i]++
			assigned++
		}
	}
	return alloc
}

// groupByClass returns sorted class labels and the row indices of each.
func groupByClass(y []int) ([]int, map[int][]int) {
	members := make(map[int][]int)
	for i, c := range y {
		members[c] = append(members[c], i)
	}
	classes := make([]int, 0, len(members))
	for c := range members {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes, members
}
