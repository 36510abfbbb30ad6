package aggregate_test

import (
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dtable/internal/testutils"
	"github.com/l7mp/dtable/pkg/aggregate"
	"github.com/l7mp/dtable/pkg/table"
)

type result struct {
	Group    string
	Sum      int
	Count    int
	Min, Max int
	Avg      float64
}

// readGroups reads every output row of a (Group, Sum, Count, Min, Max, Avg) aggregate.
func readGroups(a table.Table) map[string]result {
	ret := map[string]result{}
	for _, row := range a.Rows() {
		var r result
		var err error
		r.Group, err = table.GetValue[string](a, testutils.GroupColumn, row)
		Expect(err).NotTo(HaveOccurred())
		r.Sum, err = table.GetValue[int](a, "Sum", row)
		Expect(err).NotTo(HaveOccurred())
		r.Count, err = table.GetValue[int](a, "Count", row)
		Expect(err).NotTo(HaveOccurred())
		if a.(*aggregate.Table).HasColumn("Min") {
			r.Min, _ = table.GetValue[int](a, "Min", row)
			r.Max, _ = table.GetValue[int](a, "Max", row)
			r.Avg, _ = table.GetValue[float64](a, "Avg", row)
		}
		Expect(ret).NotTo(HaveKey(r.Group))
		ret[r.Group] = r
	}
	return ret
}

// recompute aggregates the base table from scratch.
func recompute(t *table.Base) map[string]result {
	ret := map[string]result{}
	for _, row := range t.Rows() {
		g, _ := table.GetValue[string](t, testutils.GroupColumn, row)
		v, _ := table.GetValue[int](t, testutils.ValueColumn, row)
		r, ok := ret[g]
		if !ok {
			r = result{Group: g, Min: v, Max: v}
		}
		r.Sum += v
		r.Count++
		r.Min = min(r.Min, v)
		r.Max = max(r.Max, v)
		r.Avg = float64(r.Sum) / float64(r.Count)
		ret[g] = r
	}
	return ret
}

var _ = Describe("Aggregate", func() {
	var (
		base *table.Base
		a    *aggregate.Table
		rec  *testutils.Recorder
	)

	BeforeEach(func() {
		base = testutils.NewTestTable()
		rec = testutils.NewRecorder()
	})

	AfterEach(func() {
		if a != nil {
			a.Close()
			a = nil
		}
	})

	Context("Sum and Count", func() {
		BeforeEach(func() {
			var err error
			a, err = aggregate.New(base, aggregate.Spec{
				GroupBy: []string{testutils.GroupColumn},
				Columns: []aggregate.Column{
					aggregate.SumOf("Sum", testutils.ValueColumn),
					aggregate.CountOf("Count", testutils.ValueColumn),
				},
			}, table.Options{})
			Expect(err).NotTo(HaveOccurred())
			a.Subscribe(rec)
		})

		It("should group rows and update groups on delete", func() {
			x1 := testutils.AddRow(base, testutils.GroupColumn, "X", testutils.ValueColumn, 1)
			testutils.AddRow(base, testutils.GroupColumn, "Y", testutils.ValueColumn, 2)
			testutils.AddRow(base, testutils.GroupColumn, "X", testutils.ValueColumn, 3)

			Expect(a.RowCount()).To(Equal(2))
			Expect(readGroups(a)).To(Equal(map[string]result{
				"X": {Group: "X", Sum: 4, Count: 2},
				"Y": {Group: "Y", Sum: 2, Count: 1},
			}))

			Expect(base.DeleteRow(x1)).To(Succeed())
			Expect(readGroups(a)).To(Equal(map[string]result{
				"X": {Group: "X", Sum: 3, Count: 1},
				"Y": {Group: "Y", Sum: 2, Count: 1},
			}))
		})

		It("should emit an add followed by group column updates for a new group", func() {
			row, err := base.AddRow()
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Events()).To(HaveLen(2))
			testutils.MatchEvent(rec.Events()[0], table.Add, 0)
			testutils.MatchEvent(rec.Events()[1], table.Update, 0, testutils.GroupColumn)

			rec.Reset()
			Expect(base.Set(testutils.ValueColumn, row, 5)).To(Succeed())
			testutils.MatchEvent(rec.Last(), table.Update, 0, "Sum")

			// count does not change on a value update
			Expect(rec.Events()).To(HaveLen(1))
		})

		It("should move rows between groups", func() {
			r := testutils.AddRow(base, testutils.GroupColumn, "X", testutils.ValueColumn, 1)
			testutils.AddRow(base, testutils.GroupColumn, "Y", testutils.ValueColumn, 2)
			x := a.GroupRow(r)
			rec.Reset()

			Expect(base.Set(testutils.GroupColumn, r, "Y")).To(Succeed())
			Expect(a.RowCount()).To(Equal(1))
			testutils.MatchEvent(rec.Events()[0], table.Delete, x)
			y := a.GroupRow(r)
			testutils.MatchEvent(rec.Last(), table.Update, y, testutils.GroupColumn, "Sum", "Count")
			Expect(a.Members(y)).To(HaveLen(2))
			Expect(readGroups(a)).To(Equal(map[string]result{"Y": {Group: "Y", Sum: 3, Count: 2}}))
		})

		It("should delete the output row of an emptied group", func() {
			r := testutils.AddRow(base, testutils.GroupColumn, "X", testutils.ValueColumn, 1)
			rec.Reset()
			Expect(base.DeleteRow(r)).To(Succeed())
			Expect(a.RowCount()).To(Equal(0))
			testutils.MatchEvent(rec.Last(), table.Delete, 0)
			Expect(a.GroupRow(r)).To(Equal(-1))
			Expect(a.Members(0)).To(BeNil())
		})

		It("should reject writes", func() {
			testutils.AddRow(base, testutils.GroupColumn, "X")
			err := table.SetValue(a, "Sum", 0, 1)
			Expect(errors.Is(err, table.ErrUnsupportedOperation)).To(BeTrue())
		})
	})

	Context("All accumulators", func() {
		BeforeEach(func() {
			var err error
			a, err = aggregate.New(base, aggregate.Spec{
				GroupBy: []string{testutils.GroupColumn},
				Columns: []aggregate.Column{
					aggregate.SumOf("Sum", testutils.ValueColumn),
					aggregate.CountOf("Count", testutils.ValueColumn),
					aggregate.MinOf("Min", testutils.ValueColumn),
					aggregate.MaxOf("Max", testutils.ValueColumn),
					aggregate.AverageOf("Avg", testutils.ValueColumn),
				},
			}, table.Options{Name: "stats"})
			Expect(err).NotTo(HaveOccurred())
			a.Subscribe(rec)
		})

		It("should track min and max under out-of-order removal", func() {
			rows := []int{}
			for _, v := range []int{5, 1, 9, 1, 7} {
				rows = append(rows, testutils.AddRow(base, testutils.GroupColumn, "G", testutils.ValueColumn, v))
			}
			Expect(readGroups(a)["G"]).To(Equal(result{Group: "G", Sum: 23, Count: 5, Min: 1, Max: 9, Avg: 4.6}))

			Expect(base.DeleteRow(rows[2])).To(Succeed())
			Expect(base.DeleteRow(rows[1])).To(Succeed())
			g := readGroups(a)["G"]
			Expect(g.Min).To(Equal(1))
			Expect(g.Max).To(Equal(7))

			Expect(base.DeleteRow(rows[3])).To(Succeed())
			g = readGroups(a)["G"]
			Expect(g.Min).To(Equal(5))
			Expect(g.Avg).To(Equal(6.0))
		})

		It("should peel off the current extremes one by one", func() {
			byValue := map[int]int{}
			for _, v := range rand.New(rand.NewSource(11)).Perm(100) {
				byValue[v] = testutils.AddRow(base, testutils.GroupColumn, "G", testutils.ValueColumn, v)
			}
			lo, hi := 0, 99
			for lo < hi {
				g := readGroups(a)["G"]
				Expect(g.Min).To(Equal(lo))
				Expect(g.Max).To(Equal(hi))

				Expect(base.DeleteRow(byValue[lo])).To(Succeed())
				Expect(base.DeleteRow(byValue[hi])).To(Succeed())
				lo, hi = lo+1, hi-1
			}
			Expect(readGroups(a)).To(BeEmpty())
		})

		It("should match a from-scratch recomputation after random mutations", func() {
			rnd := rand.New(rand.NewSource(5))
			groups := []string{"A", "B", "C", "D"}
			for i := 0; i < 1500; i++ {
				rows := base.Rows()
				switch r := rnd.Intn(10); {
				case r < 2 && len(rows) > 0:
					Expect(base.DeleteRow(rows[rnd.Intn(len(rows))])).To(Succeed())
				case r < 4 && len(rows) > 0:
					Expect(base.Set(testutils.GroupColumn, rows[rnd.Intn(len(rows))], groups[rnd.Intn(len(groups))])).To(Succeed())
				case r < 6 && len(rows) > 0:
					Expect(base.Set(testutils.ValueColumn, rows[rnd.Intn(len(rows))], rnd.Intn(50)-10)).To(Succeed())
				default:
					testutils.AddRow(base, testutils.GroupColumn, groups[rnd.Intn(len(groups))],
						testutils.ValueColumn, rnd.Intn(50)-10)
				}

				Expect(readGroups(a)).To(Equal(recompute(base)))
				Expect(rec.Live()).To(Equal(a.RowCount()))
			}
		})
	})

	Context("Construction", func() {
		It("should aggregate existing rows into a single group without group columns", func() {
			for _, v := range []int{2, 4, 6} {
				testutils.AddRow(base, testutils.ValueColumn, v)
			}
			var err error
			a, err = aggregate.New(base, aggregate.Spec{
				Columns: []aggregate.Column{aggregate.AverageOf("Avg", testutils.ValueColumn)},
			}, table.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(a.RowCount()).To(Equal(1))
			v, err := table.GetValue[float64](a, "Avg", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(4.0))
		})

		It("should reject aggregations the column type cannot support", func() {
			_, err := aggregate.New(base, aggregate.Spec{
				Columns: []aggregate.Column{aggregate.SumOf("S", testutils.GroupColumn)},
			}, table.Options{})
			Expect(errors.Is(err, table.ErrUnsupportedOperation)).To(BeTrue())

			_, err = aggregate.New(base, aggregate.Spec{
				Columns: []aggregate.Column{aggregate.CountOf("N", "missing")},
			}, table.Options{})
			Expect(errors.Is(err, table.ErrUnknownColumn)).To(BeTrue())

			_, err = aggregate.New(base, aggregate.Spec{
				GroupBy: []string{testutils.GroupColumn},
				Columns: []aggregate.Column{aggregate.CountOf(testutils.GroupColumn, testutils.ValueColumn)},
			}, table.Options{})
			Expect(errors.Is(err, table.ErrDuplicateColumn)).To(BeTrue())
		})

		It("should parse aggregation names", func() {
			for name, op := range map[string]aggregate.Op{
				"count": aggregate.Count, "sum": aggregate.Sum, "min": aggregate.Min,
				"max": aggregate.Max, "avg": aggregate.Average,
			} {
				o, err := aggregate.ParseOp(name)
				Expect(err).NotTo(HaveOccurred())
				Expect(o).To(Equal(op))
			}
			_, err := aggregate.ParseOp("median")
			Expect(err).To(HaveOccurred())
		})
	})
})
