package sorted_test

import (
	"cmp"
	"errors"
	"math/rand"
	"slices"
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dtable/internal/testutils"
	"github.com/l7mp/dtable/pkg/filter"
	"github.com/l7mp/dtable/pkg/sorted"
	"github.com/l7mp/dtable/pkg/table"
)

var _ = Describe("Sort", func() {
	var (
		base *table.Base
		rec  *testutils.Recorder
	)

	keysOf := func(s sorted.Interface, column string) []int {
		ret := []int{}
		for _, pos := range s.Rows() {
			v, err := table.GetValue[int](s, column, pos)
			Expect(err).NotTo(HaveOccurred())
			ret = append(ret, v)
		}
		return ret
	}

	Context("String keys", func() {
		It("should sort rows inserted in reverse order", func() {
			base = testutils.NewStringTable()
			s, err := sorted.New(base, testutils.StringColumn, cmp.Compare[string], table.Options{})
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			keys := []string{}
			for i := 99; i >= 0; i-- {
				k := strconv.Itoa(i)
				keys = append(keys, k)
				testutils.AddRow(base, testutils.StringColumn, k)
			}
			slices.Sort(keys)

			Expect(s.RowCount()).To(Equal(100))
			for i := 0; i < s.RowCount(); i++ {
				v, err := table.GetValue[string](s, testutils.StringColumn, i)
				Expect(err).NotTo(HaveOccurred())
				Expect(v).To(Equal(keys[i]))
			}
		})
	})

	Context("Integer keys", func() {
		var s *sorted.Table[int]

		BeforeEach(func() {
			base = testutils.NewTestTable()
			var err error
			s, err = sorted.New(base, testutils.ValueColumn, cmp.Compare[int], table.Options{})
			Expect(err).NotTo(HaveOccurred())
			rec = testutils.NewPositionalRecorder()
			s.Subscribe(rec)
		})

		AfterEach(func() { s.Close() })

		It("should report shifted positions on insert", func() {
			r5 := testutils.AddRow(base, testutils.ValueColumn, 5)
			moved := 0
			sub := s.OnPositionsChanged(func() { moved++ })
			defer sub.Close()

			rec.Reset()
			r1, err := base.AddRow()
			Expect(err).NotTo(HaveOccurred())
			// the zero key sorts first and pushes row 5 down
			Expect(rec.Events()).To(HaveLen(1))
			testutils.MatchEvent(rec.Last(), table.Add, 0)
			Expect(moved).To(Equal(1))
			Expect(s.GetRowAt(0)).To(Equal(r1))
			Expect(s.GetRowAt(1)).To(Equal(r5))
			Expect(s.GetPositionOfRow(r5)).To(Equal(1))

			rec.Reset()
			Expect(base.Set(testutils.ValueColumn, r1, 7)).To(Succeed())
			Expect(moved).To(Equal(2))
			Expect(rec.Events()).To(HaveLen(1))
			testutils.MatchEvent(rec.Last(), table.Update, 1, testutils.ValueColumn)
			Expect(s.GetRowAt(0)).To(Equal(r5))
			Expect(keysOf(s, testutils.ValueColumn)).To(Equal([]int{5, 7}))
		})

		It("should not signal when the last row goes away", func() {
			testutils.AddRow(base, testutils.ValueColumn, 1)
			moved := 0
			sub := s.OnPositionsChanged(func() { moved++ })
			defer sub.Close()

			rec.Reset()
			r := testutils.AddRow(base, testutils.ValueColumn, 9)
			Expect(rec.Kinds()).To(Equal([]table.EventKind{table.Add, table.Update}))
			testutils.MatchEvent(rec.Events()[0], table.Add, 0)
			testutils.MatchEvent(rec.Last(), table.Update, 1, testutils.ValueColumn)
			// the zero-valued row was added in front of row 1 and then moved behind it
			Expect(moved).To(Equal(2))

			moved = 0
			Expect(base.DeleteRow(r)).To(Succeed())
			testutils.MatchEvent(rec.Last(), table.Delete, 1)
			Expect(moved).To(BeZero())
		})

		It("should forward updates that keep the position", func() {
			r0 := testutils.AddRow(base, testutils.ValueColumn, 1)
			testutils.AddRow(base, testutils.ValueColumn, 10)
			rec.Reset()

			Expect(base.Set(testutils.ValueColumn, r0, 2)).To(Succeed())
			Expect(rec.Events()).To(HaveLen(1))
			testutils.MatchEvent(rec.Last(), table.Update, 0, testutils.ValueColumn)

			Expect(base.Set(testutils.GroupColumn, r0, "G")).To(Succeed())
			testutils.MatchEvent(rec.Last(), table.Update, 0, testutils.GroupColumn)
		})

		It("should break ties by source row", func() {
			a := testutils.AddRow(base, testutils.ValueColumn, 3)
			b := testutils.AddRow(base, testutils.ValueColumn, 3)
			c := testutils.AddRow(base, testutils.ValueColumn, 3)
			Expect([]int{s.GetRowAt(0), s.GetRowAt(1), s.GetRowAt(2)}).To(Equal([]int{a, b, c}))

			rec.Reset()
			Expect(base.DeleteRow(b)).To(Succeed())
			Expect(rec.Events()).To(HaveLen(1))
			testutils.MatchEvent(rec.Last(), table.Delete, 1)
			Expect(s.GetRowAt(1)).To(Equal(c))
			Expect(s.GetPositionOfRow(b)).To(Equal(-1))
		})

		It("should emit a single event per source mutation at the sorted position", func() {
			rows := []int{}
			for k := 1; k <= 1000; k++ {
				rows = append(rows, testutils.AddRow(base, testutils.ValueColumn, k))
			}
			moved := 0
			sub := s.OnPositionsChanged(func() { moved++ })
			defer sub.Close()

			rec.Reset()
			r, err := base.AddRow()
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Events()).To(HaveLen(1))
			testutils.MatchEvent(rec.Last(), table.Add, 0)
			Expect(moved).To(Equal(1))

			rec.Reset()
			Expect(base.Set(testutils.ValueColumn, r, 2000)).To(Succeed())
			Expect(rec.Events()).To(HaveLen(1))
			testutils.MatchEvent(rec.Last(), table.Update, 1000, testutils.ValueColumn)
			Expect(s.GetRowAt(1000)).To(Equal(r))
			Expect(moved).To(Equal(2))

			rec.Reset()
			Expect(base.Set(testutils.ValueColumn, rows[499], 250)).To(Succeed())
			Expect(rec.Events()).To(HaveLen(1))
			// ties with the row holding 250 go by source row id
			testutils.MatchEvent(rec.Last(), table.Update, 250, testutils.ValueColumn)
			Expect(s.GetPositionOfRow(rows[499])).To(Equal(250))

			rec.Reset()
			Expect(base.DeleteRow(s.GetRowAt(0))).To(Succeed())
			Expect(rec.Events()).To(HaveLen(1))
			testutils.MatchEvent(rec.Last(), table.Delete, 0)
			Expect(s.RowCount()).To(Equal(1000))
			Expect(rec.Live()).To(Equal(1000))
			Expect(slices.IsSorted(keysOf(s, testutils.ValueColumn))).To(BeTrue())
		})

		It("should let a position tracker follow the stable rows", func() {
			tracker := table.NewPositionTracker(s)
			Expect(s.ReplayRows(table.ObserverFunc(func(ev table.Event) error {
				_, err := tracker.Translate(ev)
				return err
			}))).To(Succeed())
			stable := testutils.NewRecorder()
			sub := s.Subscribe(table.ObserverFunc(func(ev table.Event) error {
				tev, err := tracker.Translate(ev)
				if err != nil {
					return err
				}
				return stable.OnEvent(tev)
			}))
			defer sub.Close()

			a := testutils.AddRow(base, testutils.ValueColumn, 4)
			b := testutils.AddRow(base, testutils.ValueColumn, 2)
			Expect(base.Set(testutils.ValueColumn, a, 1)).To(Succeed())
			testutils.MatchEvent(stable.Last(), table.Update, a, testutils.ValueColumn)
			Expect(tracker.Position(a)).To(Equal(0))
			Expect(tracker.Position(b)).To(Equal(1))

			Expect(base.DeleteRow(a)).To(Succeed())
			testutils.MatchEvent(stable.Last(), table.Delete, a)
			Expect(tracker.Position(b)).To(Equal(0))
			Expect(stable.Live()).To(Equal(1))
		})

		It("should keep keys non-decreasing under random mutations", func() {
			f, err := filter.New(s, filter.Compare(testutils.ValueColumn, filter.Ge, 50), table.Options{})
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()

			rnd := rand.New(rand.NewSource(3))
			for i := 0; i < 1000; i++ {
				rows := base.Rows()
				switch r := rnd.Intn(10); {
				case r < 3 && len(rows) > 0:
					Expect(base.DeleteRow(rows[rnd.Intn(len(rows))])).To(Succeed())
				case r < 6 && len(rows) > 0:
					Expect(base.Set(testutils.ValueColumn, rows[rnd.Intn(len(rows))], rnd.Intn(100))).To(Succeed())
				default:
					testutils.AddRow(base, testutils.ValueColumn, rnd.Intn(100))
				}

				keys := keysOf(s, testutils.ValueColumn)
				Expect(slices.IsSorted(keys)).To(BeTrue())
				Expect(s.RowCount()).To(Equal(base.RowCount()))
				Expect(rec.Live()).To(Equal(s.RowCount()))

				big := 0
				for _, k := range keys {
					if k >= 50 {
						big++
					}
				}
				Expect(f.RowCount()).To(Equal(big))
			}
		})
	})

	Context("Dynamic construction", func() {
		It("should sort by column type and direction", func() {
			base = testutils.NewTestTable()
			for _, v := range []int{4, 1, 3} {
				testutils.AddRow(base, testutils.ValueColumn, v)
			}
			s, err := sorted.ByColumn(base, testutils.ValueColumn, true, table.Options{Name: "desc"})
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()
			Expect(s.Name()).To(Equal("desc"))
			Expect(keysOf(s, testutils.ValueColumn)).To(Equal([]int{4, 3, 1}))
		})

		It("should sort booleans false first", func() {
			base = table.NewBase("flags")
			testutils.Must(base.AddColumn(table.NewStore[bool](testutils.BooleanColumn)))
			testutils.AddRow(base, testutils.BooleanColumn, true)
			testutils.AddRow(base, testutils.BooleanColumn, false)
			s, err := sorted.ByColumn(base, testutils.BooleanColumn, false, table.Options{})
			Expect(err).NotTo(HaveOccurred())
			v, err := table.GetValue[bool](s, testutils.BooleanColumn, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeFalse())
		})

		It("should reject mismatched key types", func() {
			base = testutils.NewTestTable()
			_, err := sorted.New(base, testutils.ValueColumn, cmp.Compare[string], table.Options{})
			Expect(errors.Is(err, table.ErrTypeMismatch)).To(BeTrue())
		})
	})
})
