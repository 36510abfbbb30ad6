package batch_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dtable/internal/testutils"
	"github.com/l7mp/dtable/pkg/batch"
	"github.com/l7mp/dtable/pkg/table"
)

var _ = Describe("Batch adapter", func() {
	var (
		base *table.Base
		rec  *testutils.Recorder
		a    *batch.Adapter
	)

	BeforeEach(func() {
		base = testutils.NewTestTable()
		rec = testutils.NewRecorder()
		a = batch.New(base, rec, batch.Options{Period: 10 * time.Millisecond})
	})

	It("should hold events until flushed", func() {
		row := testutils.AddRow(base, testutils.ValueColumn, 1)
		Expect(base.DeleteRow(row)).To(Succeed())
		Expect(rec.Events()).To(BeEmpty())
		Expect(a.Pending()).To(Equal(3))

		Expect(a.Flush()).To(Succeed())
		Expect(rec.Kinds()).To(Equal([]table.EventKind{table.Add, table.Update, table.Delete}))
		Expect(a.Pending()).To(Equal(0))
		Expect(a.Flush()).To(Succeed())
	})

	It("should report target failures", func() {
		testutils.AddRow(base)
		testutils.AddRow(base)
		rec.Fail = errors.New("boom")
		Expect(a.Flush()).To(MatchError("boom"))
		Expect(rec.Events()).To(HaveLen(1))
		Expect(a.Pending()).To(Equal(0))
	})

	It("should flush periodically until stopped", func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- a.Start(ctx) }()

		// table mutations stay on this goroutine, the target only sees queued events
		testutils.AddRow(base)
		Eventually(func() int { return rec.Count(table.Add) }).Should(Equal(1))

		cancel()
		err, ok := testutils.TryRecv(done, time.Second)
		Expect(ok).To(BeTrue())
		Expect(err).NotTo(HaveOccurred())

		testutils.AddRow(base)
		Expect(a.Pending()).To(Equal(0))
	})
})
