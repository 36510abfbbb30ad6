package dag

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DAG", func() {
	It("should sort dependents after their sources", func() {
		g := New()
		for _, n := range []string{"totals", "xs", "trades", "other"} {
			Expect(g.AddNode(n)).To(BeTrue())
		}
		Expect(g.AddNode("xs")).To(BeFalse())
		g.AddEdge("trades", "xs")
		g.AddEdge("xs", "totals")
		g.AddEdge("other", "totals")

		Expect(g.Roots()).To(Equal([]string{"trades", "other"}))
		Expect(g.Edges("trades")).To(Equal([]string{"xs"}))
		Expect(g.HasEdge("xs", "totals")).To(BeTrue())
		Expect(g.HasEdge("totals", "xs")).To(BeFalse())

		order, err := g.Sort()
		Expect(err).NotTo(HaveOccurred())
		Expect(order).To(Equal([]string{"trades", "other", "xs", "totals"}))
	})

	It("should report cycles", func() {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		g.AddEdge("a", "b")
		g.AddEdge("b", "c")
		g.AddEdge("c", "b")

		_, err := g.Sort()
		Expect(errors.Is(err, ErrCycle)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("b, c"))
	})
})
