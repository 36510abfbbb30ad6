package graph

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dtable/internal/dag"
	"github.com/l7mp/dtable/pkg/join"
	"github.com/l7mp/dtable/pkg/snapshot"
	"github.com/l7mp/dtable/pkg/table"
)

const testGraph = `
tables:
  - name: trades
    columns: [{name: Group, type: string}, {name: Value, type: int}]
  - name: accounts
    columns: [{name: Id, type: int}, {name: Owner, type: string}]
    indexes: [Owner]
  - name: holdings
    columns: [{name: AccountId, type: int}, {name: Asset, type: string}]
views:
  - name: top
    source: xs
    sort: {column: Value, descending: true}
  - name: xs
    source: trades
    filter: {column: Group, op: eq, value: X}
  - name: totals
    source: trades
    aggregate:
      groupBy: [Group]
      columns: [{name: Sum, op: sum, source: Value}, {name: "N", op: count, source: Value}]
  - name: owned
    join: {left: accounts, right: holdings, leftKey: Id, rightKey: AccountId}
`

const testScript = `
steps:
  - {table: trades, op: add, row: a, values: {Group: X, Value: 1}}
  - {table: trades, op: add, row: b, values: {Group: X, Value: 5}}
  - {table: trades, op: add, row: c, values: {Group: "Y", Value: 2}}
  - {table: trades, op: set, row: a, values: {Value: 10}}
  - {table: trades, op: delete, row: c}
  - {table: accounts, op: add, row: alice, values: {Id: 1, Owner: alice}}
  - {table: holdings, op: add, row: h1, values: {AccountId: 1, Asset: BTC}}
`

func take(g *Graph, name string) *snapshot.Snapshot {
	t, err := g.Table(name)
	Expect(err).NotTo(HaveOccurred())
	s, err := snapshot.Take(t)
	Expect(err).NotTo(HaveOccurred())
	return s
}

func rows(rs ...snapshot.Row) *snapshot.Snapshot {
	s, err := snapshot.FromRows(rs...)
	Expect(err).NotTo(HaveOccurred())
	return s
}

var _ = Describe("Graph", func() {
	var g *Graph

	BeforeEach(func() {
		spec, err := Parse([]byte(testGraph))
		Expect(err).NotTo(HaveOccurred())
		g, err = Build(spec, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		g.Close()
	})

	It("should build views after their sources", func() {
		Expect(g.Names()).To(Equal([]string{"trades", "accounts", "holdings", "xs", "totals", "owned", "top"}))
		Expect(g.Kind("trades")).To(Equal("table"))
		Expect(g.Kind("top")).To(Equal("sort"))
		Expect(g.Kind("owned")).To(Equal("join"))
		Expect(g.Dependencies().Edges("trades")).To(Equal([]string{"xs", "totals"}))

		t, err := g.Table("owned")
		Expect(err).NotTo(HaveOccurred())
		Expect(t.(*join.Table).Type()).To(Equal(join.Inner))
	})

	It("should run a script through every view", func() {
		script, err := ParseScript([]byte(testScript))
		Expect(err).NotTo(HaveOccurred())

		r := NewRunner(g, logr.Discard())
		steps := 0
		Expect(r.Run(script, func(int, Step) error { steps++; return nil })).To(Succeed())
		Expect(steps).To(Equal(7))

		Expect(take(g, "xs").Equal(rows(
			snapshot.MustRow("Group", "X", "Value", 10),
			snapshot.MustRow("Group", "X", "Value", 5),
		))).To(BeTrue())

		top, err := g.Table("top")
		Expect(err).NotTo(HaveOccurred())
		Expect(table.GetValue[int](top, "Value", 0)).To(Equal(10))
		Expect(table.GetValue[int](top, "Value", 1)).To(Equal(5))

		Expect(take(g, "totals").Equal(rows(
			snapshot.MustRow("Group", "X", "Sum", 15, "N", 2),
		))).To(BeTrue())

		Expect(take(g, "owned").Equal(rows(
			snapshot.MustRow("Id", 1, "Owner", "alice", "AccountId", 1, "Asset", "BTC"),
		))).To(BeTrue())

		accounts, err := g.Base("accounts")
		Expect(err).NotTo(HaveOccurred())
		row, ok := r.Row("accounts", "alice")
		Expect(ok).To(BeTrue())
		Expect(accounts.Find("Owner", "alice")).To(Equal(row))

		_, ok = r.Row("trades", "c")
		Expect(ok).To(BeFalse())
	})

	It("should refuse writes to views", func() {
		_, err := g.Base("xs")
		Expect(errors.Is(err, table.ErrUnsupportedOperation)).To(BeTrue())
		_, err = g.Base("missing")
		Expect(err).To(HaveOccurred())
		_, err = g.Table("missing")
		Expect(err).To(HaveOccurred())

		err = NewRunner(g, logr.Discard()).Apply(Step{Table: "xs", Op: StepAdd})
		Expect(errors.Is(err, table.ErrUnsupportedOperation)).To(BeTrue())
	})

	It("should fail on unknown row labels and columns", func() {
		r := NewRunner(g, logr.Discard())
		Expect(r.Apply(Step{Table: "trades", Op: StepSet, Row: "nope"})).To(MatchError(ContainSubstring("nope")))
		err := r.Apply(Step{Table: "trades", Op: StepAdd, Values: map[string]any{"Missing": 1}})
		Expect(errors.Is(err, table.ErrUnknownColumn)).To(BeTrue())
		err = r.Apply(Step{Table: "trades", Op: StepAdd, Values: map[string]any{"Value": "x"}})
		Expect(errors.Is(err, table.ErrTypeMismatch)).To(BeTrue())
	})

	It("should load specs and scripts from files", func() {
		dir := GinkgoT().TempDir()
		specFile := filepath.Join(dir, "graph.yaml")
		scriptFile := filepath.Join(dir, "script.yaml")
		Expect(os.WriteFile(specFile, []byte(testGraph), 0o600)).To(Succeed())
		Expect(os.WriteFile(scriptFile, []byte(testScript), 0o600)).To(Succeed())

		spec, err := LoadFile(specFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(spec.Views).To(HaveLen(4))
		script, err := LoadScript(scriptFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(script.Steps).To(HaveLen(7))

		_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Validation", func() {
	DescribeTable("should name the offending view",
		func(doc, msg string) {
			_, err := Parse([]byte(doc))
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("unknown source", `
tables: [{name: t, columns: [{name: A, type: int}]}]
views: [{name: v, source: nope, sort: {column: A}}]`, `view "v": unknown source "nope"`),
		Entry("two operators", `
tables: [{name: t, columns: [{name: A, type: int}]}]
views: [{name: v, source: t, sort: {column: A}, filter: {column: A, op: eq, value: 1}}]`, `view "v": exactly one`),
		Entry("unknown filter op", `
tables: [{name: t, columns: [{name: A, type: int}]}]
views: [{name: v, source: t, filter: {column: A, op: like, value: 1}}]`, `view "v": unknown filter operator`),
		Entry("unknown aggregation", `
tables: [{name: t, columns: [{name: A, type: int}]}]
views: [{name: v, source: t, aggregate: {columns: [{name: M, op: median, source: A}]}}]`, `view "v": aggregate column "M"`),
		Entry("join with source", `
tables: [{name: t, columns: [{name: A, type: int}]}]
views: [{name: v, source: t, join: {left: t, right: t, leftKey: A, rightKey: A}}]`, `view "v": join takes left and right`),
		Entry("bad join type", `
tables: [{name: t, columns: [{name: A, type: int}]}]
views: [{name: v, join: {left: t, right: t, leftKey: A, rightKey: A, type: cross}}]`, `view "v": unknown join type`),
		Entry("duplicate name", `
tables: [{name: t, columns: [{name: A, type: int}]}]
views: [{name: t, source: t, sort: {column: A}}]`, `view "t": duplicate name`),
		Entry("bad column type", `
tables: [{name: t, columns: [{name: A, type: decimal}]}]`, `table "t": column "A"`),
		Entry("unquoted boolean column name", `
tables: [{name: t, columns: [{name: A, type: int}]}]
views: [{name: v, source: t, aggregate: {columns: [{name: N, op: count, source: A}]}}]`, `view "v": aggregate column: name "false" is a YAML boolean`),
		Entry("bad column name", `
tables: [{name: t, columns: [{name: "A B", type: int}]}]`, `table "t": column: name "A B" is not an identifier`),
		Entry("unknown field", `
tables: [{name: t, columns: [{name: A, type: int}], primary: A}]`, `failed to parse graph spec`),
	)

	It("should reject cycles", func() {
		_, err := Parse([]byte(`
tables: [{name: t, columns: [{name: A, type: int}]}]
views:
  - {name: a, source: b, sort: {column: A}}
  - {name: b, source: a, sort: {column: A}}`))
		Expect(errors.Is(err, dag.ErrCycle)).To(BeTrue())
	})

	It("should report operator failures at build time", func() {
		spec, err := Parse([]byte(`
tables: [{name: t, columns: [{name: A, type: int}]}]
views: [{name: v, source: t, sort: {column: Missing}}]`))
		Expect(err).NotTo(HaveOccurred())
		_, err = Build(spec, logr.Discard())
		Expect(err).To(MatchError(ContainSubstring(`view "v"`)))
		Expect(errors.Is(err, table.ErrUnknownColumn)).To(BeTrue())
	})

	It("should reject bad scripts", func() {
		_, err := ParseScript([]byte(`steps: [{table: t, op: upsert}]`))
		Expect(err).To(MatchError(ContainSubstring("unknown op")))
		_, err = ParseScript([]byte(`steps: [{table: t, op: delete}]`))
		Expect(err).To(MatchError(ContainSubstring("row label")))
	})
})
