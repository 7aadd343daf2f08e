package datatable_test

import (
	"bytes"
	"fmt"
	"math/rand"
	"strings"

	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func encodedSize(t datatable.DataTable) int {
	var buf bytes.Buffer
	Expect(datatable.Encode(&buf, t)).To(Succeed())
	return buf.Len()
}

var _ = Describe("split", func() {
	// "Name,Age\n" is 9 bytes and every "a,1\n" row is 4 bytes.
	twoRows := func() datatable.DataTable {
		return datatable.NewBuilder("Name", "Age").AddRow("a", "1").AddRow("b", "2").Build()
	}

	It("keeps a table one byte under the limit in a single chunk", func() {
		chunks := datatable.SplitWithLimit(twoRows(), 18)
		Expect(chunks).To(HaveLen(1))
		Expect(chunks[0].Len()).To(Equal(2))
	})

	It("starts a new chunk when a row would reach the limit exactly", func() {
		chunks := datatable.SplitWithLimit(twoRows(), 17)
		Expect(chunks).To(HaveLen(2))
		Expect(chunks[0].Records()).To(Equal([][]string{{"a", "1"}}))
		Expect(chunks[1].Records()).To(Equal([][]string{{"b", "2"}}))
		Expect(chunks[1].Columns()).To(Equal([]string{"Name", "Age"}))
	})

	It("returns one empty chunk for an empty table", func() {
		chunks := datatable.Split(datatable.Empty("Name"))
		Expect(chunks).To(HaveLen(1))
		Expect(chunks[0].Len()).To(Equal(0))
		Expect(chunks[0].Columns()).To(Equal([]string{"Name"}))
	})

	It("emits an oversized row as a chunk of its own", func() {
		table := datatable.NewBuilder("V").
			AddRow("x").
			AddRow(strings.Repeat("y", 64)).
			AddRow("z").
			Build()

		chunks := datatable.SplitWithLimit(table, 16)
		Expect(chunks).To(HaveLen(3))
		Expect(chunks[1].Len()).To(Equal(1))
		for _, c := range chunks {
			Expect(c.Len()).To(BeNumerically(">", 0))
		}
	})

	It("emits a leading oversized row as a chunk of its own without an empty chunk ahead of it", func() {
		table := datatable.NewBuilder("V").
			AddRow(strings.Repeat("y", 64)).
			AddRow("z").
			Build()

		chunks := datatable.SplitWithLimit(table, 16)
		Expect(chunks).To(HaveLen(2))
		Expect(chunks[0].Records()).To(Equal([][]string{{strings.Repeat("y", 64)}}))
		Expect(chunks[1].Records()).To(Equal([][]string{{"z"}}))

		only := datatable.NewBuilder("V").AddRow(strings.Repeat("y", 64)).Build()
		Expect(datatable.SplitWithLimit(only, 16)).To(HaveLen(1))
	})

	It("counts a quoted empty value in a single column table", func() {
		// "Id\n" is 3 bytes, "a\n" is 2 and the empty row is written as 3.
		table := datatable.NewBuilder("Id").AddRow("a").AddRowMap(nil).Build()

		chunks := datatable.SplitWithLimit(table, 8)
		Expect(chunks).To(HaveLen(2))
		Expect(chunks[1].Len()).To(Equal(1))
		Expect(datatable.SplitWithLimit(table, 9)).To(HaveLen(1))
	})

	It("keeps every chunk under the limit and preserves every row in order", func() {
		r := rand.New(rand.NewSource(42))
		b := datatable.NewBuilder("Id", "Name", "Notes")
		for i := 0; i < 500; i++ {
			b.AddRow(fmt.Sprintf("%d", i), strings.Repeat("n", r.Intn(20)), strings.Repeat("x,", r.Intn(10)))
		}
		table := b.Build()

		const limit = 512
		chunks := datatable.SplitWithLimit(table, limit)
		Expect(len(chunks)).To(BeNumerically(">", 1))

		var rows [][]string
		for _, c := range chunks {
			Expect(encodedSize(c)).To(BeNumerically("<", limit))
			rows = append(rows, c.Records()...)
		}
		Expect(rows).To(Equal(table.Records()))
	})

	It("uses the 100MB default", func() {
		Expect(datatable.DefaultChunkSizeLimit).To(Equal(100_000_000))
		chunks := datatable.Split(twoRows())
		Expect(chunks).To(HaveLen(1))
	})
})
