package types_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	. "github.com/supremind/svcaccess/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var _ = Describe("period", func() {
	DescribeTable("add to dates",
		func(p Period, from, want time.Time) {
			Expect(p.AddTo(from)).To(Equal(want))
		},
		Entry("one month clamps to february", MonthsPeriod(1), date(2023, 1, 31), date(2023, 2, 28)),
		Entry("one month clamps to leap february", MonthsPeriod(1), date(2024, 1, 31), date(2024, 2, 29)),
		Entry("six months", MonthsPeriod(6), date(2023, 8, 31), date(2024, 2, 29)),
		Entry("one year from leap day", YearsPeriod(1), date(2024, 2, 29), date(2025, 2, 28)),
		Entry("days", DaysPeriod(30), date(2023, 12, 15), date(2024, 1, 14)),
		Entry("minus one month", MonthsPeriod(-1), date(2023, 3, 31), date(2023, 2, 28)),
		Entry("minus thirteen months", MonthsPeriod(-13), date(2023, 1, 15), date(2021, 12, 15)),
	)

	It("subtracts periods", func() {
		Expect(YearsPeriod(2).SubFrom(date(2024, 2, 29))).To(Equal(date(2022, 2, 28)))
	})

	DescribeTable("parse",
		func(s string, want Period) {
			Expect(ParsePeriod(s)).To(Equal(want))
		},
		Entry("years", "1y", YearsPeriod(1)),
		Entry("months", "2mo", MonthsPeriod(2)),
		Entry("weeks", "2w", DaysPeriod(14)),
		Entry("days", " 2d", DaysPeriod(2)),
	)

	It("parses lists", func() {
		Expect(ParsePeriods("2mo,2w,2d")).To(Equal([]Period{MonthsPeriod(2), DaysPeriod(14), DaysPeriod(2)}))
		Expect(ParsePeriods("")).To(BeEmpty())
	})

	It("rejects periods without units", func() {
		_, e := ParsePeriod("12")
		Expect(e).To(HaveOccurred())
	})

	It("prints periods", func() {
		Expect(MonthsPeriod(2).String()).To(Equal("2mo"))
		Expect(DaysPeriod(14).String()).To(Equal("2w"))
		Expect(DaysPeriod(2).String()).To(Equal("2d"))
	})
})
