package engagement_test

import (
	"testing"
	"time"

	"github.com/okian/arcade/internal/domain/engagement"
	"github.com/okian/arcade/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRollups(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []model.PositionHistory{
		{GameID: "a", Position: 5, ClickCount: 3, LastClickedAt: now.Add(-2 * time.Hour)},
		{GameID: "a", Position: 7, ClickCount: 2, LastClickedAt: now.Add(-time.Minute)},
		{GameID: "b", Position: 5, ClickCount: 5, LastClickedAt: now.Add(-10 * time.Minute)},
		{GameID: "c", Position: 1, ClickCount: 10, LastClickedAt: now},
	}

	Convey("Given history rows for several games and slots", t, func() {
		Convey("When grouping by position", func() {
			perf := engagement.ByPosition(rows)

			Convey("Then each slot sums every game that held it", func() {
				So(perf, ShouldHaveLength, 3)
				So(perf[0].Position, ShouldEqual, 1)
				So(perf[1].Position, ShouldEqual, 5)
				So(perf[1].TotalClicks, ShouldEqual, 8)
				So(perf[1].GameCount, ShouldEqual, 2)
				So(perf[1].AvgClicksByGame, ShouldEqual, 4)
				So(perf[1].ShareOfClicks, ShouldEqual, 0.4)
				So(perf[1].LastClickedAt, ShouldEqual, now.Add(-10*time.Minute))
			})
		})

		Convey("When asking for the most clicked positions", func() {
			top := engagement.MostClicked(rows, 2)

			Convey("Then they are ordered by clicks and capped", func() {
				So(top, ShouldHaveLength, 2)
				So(top[0].Position, ShouldEqual, 1)
				So(top[1].Position, ShouldEqual, 5)
			})
		})

		Convey("When summarising one game", func() {
			h := engagement.ForGame("a", rows[:2])

			Convey("Then positions stay independent", func() {
				So(h.TotalClicks, ShouldEqual, 5)
				So(h.Positions[0].Position, ShouldEqual, 5)
				So(h.Positions[0].ClickCount, ShouldEqual, 3)
				So(h.Positions[1].ClickCount, ShouldEqual, 2)
				So(h.Positions[0].ShareOfClicks, ShouldEqual, 0.6)
			})
		})

		Convey("When filtering recent activity", func() {
			ra := engagement.Recent(rows, now.Add(-time.Hour))

			Convey("Then old rows are dropped and newest come first", func() {
				So(ra.Rows, ShouldHaveLength, 3)
				So(ra.Rows[0].GameID, ShouldEqual, "c")
				So(ra.TotalClicks, ShouldEqual, 17)
			})
		})

		Convey("When there are no rows", func() {
			Convey("Then rollups are empty, not nil-panicking", func() {
				So(engagement.ByPosition(nil), ShouldBeEmpty)
				So(engagement.ForGame("x", nil).TotalClicks, ShouldEqual, 0)
				So(engagement.Recent(nil, now).Rows, ShouldBeEmpty)
			})
		})
	})
}
