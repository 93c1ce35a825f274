package repository_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/arcade/internal/adapters/repository"
	"github.com/okian/arcade/internal/domain/apperr"
	"github.com/okian/arcade/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *repository.DB {
	t.Helper()
	db, err := repository.Open(context.Background(), filepath.Join(t.TempDir(), "arcade.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedGames(t *testing.T, db *repository.DB, n int) {
	t.Helper()
	catalog := repository.NewCatalogRepository(db)
	for i := 1; i <= n; i++ {
		pos := i
		g := model.Game{
			ID:        fmt.Sprintf("g%d", i),
			Title:     fmt.Sprintf("Game %d", i),
			Position:  &pos,
			IsActive:  true,
			CreatedAt: t0,
			UpdatedAt: t0,
		}
		if err := catalog.CreateGame(context.Background(), g); err != nil {
			t.Fatalf("seed game %d: %v", i, err)
		}
	}
}

func TestOpen(t *testing.T) {
	Convey("Given an empty path", t, func() {
		_, err := repository.Open(context.Background(), " ")

		Convey("Then Open fails", func() {
			So(errors.Is(err, repository.ErrOpen), ShouldBeTrue)
		})
	})

	Convey("Given a database opened twice", t, func() {
		path := filepath.Join(t.TempDir(), "nested", "arcade.db")
		first, err := repository.Open(context.Background(), path)
		So(err, ShouldBeNil)
		So(first.Close(), ShouldBeNil)

		second, err := repository.Open(context.Background(), path)

		Convey("Then migrations are not reapplied", func() {
			So(err, ShouldBeNil)
			So(second.Ping(context.Background()), ShouldBeNil)
			So(second.Close(), ShouldBeNil)
		})
	})
}

func TestUsageRepository(t *testing.T) {
	Convey("Given a usage repository", t, func() {
		ctx := context.Background()
		repo := repository.NewUsageRepository(openTestDB(t))
		e := model.UsageEvent{
			ID: "e1", SessionID: "s1", GameID: "g1", ActivityType: model.ActivityGamePlay,
			StartTime: t0, SessionCount: 1, CreatedAt: t0, UpdatedAt: t0,
		}

		Convey("When the same event is inserted twice", func() {
			first, err1 := repo.Insert(ctx, e)
			second, err2 := repo.Insert(ctx, e)

			Convey("Then only one row is written", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				got, err := repo.Get(ctx, "e1")
				So(err, ShouldBeNil)
				So(got.StartTime, ShouldEqual, t0)
				So(got.EndTime, ShouldBeNil)
			})
		})

		Convey("When a short game session is pruned", func() {
			_, err := repo.Insert(ctx, e)
			So(err, ShouldBeNil)

			res, err := repo.Mutate(ctx, "e1", t0, func(ev *model.UsageEvent) (bool, error) {
				end := t0.Add(10 * time.Second)
				ev.EndTime = &end
				return true, nil
			})

			Convey("Then it is deleted and tombstoned", func() {
				So(err, ShouldBeNil)
				So(res.Pruned, ShouldBeTrue)
				So(res.Event, ShouldBeNil)
				_, err := repo.Get(ctx, "e1")
				So(errors.Is(err, apperr.ErrNotFound), ShouldBeTrue)
				gone, err := repo.Tombstoned(ctx, "e1")
				So(err, ShouldBeNil)
				So(gone, ShouldBeTrue)
			})

			Convey("And a second finalize reports it as gone without error", func() {
				called := false
				res, err := repo.Mutate(ctx, "e1", t0, func(*model.UsageEvent) (bool, error) {
					called = true
					return true, nil
				})
				So(err, ShouldBeNil)
				So(res.Gone, ShouldBeTrue)
				So(res.Pruned, ShouldBeFalse)
				So(called, ShouldBeFalse)
			})

			Convey("And a redelivered insert does not resurrect it", func() {
				inserted, err := repo.Insert(ctx, e)
				So(err, ShouldBeNil)
				So(inserted, ShouldBeFalse)
			})
		})

		Convey("When mutating an unknown event", func() {
			_, err := repo.Mutate(ctx, "missing", t0, func(*model.UsageEvent) (bool, error) { return false, nil })

			Convey("Then it is not found", func() {
				So(errors.Is(err, apperr.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a mutation keeps the event", func() {
			_, err := repo.Insert(ctx, e)
			So(err, ShouldBeNil)
			res, err := repo.Mutate(ctx, "e1", t0, func(ev *model.UsageEvent) (bool, error) {
				end := t0.Add(45 * time.Second)
				ev.EndTime = &end
				ev.SessionCount = 2
				return false, nil
			})

			Convey("Then the change is persisted", func() {
				So(err, ShouldBeNil)
				So(res.Event, ShouldNotBeNil)
				got, err := repo.Get(ctx, "e1")
				So(err, ShouldBeNil)
				So(*got.EndTime, ShouldEqual, t0.Add(45*time.Second))
				So(got.SessionCount, ShouldEqual, 2)
			})
		})

		Convey("When listing and aggregating", func() {
			end := t0.Add(time.Minute)
			for _, ev := range []model.UsageEvent{
				{ID: "a", SessionID: "s1", GameID: "g1", ActivityType: model.ActivityGamePlay, StartTime: t0, EndTime: &end, SessionCount: 1},
				{ID: "b", SessionID: "s2", GameID: "g1", ActivityType: model.ActivityGamePlay, StartTime: t0.Add(time.Second), SessionCount: 1},
				{ID: "c", UserID: "u1", ActivityType: model.ActivityLogin, StartTime: t0.Add(2 * time.Second), SessionCount: 1},
			} {
				ev.CreatedAt, ev.UpdatedAt = t0, t0
				_, err := repo.Insert(ctx, ev)
				So(err, ShouldBeNil)
			}

			page, err := repo.List(ctx, model.UsageFilter{GameID: "g1", Page: 1, Limit: 1})
			So(err, ShouldBeNil)
			stats, err := repo.Stats(ctx, model.UsageFilter{})
			So(err, ShouldBeNil)

			Convey("Then filters, paging and groups line up", func() {
				So(page.Total, ShouldEqual, 2)
				So(page.Items, ShouldHaveLength, 1)
				So(page.Items[0].ID, ShouldEqual, "b")

				So(stats.Count, ShouldEqual, 3)
				So(stats.Finished, ShouldEqual, 1)
				So(stats.TotalSeconds, ShouldEqual, 60)
				So(stats.AvgSeconds, ShouldEqual, 60)
				So(stats.ByActivity, ShouldHaveLength, 2)
				So(stats.ByActivity[0].Key, ShouldEqual, string(model.ActivityGamePlay))
				So(stats.ByGame, ShouldHaveLength, 1)
				So(stats.ByGame[0].Count, ShouldEqual, 2)
			})
		})
	})
}

func TestRankRepository(t *testing.T) {
	Convey("Given three positioned games", t, func() {
		ctx := context.Background()
		db := openTestDB(t)
		seedGames(t, db, 3)
		rank := repository.NewRankRepository(db)
		catalog := repository.NewCatalogRepository(db)

		Convey("When g1 moves onto g3's slot", func() {
			res, err := rank.SetPosition(ctx, "g1", 3, t0)

			Convey("Then the two games swap", func() {
				So(err, ShouldBeNil)
				So(*res.Moved.Position, ShouldEqual, 3)
				So(res.Displaced, ShouldNotBeNil)
				So(res.Displaced.ID, ShouldEqual, "g3")
				So(*res.Displaced.Position, ShouldEqual, 1)

				at1, err := rank.GetAtPosition(ctx, 1)
				So(err, ShouldBeNil)
				So(at1.ID, ShouldEqual, "g3")
				at2, err := rank.GetAtPosition(ctx, 2)
				So(err, ShouldBeNil)
				So(at2.ID, ShouldEqual, "g2")
			})
		})

		Convey("When a game moves to its own slot", func() {
			res, err := rank.SetPosition(ctx, "g2", 2, t0)

			Convey("Then nothing is displaced", func() {
				So(err, ShouldBeNil)
				So(res.Displaced, ShouldBeNil)
			})
		})

		Convey("When the target is out of range", func() {
			_, err0 := rank.SetPosition(ctx, "g1", 0, t0)
			_, err4 := rank.SetPosition(ctx, "g1", 4, t0)

			Convey("Then it is a bad request", func() {
				So(errors.Is(err0, apperr.ErrBadRequest), ShouldBeTrue)
				So(errors.Is(err4, apperr.ErrBadRequest), ShouldBeTrue)
			})
		})

		Convey("When the game is unknown", func() {
			_, err := rank.SetPosition(ctx, "nope", 1, t0)

			Convey("Then it is not found", func() {
				So(errors.Is(err, apperr.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an unplaced game takes an occupied slot", func() {
			So(catalog.CreateGame(ctx, model.Game{ID: "g4", Title: "Game 4", IsActive: true, CreatedAt: t0, UpdatedAt: t0}), ShouldBeNil)
			res, err := rank.SetPosition(ctx, "g4", 2, t0)

			Convey("Then the occupant moves past the current maximum", func() {
				So(err, ShouldBeNil)
				So(*res.Displaced.Position, ShouldEqual, 4)
			})
		})

		Convey("When many reorders race", func() {
			var wg sync.WaitGroup
			for i := 0; i < 30; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _ = rank.SetPosition(ctx, fmt.Sprintf("g%d", i%3+1), (i*7)%3+1, t0)
				}(i)
			}
			wg.Wait()

			Convey("Then positions stay unique and dense", func() {
				positions, err := catalog.ActivePositions(ctx)
				So(err, ShouldBeNil)
				So(positions, ShouldHaveLength, 3)
				seen := map[int]bool{}
				for _, p := range positions {
					So(seen[p], ShouldBeFalse)
					seen[p] = true
				}
			})
		})

		Convey("When clicks are recorded across a move", func() {
			for i := 0; i < 3; i++ {
				_, err := rank.RecordClick(ctx, "g2", t0)
				So(err, ShouldBeNil)
			}
			_, err := rank.SetPosition(ctx, "g2", 3, t0)
			So(err, ShouldBeNil)
			var last int64
			for i := 0; i < 2; i++ {
				res, err := rank.RecordClick(ctx, "g2", t0.Add(time.Minute))
				So(err, ShouldBeNil)
				last = res.ClickCount
			}

			Convey("Then each (game, position) pair counts independently", func() {
				So(last, ShouldEqual, 2)
				rows, err := rank.History(ctx, "g2")
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[0].Position, ShouldEqual, 2)
				So(rows[0].ClickCount, ShouldEqual, 3)
				So(rows[1].Position, ShouldEqual, 3)
				So(rows[1].ClickCount, ShouldEqual, 2)

				recent, err := rank.HistorySince(ctx, t0.Add(30*time.Second))
				So(err, ShouldBeNil)
				So(recent, ShouldHaveLength, 1)
			})
		})

		Convey("When a game without a position is clicked", func() {
			So(catalog.DeactivateGame(ctx, "g1", t0), ShouldBeNil)
			_, err := rank.RecordClick(ctx, "g1", t0)

			Convey("Then it is not found", func() {
				So(errors.Is(err, apperr.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When concurrent clicks hit the same row", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = rank.RecordClick(ctx, "g1", t0)
				}()
			}
			wg.Wait()

			Convey("Then no increment is lost", func() {
				rows, err := rank.History(ctx, "g1")
				So(err, ShouldBeNil)
				So(rows[0].ClickCount, ShouldEqual, 20)
			})
		})
	})
}

func TestCatalogAndConfigRepositories(t *testing.T) {
	Convey("Given catalog and config repositories", t, func() {
		ctx := context.Background()
		db := openTestDB(t)
		catalog := repository.NewCatalogRepository(db)
		configs := repository.NewConfigRepository(db)
		cdn := repository.NewCDNRepository(db)

		Convey("When a duplicate category name is created", func() {
			So(catalog.CreateCategory(ctx, model.Category{ID: "c1", Name: "Arcade", CreatedAt: t0, UpdatedAt: t0}), ShouldBeNil)
			err := catalog.CreateCategory(ctx, model.Category{ID: "c2", Name: "Arcade", CreatedAt: t0, UpdatedAt: t0})

			Convey("Then it is a bad request", func() {
				So(errors.Is(err, apperr.ErrBadRequest), ShouldBeTrue)
			})
		})

		Convey("When a category is deleted", func() {
			So(catalog.CreateCategory(ctx, model.Category{ID: "c1", Name: "Puzzle", CreatedAt: t0, UpdatedAt: t0}), ShouldBeNil)
			So(catalog.CreateGame(ctx, model.Game{ID: "g1", Title: "Tiles", CategoryID: "c1", IsActive: true, CreatedAt: t0, UpdatedAt: t0}), ShouldBeNil)
			So(catalog.DeleteCategory(ctx, "c1"), ShouldBeNil)

			Convey("Then its games become uncategorised", func() {
				g, err := catalog.GetGame(ctx, "g1")
				So(err, ShouldBeNil)
				So(g.CategoryID, ShouldBeEmpty)
				So(errors.Is(catalog.DeleteCategory(ctx, "c1"), apperr.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When games are listed", func() {
			seedGames(t, db, 3)
			So(catalog.CreateGame(ctx, model.Game{ID: "g0", Title: "Unplaced", IsActive: true, CreatedAt: t0, UpdatedAt: t0}), ShouldBeNil)
			page, err := catalog.ListGames(ctx, model.GameFilter{ActiveOnly: true, Page: 1, Limit: 10})

			Convey("Then placed games come first in position order", func() {
				So(err, ShouldBeNil)
				So(page.Total, ShouldEqual, 4)
				So(page.Items[0].ID, ShouldEqual, "g1")
				So(page.Items[3].ID, ShouldEqual, "g0")
			})
		})

		Convey("When config entries are written", func() {
			So(configs.Create(ctx, model.SystemConfig{Key: "site.title", Value: "Arcade", CreatedAt: t0, UpdatedAt: t0}), ShouldBeNil)
			So(configs.Update(ctx, model.SystemConfig{Key: "site.title", Value: "Arcade+", UpdatedAt: t0}), ShouldBeNil)

			Convey("Then reads see the latest value", func() {
				c, err := configs.Get(ctx, "site.title")
				So(err, ShouldBeNil)
				So(c.Value, ShouldEqual, "Arcade+")
				all, err := configs.List(ctx)
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 1)
				So(configs.Delete(ctx, "site.title"), ShouldBeNil)
				_, err = configs.Get(ctx, "site.title")
				So(errors.Is(err, apperr.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the snapshot version is published", func() {
			before, err := cdn.Version(ctx)
			So(err, ShouldBeNil)
			off := false
			after, err := cdn.Publish(ctx, &off, t0)

			Convey("Then the version increments", func() {
				So(err, ShouldBeNil)
				So(after.Version, ShouldEqual, before.Version+1)
				So(after.Enabled, ShouldBeFalse)
			})
		})
	})
}
