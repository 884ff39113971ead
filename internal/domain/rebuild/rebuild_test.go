package rebuild_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/besttime/internal/adapters/repository"
	"github.com/okian/besttime/internal/domain/leaderboard"
	"github.com/okian/besttime/internal/domain/rebuild"
	logging "github.com/okian/besttime/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type stubSource struct {
	entries []repository.Entry
	err     error
}

func (s stubSource) BestTimes(context.Context) ([]repository.Entry, error) {
	return s.entries, s.err
}

// racingSource returns a snapshot and then lets submissions land before
// the rebuild gets to swap it in.
type racingSource struct {
	entries []repository.Entry
	during  func()
}

func (s racingSource) BestTimes(context.Context) ([]repository.Entry, error) {
	out := append([]repository.Entry(nil), s.entries...)
	s.during()
	return out, nil
}

func TestRun(t *testing.T) {
	if err := logging.Init(); err != nil {
		t.Fatalf("init logger: %v", err)
	}

	convey.Convey("Given an index holding stale state", t, func() {
		ctx := context.Background()
		index := repository.NewTreapStore(ctx, repository.WithSeed(1))
		defer index.Close()
		_, _ = index.UpsertIfBetter(ctx, "stale", 9000)

		convey.Convey("A successful rebuild replaces it entirely", func() {
			res, err := rebuild.Run(ctx, stubSource{entries: []repository.Entry{
				{PlayerID: "a", BestMs: 40000},
				{PlayerID: "b", BestMs: 30000},
			}}, index)

			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Players, convey.ShouldEqual, 2)
			convey.So(index.Size(ctx), convey.ShouldEqual, 2)

			_, err = index.RankOf(ctx, "stale")
			convey.So(errors.Is(err, repository.ErrNotFound), convey.ShouldBeTrue)

			rank, err := index.RankOf(ctx, "b")
			convey.So(err, convey.ShouldBeNil)
			convey.So(rank, convey.ShouldEqual, 1)
		})

		convey.Convey("A failing source leaves it unchanged", func() {
			_, err := rebuild.Run(ctx, stubSource{err: errors.New("db locked")}, index)

			convey.So(errors.Is(err, rebuild.ErrSourceUnavailable), convey.ShouldBeTrue)
			convey.So(index.Size(ctx), convey.ShouldEqual, 1)
			rank, err := index.RankOf(ctx, "stale")
			convey.So(err, convey.ShouldBeNil)
			convey.So(rank, convey.ShouldEqual, 1)
		})

		convey.Convey("Submissions made during the scan survive the swap", func() {
			board := leaderboard.NewService(index)
			_, err := board.Submit(ctx, "x", 50000)
			convey.So(err, convey.ShouldBeNil)

			res, err := rebuild.Run(ctx, racingSource{
				entries: []repository.Entry{{PlayerID: "x", BestMs: 50000}},
				during: func() {
					_, errX := board.Submit(ctx, "x", 30000)
					_, errY := board.Submit(ctx, "y", 40000)
					convey.So(errX, convey.ShouldBeNil)
					convey.So(errY, convey.ShouldBeNil)
				},
			}, index)

			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Players, convey.ShouldEqual, 2)
			convey.So(board.MyRank(ctx, "x").Record, convey.ShouldEqual, "30.00")
			convey.So(board.MyRank(ctx, "x").Rank, convey.ShouldEqual, 1)
			convey.So(board.MyRank(ctx, "y").Record, convey.ShouldEqual, "40.00")
			convey.So(board.MyRank(ctx, "y").Rank, convey.ShouldEqual, 2)

			_, err = index.RankOf(ctx, "stale")
			convey.So(errors.Is(err, repository.ErrNotFound), convey.ShouldBeTrue)
		})

		convey.Convey("An empty history empties the index", func() {
			res, err := rebuild.Run(ctx, stubSource{}, index)
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Players, convey.ShouldEqual, 0)
			convey.So(index.Size(ctx), convey.ShouldEqual, 0)
		})
	})
}
