package loadgen

import (
	"context"
	"fmt"
	"strconv"

	"github.com/okian/besttime/internal/domain/leaderboard"
	"github.com/okian/besttime/pkg/logger"
)

const verifyPageSize = 100

// verifyPages walks the whole public leaderboard and checks that ranks are
// contiguous and records never get slower as rank grows.
func verifyPages(ctx context.Context, client *HTTPClient, minPlayers int, stats *Stats) []string {
	var problems []string
	offset, prev := 0, -1.0

	for {
		page, err := client.Page(ctx, offset, verifyPageSize)
		if err != nil {
			return append(problems, fmt.Sprintf("page at offset %d: %v", offset, err))
		}
		stats.PagesRead++

		if offset == 0 && page.Total < minPlayers {
			problems = append(problems, fmt.Sprintf("total %d is below the %d players that set a record", page.Total, minPlayers))
		}
		problems = append(problems, checkPage(page, offset, &prev)...)

		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.Total {
			break
		}
	}
	return problems
}

// checkPage validates one page. prev carries the last record in seconds
// across pages; a negative value means none has been seen.
func checkPage(page Page, offset int, prev *float64) []string {
	var problems []string
	for i, row := range page.Items {
		if want := offset + i + 1; row.Rank != want {
			problems = append(problems, fmt.Sprintf("row %d has rank %d, want %d", want, row.Rank, want))
		}
		secs, err := strconv.ParseFloat(row.Record, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("rank %d has malformed record %q", row.Rank, row.Record))
			continue
		}
		if *prev >= 0 && secs < *prev {
			problems = append(problems, fmt.Sprintf("rank %d record %s is faster than the rank above it", row.Rank, row.Record))
		}
		*prev = secs
	}
	return problems
}

// verifyPlayers compares every player's own rank with the best time the run
// saw accepted for it.
func verifyPlayers(ctx context.Context, client *HTTPClient, players []*Player, stats *Stats) []string {
	var problems []string
	for _, p := range players {
		mine, err := client.MyRank(ctx, p)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", p.Name, err))
			continue
		}
		stats.RanksChecked++
		problems = append(problems, checkMyRank(p, mine)...)
	}
	return problems
}

func checkMyRank(p *Player, mine MyRank) []string {
	if p.BestMs == 0 {
		if mine.Rank != 0 || mine.Record != leaderboard.NoRecord {
			return []string{fmt.Sprintf("%s: expected no record, got rank %d record %s", p.Name, mine.Rank, mine.Record)}
		}
		return nil
	}
	var problems []string
	if want := leaderboard.FormatRecord(p.BestMs); mine.Record != want {
		problems = append(problems, fmt.Sprintf("%s: record %s, want %s", p.Name, mine.Record, want))
	}
	if mine.Rank < 1 {
		problems = append(problems, fmt.Sprintf("%s: has a record but rank %d", p.Name, mine.Rank))
	}
	return problems
}

func reportProblems(ctx context.Context, problems []string, verbose bool) {
	log := logger.Get()
	if len(problems) == 0 {
		log.Info(ctx, "verification passed")
		return
	}
	log.Error(ctx, "verification found mismatches", logger.Int("count", len(problems)))
	limit := len(problems)
	if !verbose && limit > 10 {
		limit = 10
	}
	for _, p := range problems[:limit] {
		log.Error(ctx, "mismatch", logger.String("detail", p))
	}
}
