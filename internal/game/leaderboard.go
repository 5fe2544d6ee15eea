package game

import (
	"sort"

	"processmaster-service/internal/domain"
)

type roundKey struct {
	nickname string
	round    int
}

// BuildStandings derives the cumulative ranking from raw submission
// records. At most one record per (player, round) counts: the guard makes
// duplicates unlikely, but the aggregation tolerates them regardless.
// Every joined player appears, so non-submitters rank last with zero.
func BuildStandings(roster []domain.Player, records []domain.ScoreRecord) []domain.StandingEntry {
	best := make(map[roundKey]domain.ScoreRecord)
	for _, rec := range records {
		key := roundKey{rec.Nickname, rec.RoundIndex}
		if cur, ok := best[key]; !ok || betterRecord(rec, cur) {
			best[key] = rec
		}
	}

	totals := make(map[string]*domain.StandingEntry)
	for _, p := range roster {
		totals[p.Nickname] = &domain.StandingEntry{Nickname: p.Nickname, Avatar: p.Avatar}
	}
	for _, rec := range best {
		entry, ok := totals[rec.Nickname]
		if !ok {
			entry = &domain.StandingEntry{Nickname: rec.Nickname, Avatar: rec.Avatar}
			totals[rec.Nickname] = entry
		}
		entry.TotalScore += rec.Score
	}

	standings := make([]domain.StandingEntry, 0, len(totals))
	for _, entry := range totals {
		standings = append(standings, *entry)
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].TotalScore != standings[j].TotalScore {
			return standings[i].TotalScore > standings[j].TotalScore
		}
		return standings[i].Nickname < standings[j].Nickname
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

// betterRecord is the deterministic tie-break when duplicate records exist
// for the same (player, round): higher score wins, then the earlier write.
func betterRecord(a, b domain.ScoreRecord) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Timestamp.Before(b.Timestamp)
}

// buildRoundResults filters one round's records, deduplicates per player,
// and orders them best score first with faster submissions breaking ties.
func buildRoundResults(records []domain.ScoreRecord, round int) []domain.ScoreRecord {
	best := make(map[string]domain.ScoreRecord)
	for _, rec := range records {
		if rec.RoundIndex != round {
			continue
		}
		if cur, ok := best[rec.Nickname]; !ok || betterRecord(rec, cur) {
			best[rec.Nickname] = rec
		}
	}
	results := make([]domain.ScoreRecord, 0, len(best))
	for _, rec := range best {
		results = append(results, rec)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].TimeTaken != results[j].TimeTaken {
			return results[i].TimeTaken > results[j].TimeTaken
		}
		return results[i].Nickname < results[j].Nickname
	})
	return results
}
