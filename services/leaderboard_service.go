package services

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/sse2016-gomoku-fun/fun-portal/models"
)

// LeaderboardRow is one ranked scoreboard entry. Submission is the user's
// listed submission, nil when the user has none.
type LeaderboardRow struct {
	Order      int                `json:"order"`
	User       models.User        `json:"user"`
	Score      float64            `json:"score"`
	Win        int                `json:"win"`
	Lose       int                `json:"lose"`
	Draw       int                `json:"draw"`
	Submission *models.Submission `json:"submission"`
}

// LeaderboardService derives the ranked scoreboard from submission and
// match history on demand. Nothing is cached or materialized; for a fixed
// snapshot the output is fully deterministic because users are enumerated
// by id and matches by (created_at, id).
type LeaderboardService struct {
	DB          *gorm.DB
	Submissions *SubmissionService
	Matches     *MatchService
}

func NewLeaderboardService(db *gorm.DB, subs *SubmissionService, matches *MatchService) *LeaderboardService {
	return &LeaderboardService{DB: db, Submissions: subs, Matches: matches}
}

// Compute builds the scoreboard. Strict mode lists only effective
// submissions; relaxed mode also lists running ones.
func (s *LeaderboardService) Compute(ctx context.Context, onlyEffective bool) ([]LeaderboardRow, error) {
	listed, err := s.Submissions.LastSubmissionsByUser(ctx, onlyEffective)
	if err != nil {
		return nil, err
	}
	listedByUser := make(map[string]*models.Submission, len(listed))
	listedIDs := make([]string, 0, len(listed))
	for i := range listed {
		listedByUser[listed[i].UserID] = &listed[i]
		listedIDs = append(listedIDs, listed[i].ID)
	}

	var users []models.User
	if err := s.DB.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}

	matches, err := s.Matches.MatchesForListedSubmissions(ctx, listedIDs)
	if err != nil {
		return nil, err
	}

	// Each unordered user pair counts at most once, the first match
	// encountered in iteration order winning. Rematched pairs therefore
	// never double-count.
	type totals struct {
		score           float64
		win, lose, draw int
	}
	counted := make(map[[2]string]bool)
	byUser := make(map[string]*totals, len(users))
	for _, u := range users {
		byUser[u.ID] = &totals{}
	}

	for _, m := range matches {
		key := [2]string{m.U1ID, m.U2ID}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if counted[key] {
			continue
		}
		counted[key] = true

		if t := byUser[m.U1ID]; t != nil {
			t.score += m.U1Stat.Score
			t.win += m.U1Stat.Win
			t.lose += m.U1Stat.Lose
			t.draw += m.U1Stat.Draw
		}
		if t := byUser[m.U2ID]; t != nil {
			t.score += m.U2Stat.Score
			t.win += m.U2Stat.Win
			t.lose += m.U2Stat.Lose
			t.draw += m.U2Stat.Draw
		}
	}

	rows := make([]LeaderboardRow, 0, len(users))
	for _, u := range users {
		t := byUser[u.ID]
		rows = append(rows, LeaderboardRow{
			User:       u,
			Score:      t.score,
			Win:        t.win,
			Lose:       t.lose,
			Draw:       t.draw,
			Submission: listedByUser[u.ID],
		})
	}

	// Stable sort keeps user-id enumeration order among ties.
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Score > rows[j].Score
	})
	for i := range rows {
		rows[i].Order = i + 1
	}
	return rows, nil
}
