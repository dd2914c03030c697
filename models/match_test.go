package models

import "testing"

func TestOutcomeFromJudgeExitCode(t *testing.T) {
	cases := []struct {
		name     string
		exitCode int
		verdict  string
		want     string
	}{
		{"zero exit, u1 wins", 0, RoundOutcomeU1Win, RoundOutcomeU1Win},
		{"zero exit, u2 wins", 0, RoundOutcomeU2Win, RoundOutcomeU2Win},
		{"zero exit, draw", 0, RoundOutcomeDraw, RoundOutcomeDraw},
		{"zero exit, garbage verdict", 0, "banana", RoundOutcomeError},
		{"zero exit, empty verdict", 0, "", RoundOutcomeError},
		{"non-zero exit overrides verdict", 1, RoundOutcomeU1Win, RoundOutcomeError},
		{"negative exit", -1, RoundOutcomeDraw, RoundOutcomeError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := OutcomeFromJudgeExitCode(tc.exitCode, tc.verdict); got != tc.want {
				t.Errorf("OutcomeFromJudgeExitCode(%d, %q) = %q, want %q",
					tc.exitCode, tc.verdict, got, tc.want)
			}
		})
	}
}

func TestFoldRoundStats(t *testing.T) {
	completed := func(outcome string) Round {
		return Round{Status: RoundStatusCompleted, Outcome: outcome}
	}

	cases := []struct {
		name   string
		rounds []Round
		wantU1 SideStat
		wantU2 SideStat
	}{
		{
			"no rounds",
			nil,
			SideStat{}, SideStat{},
		},
		{
			"pending rounds contribute nothing",
			[]Round{{Status: RoundStatusPending}},
			SideStat{}, SideStat{},
		},
		{
			"win and loss",
			[]Round{completed(RoundOutcomeU1Win), completed(RoundOutcomeU2Win)},
			SideStat{Score: 1, Win: 1, Lose: 1},
			SideStat{Score: 1, Win: 1, Lose: 1},
		},
		{
			"draw splits the point",
			[]Round{completed(RoundOutcomeDraw)},
			SideStat{Score: 0.5, Draw: 1},
			SideStat{Score: 0.5, Draw: 1},
		},
		{
			"error credits neither side",
			[]Round{completed(RoundOutcomeError), completed(RoundOutcomeU1Win)},
			SideStat{Score: 1, Win: 1},
			SideStat{Lose: 1},
		},
		{
			"mixed pending and completed",
			[]Round{completed(RoundOutcomeU1Win), {Status: RoundStatusPending, Outcome: RoundOutcomeU2Win}},
			SideStat{Score: 1, Win: 1},
			SideStat{Lose: 1},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u1, u2 := FoldRoundStats(tc.rounds)
			if u1 != tc.wantU1 || u2 != tc.wantU2 {
				t.Errorf("fold = %+v / %+v, want %+v / %+v", u1, u2, tc.wantU1, tc.wantU2)
			}
		})
	}
}

func TestFoldIsOrderIndependent(t *testing.T) {
	a := []Round{
		{Status: RoundStatusCompleted, Outcome: RoundOutcomeU1Win},
		{Status: RoundStatusCompleted, Outcome: RoundOutcomeDraw},
	}
	b := []Round{a[1], a[0]}

	a1, a2 := FoldRoundStats(a)
	b1, b2 := FoldRoundStats(b)
	if a1 != b1 || a2 != b2 {
		t.Errorf("fold depends on round order: %+v/%+v vs %+v/%+v", a1, a2, b1, b2)
	}
}

func TestProjectMatchStatus(t *testing.T) {
	if got := ProjectMatchStatus(nil); got != MatchStatusComplete {
		t.Errorf("no rounds = %q, want complete", got)
	}
	pending := []Round{
		{Status: RoundStatusCompleted, Outcome: RoundOutcomeU1Win},
		{Status: RoundStatusPending},
	}
	if got := ProjectMatchStatus(pending); got != MatchStatusInProgress {
		t.Errorf("pending round = %q, want in-progress", got)
	}
	done := []Round{
		{Status: RoundStatusCompleted, Outcome: RoundOutcomeU1Win},
		{Status: RoundStatusCompleted, Outcome: RoundOutcomeError},
	}
	if got := ProjectMatchStatus(done); got != MatchStatusComplete {
		t.Errorf("all completed = %q, want complete", got)
	}
}
