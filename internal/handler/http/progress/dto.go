package progress

import "readtrack/internal/usecase/progress"

// commitResponse is the JSON body returned by the progress commit endpoint.
type commitResponse struct {
	LastReadUnit int      `json:"last_read_unit"`
	Reward       int64    `json:"reward"`
	Streak       int      `json:"streak"`
	Level        int      `json:"level"`
	TrustScore   float64  `json:"trust_score"`
	Backfilled   int64    `json:"backfilled"`
	Unlocked     []string `json:"unlocked"`
}

func toCommitResponse(res *progress.Result) commitResponse {
	out := commitResponse{
		Reward:     res.Reward,
		Streak:     res.Streak,
		Level:      res.Level,
		TrustScore: res.TrustScore,
		Backfilled: res.Backfilled,
		Unlocked:   res.Unlocked,
	}
	if res.Entry != nil {
		out.LastReadUnit = res.Entry.LastReadUnit
	}
	if out.Unlocked == nil {
		out.Unlocked = []string{}
	}
	return out
}
