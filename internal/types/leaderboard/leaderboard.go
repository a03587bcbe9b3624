package leaderboard

import (
	"time"

	"github.com/google/uuid"
)

type LeaderboardEntry struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	PhotoURL    *string   `json:"photo_url"`
	Progress    int       `json:"progress"`
	Completed   bool      `json:"completed"`
	JoinedAt    time.Time `json:"joined_at"`
	Rank        int       `json:"rank"`
}

type Leaderboard struct {
	ChallengeID  uuid.UUID           `json:"challenge_id"`
	Goal         int                 `json:"goal"`
	Entries      []*LeaderboardEntry `json:"entries"`
	UserPosition *LeaderboardEntry   `json:"user_position"`
	TotalUsers   int                 `json:"total_users"`
}
