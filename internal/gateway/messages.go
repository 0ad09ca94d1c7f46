package gateway

import "github.com/arnavm/leetbattle/internal/battle"

// Action is one client-initiated mutation delivered over the socket.
type Action struct {
	Type string `json:"type"`

	PlayerName string `json:"playerName,omitempty"`
	RoomName   string `json:"roomName,omitempty"`
	Code       string `json:"code,omitempty"`
	PlayerID   string `json:"playerId,omitempty"`

	Reward         *battle.Reward `json:"reward,omitempty"`
	RewardID       string         `json:"rewardId,omitempty"`
	BoughtRewardID string         `json:"boughtRewardId,omitempty"`

	ProblemName string `json:"problemName,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
}

// Action types.
const (
	ActionCreateRoom     = "create_room"
	ActionJoinRoom       = "join_room"
	ActionStartTimer     = "start_timer"
	ActionStopTimer      = "stop_timer"
	ActionResetRound     = "reset_round"
	ActionResetAllData   = "reset_all_data"
	ActionAddReward      = "add_reward"
	ActionUpdateReward   = "update_reward"
	ActionDeleteReward   = "delete_reward"
	ActionRedeemReward   = "redeem_reward"
	ActionMarkRewardUsed = "mark_reward_used"
	ActionSaveMatch      = "save_match"
	ActionPickProblem    = "pick_problem"
)

// Event is one server-to-client frame: a state snapshot.
type Event struct {
	Type  string          `json:"type"`
	State battle.Snapshot `json:"state"`
}
