package battle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnavm/leetbattle/internal/applog"
)

// AddReward appends a reward to the room's catalog. A missing id is
// generated.
func (m *Manager) AddReward(ctx context.Context, r Reward) error {
	if strings.TrimSpace(r.Name) == "" || r.Cost <= 0 {
		return ErrInvalidArgs
	}
	if strings.TrimSpace(r.ID) == "" {
		r.ID = uuid.NewString()
	}
	m.mu.Lock()
	if m.room == nil {
		m.mu.Unlock()
		return ErrNoRoom
	}
	m.room.Rewards = append(m.room.Rewards, r)
	room := m.room.Clone()
	m.mu.Unlock()

	err := m.publish(ctx, &RecordPatch{Room: room})
	m.notify()
	return err
}

// UpdateReward replaces the reward with the same id. Unknown ids are a
// silent no-op.
func (m *Manager) UpdateReward(ctx context.Context, r Reward) error {
	m.mu.Lock()
	if m.room == nil {
		m.mu.Unlock()
		return ErrNoRoom
	}
	changed := false
	for i := range m.room.Rewards {
		if m.room.Rewards[i].ID == r.ID {
			m.room.Rewards[i] = r
			changed = true
			break
		}
	}
	room := m.room.Clone()
	m.mu.Unlock()

	if !changed {
		return nil
	}
	err := m.publish(ctx, &RecordPatch{Room: room})
	m.notify()
	return err
}

// DeleteReward removes the reward with the given id. Purchase history
// keeps its own denormalized copies and is unaffected.
func (m *Manager) DeleteReward(ctx context.Context, rewardID string) error {
	m.mu.Lock()
	if m.room == nil {
		m.mu.Unlock()
		return ErrNoRoom
	}
	changed := false
	kept := m.room.Rewards[:0]
	for _, r := range m.room.Rewards {
		if r.ID == rewardID {
			changed = true
			continue
		}
		kept = append(kept, r)
	}
	m.room.Rewards = kept
	room := m.room.Clone()
	m.mu.Unlock()

	if !changed {
		return nil
	}
	err := m.publish(ctx, &RecordPatch{Room: room})
	m.notify()
	return err
}

// RedeemReward spends a player's points on a reward: the point balance
// drops by the cost and one denormalized BoughtReward is appended, in
// a single local mutation. Insufficient points are a silent no-op.
func (m *Manager) RedeemReward(ctx context.Context, rewardID, playerID string) error {
	m.mu.Lock()
	if m.room == nil {
		m.mu.Unlock()
		return ErrNoRoom
	}
	idx := m.room.PlayerByID(playerID)
	if idx < 0 {
		m.mu.Unlock()
		return ErrUnknownPlayer
	}
	var reward Reward
	found := false
	for _, r := range m.room.Rewards {
		if r.ID == rewardID {
			reward, found = r, true
			break
		}
	}
	if !found || m.room.Players[idx].Points < reward.Cost {
		m.mu.Unlock()
		return nil
	}
	player := &m.room.Players[idx]
	player.Points -= reward.Cost
	bought := BoughtReward{
		ID:                uuid.NewString(),
		RewardID:          reward.ID,
		PlayerID:          player.ID,
		PlayerName:        player.Name,
		RewardName:        reward.Name,
		RewardIcon:        reward.Icon,
		RewardDescription: reward.Description,
		BoughtAt:          m.clock.Now().UnixMilli(),
	}
	m.room.BoughtRewards = append(m.room.BoughtRewards, bought)
	m.redeemMessage = fmt.Sprintf("%s redeemed: %s!", player.Name, reward.Name)
	m.redeemExpiry = m.clock.Now().Add(redeemMessageTTL)
	room := m.room.Clone()
	m.mu.Unlock()

	applog.L().Info("reward_redeem",
		zap.String("player_id", playerID),
		zap.String("reward_id", rewardID),
		zap.Int("cost", reward.Cost),
	)
	m.clock.AfterFunc(redeemMessageTTL, m.clearRedeemMessage)
	err := m.publish(ctx, &RecordPatch{Room: room})
	m.notify()
	return err
}

// MarkRewardUsed removes the purchase record entirely. Using a reward
// is a destructive acknowledgment, not a soft toggle.
func (m *Manager) MarkRewardUsed(ctx context.Context, boughtRewardID string) error {
	m.mu.Lock()
	if m.room == nil {
		m.mu.Unlock()
		return ErrNoRoom
	}
	changed := false
	kept := m.room.BoughtRewards[:0]
	for _, b := range m.room.BoughtRewards {
		if b.ID == boughtRewardID {
			changed = true
			continue
		}
		kept = append(kept, b)
	}
	m.room.BoughtRewards = kept
	room := m.room.Clone()
	m.mu.Unlock()

	if !changed {
		return nil
	}
	err := m.publish(ctx, &RecordPatch{Room: room})
	m.notify()
	return err
}

// clearRedeemMessage drops an expired message and pushes the change to
// listeners. A timer from an earlier redemption must not clear a newer
// message, so expiry is re-checked here.
func (m *Manager) clearRedeemMessage() {
	m.mu.Lock()
	if m.redeemMessage == "" || m.clock.Now().Before(m.redeemExpiry) {
		m.mu.Unlock()
		return
	}
	m.redeemMessage = ""
	m.redeemExpiry = time.Time{}
	m.mu.Unlock()
	m.notify()
}
