package battle

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/arnavm/leetbattle/internal/applog"
	"go.uber.org/zap"
)

const (
	keyGame     = "battle:game"
	chanUpdates = "battle:game:updates"
)

// Store persists the GameRecord aggregate as JSON under a single Redis
// key and notifies subscribers of every write through a pub/sub
// channel. It offers only last-write-wins semantics: no compare-and-
// swap, no version tokens.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// ReadOnce fetches the current record. A missing key returns (nil, nil).
func (s *Store) ReadOnce(ctx context.Context) (*GameRecord, error) {
	raw, err := s.rdb.Get(ctx, keyGame).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec GameRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// WriteWhole replaces the entire record and notifies subscribers.
func (s *Store) WriteWhole(ctx context.Context, rec *GameRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, keyGame, raw, 0).Err(); err != nil {
		return err
	}
	return s.rdb.Publish(ctx, chanUpdates, raw).Err()
}

// RecordPatch names the sub-paths a merge write may touch. Nil fields
// are left as stored; PlayerStates merges per key into the stored
// room's state map rather than replacing it.
type RecordPatch struct {
	Room         *Room
	PlayerStates map[string]TimerState
	IsRoundReset *bool
	SessionID    *string
	LastUpdate   *int64
}

// WriteMerge applies a partial update on top of the stored record and
// notifies subscribers. The read-merge-write is not transactional; two
// concurrent mergers can still clobber each other, the narrower paths
// just shrink the window.
func (s *Store) WriteMerge(ctx context.Context, patch *RecordPatch) error {
	rec, err := s.ReadOnce(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &GameRecord{}
	}
	if patch.Room != nil {
		rec.Room = patch.Room
	}
	if patch.PlayerStates != nil && rec.Room != nil {
		if rec.Room.PlayerStates == nil {
			rec.Room.PlayerStates = map[string]TimerState{}
		}
		for id, st := range patch.PlayerStates {
			rec.Room.PlayerStates[id] = st
		}
	}
	if patch.IsRoundReset != nil && rec.Room != nil {
		rec.Room.IsRoundReset = *patch.IsRoundReset
	}
	if patch.SessionID != nil {
		rec.SessionID = *patch.SessionID
	}
	if patch.LastUpdate != nil {
		rec.LastUpdate = *patch.LastUpdate
	}
	return s.WriteWhole(ctx, rec)
}

// Subscription is a standing listener on the game record.
type Subscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

// Close tears the listener down.
func (s *Subscription) Close() error {
	close(s.done)
	return s.pubsub.Close()
}

// Subscribe delivers the current record immediately, then every record
// published after a write. Malformed payloads and channel failures go
// to onError; onChange may receive nil when the record does not exist
// yet.
func (s *Store) Subscribe(ctx context.Context, onChange func(*GameRecord), onError func(error)) (*Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, chanUpdates)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	sub := &Subscription{pubsub: pubsub, done: make(chan struct{})}

	rec, err := s.ReadOnce(ctx)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	go func() {
		onChange(rec)
		ch := pubsub.Channel()
		for {
			select {
			case <-sub.done:
				return
			case msg, ok := <-ch:
				if !ok {
					select {
					case <-sub.done:
					default:
						onError(errf("update channel closed"))
					}
					return
				}
				var next GameRecord
				if err := json.Unmarshal([]byte(msg.Payload), &next); err != nil {
					applog.L().Warn("store_bad_payload", zap.Error(err))
					onError(err)
					continue
				}
				onChange(&next)
			}
		}
	}()
	return sub, nil
}
