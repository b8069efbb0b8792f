package matches

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/duelsync-server/internal/core"
	"github.com/vovakirdan/duelsync-server/internal/events"
	"github.com/vovakirdan/duelsync-server/internal/store"
)

// ErrHistoryDisabled is returned by history queries when no store is configured.
var ErrHistoryDisabled = errors.New("match history disabled")

// Service records and announces match results. It is the hub's end-of-game
// collaborator.
type Service struct {
	store     store.MatchStore
	publisher events.Publisher
	log       *zerolog.Logger
}

var _ core.GameOverHook = (*Service)(nil)

// New creates a match service. A nil store disables recording and a nil
// publisher disables announcements.
func New(st store.MatchStore, pub events.Publisher, logger *zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, publisher: pub, log: logger}
}

// GameOver records the result and publishes it. A publish failure does not undo
// the record.
func (s *Service) GameOver(ctx context.Context, result core.MatchResult) error {
	m := &store.Match{
		RoomID:   result.RoomID,
		WinnerID: result.WinnerID,
		LoserID:  result.LoserID,
		Note:     result.Note,
		EndedAt:  result.EndedAt,
	}
	if s.store != nil {
		if err := s.store.RecordMatch(ctx, m); err != nil {
			return fmt.Errorf("record match: %w", err)
		}
	}

	ev := events.MatchEnded{
		MatchID:  m.ID,
		RoomID:   m.RoomID,
		WinnerID: m.WinnerID,
		LoserID:  m.LoserID,
		Note:     m.Note,
		EndedAt:  m.EndedAt,
	}
	if err := s.publisher.PublishMatchEnded(ctx, ev); err != nil {
		return fmt.Errorf("publish match: %w", err)
	}

	s.log.Info().
		Int64("match_id", m.ID).
		Str("room_id", m.RoomID).
		Str("winner_id", m.WinnerID).
		Str("loser_id", m.LoserID).
		Msg("match ended")
	return nil
}

// History lists recent results a client took part in.
func (s *Service) History(ctx context.Context, clientID string, limit int) ([]*store.Match, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	list, err := s.store.ListMatchesByClient(ctx, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return list, nil
}

// RoomHistory lists recent results of a room.
func (s *Service) RoomHistory(ctx context.Context, roomID string, limit int) ([]*store.Match, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	list, err := s.store.ListMatchesByRoom(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return list, nil
}
