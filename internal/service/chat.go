package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucylow/kale-ndar-sub000/internal/domain"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/chat"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
	"github.com/lucylow/kale-ndar-sub000/internal/port/store"
)

// ChatService stores per-market chat messages and announces them on the
// event bus as social_interaction events so market subscribers see them
// live.
type ChatService struct {
	store store.KV
	bus   Publisher
	ttl   time.Duration

	// indexMu serializes read-modify-write cycles on per-market index
	// records and on parent messages during replies and likes.
	indexMu sync.Mutex
}

// NewChatService creates the chat store publishing through bus.
func NewChatService(kv store.KV, bus Publisher, ttl time.Duration) *ChatService {
	return &ChatService{store: kv, bus: bus, ttl: ttl}
}

// SendMessage stores a chat message for a market and publishes it as a
// social_interaction event. When replyTo names an existing message, the new
// message id is appended to that parent's reply list; threading stays flat.
func (s *ChatService) SendMessage(ctx context.Context, marketID, sender, text string, msgType chat.MessageType, replyTo string) (*chat.Message, error) {
	if msgType == "" {
		msgType = chat.TypeGeneral
	}
	msg := &chat.Message{
		ID:          uuid.NewString(),
		MarketID:    marketID,
		Sender:      sender,
		Message:     text,
		MessageType: msgType,
		Timestamp:   time.Now(),
	}

	if err := s.save(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.appendToMarketIndex(ctx, marketID, msg.ID); err != nil {
		return nil, fmt.Errorf("update chat index for %s: %w", marketID, err)
	}

	kind := "chat_message"
	if replyTo != "" {
		kind = "reply"
		if err := s.linkReply(ctx, replyTo, msg.ID); err != nil {
			slog.Warn("reply link failed", "parent_id", replyTo, "error", err)
		}
	}

	payload := event.SocialInteractionPayload{
		Kind:        kind,
		MessageID:   msg.ID,
		Sender:      sender,
		Message:     text,
		MessageType: string(msgType),
	}
	_, err := s.bus.Publish(ctx, event.TypeSocialInteraction, payload, marketID, "", event.PriorityLow)
	if err != nil {
		slog.Error("chat event publish failed", "message_id", msg.ID, "error", err)
	}
	return msg, nil
}

// LikeMessage increments the like counter and publishes the interaction.
// Returns the new count.
func (s *ChatService) LikeMessage(ctx context.Context, messageID, liker string) (int, error) {
	s.indexMu.Lock()
	msg, err := s.load(ctx, messageID)
	if err != nil {
		s.indexMu.Unlock()
		return 0, err
	}
	msg.Likes++
	err = s.save(ctx, msg)
	s.indexMu.Unlock()
	if err != nil {
		return 0, err
	}

	payload := event.SocialInteractionPayload{
		Kind:      "like",
		MessageID: messageID,
		Sender:    liker,
	}
	_, err = s.bus.Publish(ctx, event.TypeSocialInteraction, payload, msg.MarketID, "", event.PriorityLow)
	if err != nil {
		slog.Error("like event publish failed", "message_id", messageID, "error", err)
	}
	return msg.Likes, nil
}

// List returns a market's messages in chronological order. limit <= 0 means
// no limit; otherwise the most recent limit messages are returned, still
// oldest first.
func (s *ChatService) List(ctx context.Context, marketID string, limit int) ([]chat.Message, error) {
	ids, err := s.loadIndex(ctx, marketIndexKey(marketID))
	if err != nil {
		return nil, fmt.Errorf("load chat index for %s: %w", marketID, err)
	}

	out := make([]chat.Message, 0, len(ids))
	for _, id := range ids {
		data, ok, err := s.store.Get(ctx, chatKey(id))
		if err != nil {
			return nil, fmt.Errorf("load chat message %s: %w", id, err)
		}
		if !ok {
			continue
		}
		var msg chat.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("skipping undecodable chat message", "message_id", id, "error", err)
			continue
		}
		out = append(out, msg)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *ChatService) linkReply(ctx context.Context, parentID, childID string) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	parent, err := s.load(ctx, parentID)
	if err != nil {
		return err
	}
	parent.Replies = append(parent.Replies, childID)
	return s.save(ctx, parent)
}

func (s *ChatService) load(ctx context.Context, id string) (*chat.Message, error) {
	data, ok, err := s.store.Get(ctx, chatKey(id))
	if err != nil {
		return nil, fmt.Errorf("load chat message %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("chat message %s: %w", id, domain.ErrNotFound)
	}
	var msg chat.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode chat message %s: %w", id, err)
	}
	return &msg, nil
}

func (s *ChatService) save(ctx context.Context, msg *chat.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	if err := s.store.Set(ctx, chatKey(msg.ID), data, s.ttl); err != nil {
		return fmt.Errorf("store chat message %s: %w", msg.ID, err)
	}
	return nil
}

func (s *ChatService) loadIndex(ctx context.Context, key string) ([]string, error) {
	data, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", key, err)
	}
	return ids, nil
}

func (s *ChatService) appendToMarketIndex(ctx context.Context, marketID, id string) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	key := marketIndexKey(marketID)
	ids, err := s.loadIndex(ctx, key)
	if err != nil {
		return err
	}
	ids = append(ids, id)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, key, data, s.ttl)
}

func chatKey(id string) string { return "chat_message:" + id }
func marketIndexKey(marketID string) string {
	return "market_messages:" + marketID
}
