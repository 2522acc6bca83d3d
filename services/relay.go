package services

import (
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	coreerrors "chat-core/errors"
	"chat-core/moderation"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Relay routes chat and typing events: every accepted message is
// enqueued for persistence regardless of the recipient's state, then
// fanned out live to all of the recipient's devices. An offline
// recipient only ever sees the message through a later history pull.
type Relay struct {
	log       *slog.Logger
	presence  contract.IPresence
	batcher   contract.Enqueuer
	moderator *moderation.Moderator
}

func NewRelay(log *slog.Logger, presence contract.IPresence,
	batcher contract.Enqueuer, moderator *moderation.Moderator) *Relay {
	return &Relay{log: log, presence: presence, batcher: batcher, moderator: moderator}
}

// SendMessage validates, moderates, enqueues and fans out one message.
// Malformed sends are dropped: the sentinel error is for the caller's
// log line, no rejection frame goes back to the sender.
func (r *Relay) SendMessage(ctx context.Context, senderID string, p event.SendMessagePayload) error {
	if p.RecipientID == "" {
		return coreerrors.ErrMissingRecipient
	}
	if p.Content == "" && p.MediaURL == "" {
		return coreerrors.ErrEmptyMessage
	}

	msgType := domain.MessageType(p.Type)
	if msgType == "" {
		msgType = domain.TextType
	}

	content := p.Content
	if content != "" && r.moderator != nil {
		content = r.moderator.Censor(content)
	}

	// Persistence is independent of delivery.
	r.batcher.Enqueue(domain.QueuedMessage{
		SenderID:    senderID,
		RecipientID: p.RecipientID,
		Content:     content,
		MediaURL:    p.MediaURL,
		Type:        msgType,
		CreatedAt:   time.Now().UTC(),
	})

	sinks := r.presence.ConnectionsOf(p.RecipientID)
	if len(sinks) == 0 {
		r.log.Info(fmt.Sprintf("Message queued for offline user %s", r.presence.DisplayName(p.RecipientID)))
		return nil
	}

	payload := event.MessagePayload{
		SenderID: senderID,
		Type:     string(msgType),
		Content:  content,
		MediaURL: p.MediaURL,
	}
	for _, sink := range sinks {
		if err := sink.Consume(ctx, event.Event{Name: event.Message, Data: payload}); err != nil {
			r.log.Warn("Live delivery failed on one handle", "recipient", p.RecipientID, "err", err)
		}
	}
	r.log.Debug("Message delivered live", "recipient", p.RecipientID, "devices", len(sinks))
	return nil
}

// Typing relays a typing or stoppedTyping notification to every device
// of the recipient. No state, no persistence.
func (r *Relay) Typing(ctx context.Context, senderID, recipientID string, stopped bool) error {
	if recipientID == "" {
		return coreerrors.ErrMissingRecipient
	}

	name := event.Typing
	if stopped {
		name = event.StoppedTyping
	}
	for _, sink := range r.presence.ConnectionsOf(recipientID) {
		_ = sink.Consume(ctx, event.Event{Name: name, Data: event.SenderPayload{SenderID: senderID}})
	}
	return nil
}
