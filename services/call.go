package services

import (
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	coreerrors "chat-core/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Coordinator arbitrates the call-signaling state machine so two
// parties can negotiate a peer-to-peer call without double-booking
// either side. Per identity the states are Idle -> Ringing -> Active ->
// Idle; Ringing already holds the in-call flag, so a second caller gets
// a busy failure while the callee's phone is still ringing.
//
// The callId -> participants table is the only record pairing caller
// and callee before acceptance; it is never persisted.
type Coordinator struct {
	mu       sync.Mutex
	log      *slog.Logger
	presence contract.IPresence
	calls    map[string]*liveCall
}

type liveCall struct {
	session domain.CallSession
	state   domain.CallState
}

func NewCoordinator(log *slog.Logger, presence contract.IPresence) *Coordinator {
	return &Coordinator{log: log, presence: presence, calls: make(map[string]*liveCall)}
}

// Request starts a negotiation. A busy or offline callee answers the
// caller's own connection with a callFailed; neither changes any state.
// Otherwise the callee transitions to Ringing and every one of their
// devices receives the incoming-call notification.
func (c *Coordinator) Request(ctx context.Context, caller domain.Identity,
	origin contract.EventSink, p event.CallRequestPayload) error {
	sinks := c.presence.ConnectionsOf(p.ToUserID)
	if len(sinks) == 0 {
		c.log.Warn(fmt.Sprintf("Call %s refused: %s is offline", p.CallID, p.ToUserID))
		_ = origin.Consume(ctx, event.Event{Name: event.CallFailed, Data: event.CallFailedPayload{
			ToUserID: p.ToUserID,
			Reason:   "User is offline.",
		}})
		return coreerrors.ErrCalleeOffline
	}

	// Ringing counts as busy from here on. The claim is atomic: of two
	// concurrent callers at an idle callee, exactly one passes.
	if !c.presence.TryStartCall(p.ToUserID, p.CallID) {
		c.log.Warn(fmt.Sprintf("Call %s refused: %s is already in a call", p.CallID, c.presence.DisplayName(p.ToUserID)))
		_ = origin.Consume(ctx, event.Event{Name: event.CallFailed, Data: event.CallFailedPayload{
			ToUserID: p.ToUserID,
			Reason:   "User is busy in another call.",
		}})
		return coreerrors.ErrCalleeBusy
	}

	c.mu.Lock()
	c.calls[p.CallID] = &liveCall{
		session: domain.CallSession{CallID: p.CallID, Caller: caller.UserID, Callee: p.ToUserID},
		state:   domain.CallRinging,
	}
	c.mu.Unlock()

	payload := event.IncomingCallPayload{
		FromUserID:   caller.UserID,
		FromUsername: caller.Username,
		CallType:     p.CallType,
		Offer:        p.Offer,
		CallID:       p.CallID,
	}
	for _, sink := range sinks {
		_ = sink.Consume(ctx, event.Event{Name: event.IncomingCall, Data: payload})
	}
	c.log.Info(fmt.Sprintf("Call %s ringing: %s -> %s on %d device(s)",
		p.CallID, caller.Username, c.presence.DisplayName(p.ToUserID), len(sinks)))
	return nil
}

// Accept promotes both participants to Active with the matching callId
// and forwards the answer to the other party's devices. Nothing stops
// two devices of the same callee racing to accept; last write wins.
func (c *Coordinator) Accept(ctx context.Context, senderID string, p event.CallAnswerPayload) error {
	call, other, err := c.lookup(senderID, p.CallID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	call.state = domain.CallActive
	c.mu.Unlock()

	c.presence.SetCallState(call.session.Caller, true, p.CallID)
	c.presence.SetCallState(call.session.Callee, true, p.CallID)

	c.forward(ctx, other, event.Event{Name: event.CallAccepted, Data: p})
	c.log.Info(fmt.Sprintf("Call %s active between %s and %s",
		p.CallID, call.session.Caller, call.session.Callee))
	return nil
}

// Reject tears the negotiation down before it went active; both sides
// return to Idle and the counterpart is notified.
func (c *Coordinator) Reject(ctx context.Context, senderID string, p event.CallAnswerPayload) error {
	return c.terminate(ctx, senderID, p, event.CallRejected)
}

// End finishes an active call; both sides return to Idle and the
// counterpart is notified. An abrupt disconnect does NOT come through
// here: without an explicit callEnded the surviving participant stays
// marked in-call.
func (c *Coordinator) End(ctx context.Context, senderID string, p event.CallAnswerPayload) error {
	return c.terminate(ctx, senderID, p, event.CallEnded)
}

func (c *Coordinator) terminate(ctx context.Context, senderID string,
	p event.CallAnswerPayload, name string) error {
	call, other, err := c.lookup(senderID, p.CallID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.calls, p.CallID)
	c.mu.Unlock()

	c.presence.SetCallState(call.session.Caller, false, "")
	c.presence.SetCallState(call.session.Callee, false, "")

	c.forward(ctx, other, event.Event{Name: name, Data: event.CallAnswerPayload{CallID: p.CallID}})
	c.log.Info(fmt.Sprintf("Call %s closed (%s) by %s", p.CallID, name, senderID))
	return nil
}

// Disconnect reaps call entries a fully-offline participant would
// otherwise leave behind forever. An entry whose counterpart is still
// online survives, so the counterpart keeps its in-call state and can
// still drive an explicit callEnded; once both sides are gone nobody is
// left to terminate it and the entry is dropped.
func (c *Coordinator) Disconnect(ctx context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for callID, call := range c.calls {
		other := call.session.Counterpart(userID)
		if other == "" {
			continue
		}
		if len(c.presence.ConnectionsOf(other)) > 0 {
			continue
		}
		delete(c.calls, callID)
		c.presence.SetCallState(call.session.Caller, false, "")
		c.presence.SetCallState(call.session.Callee, false, "")
		c.log.Info(fmt.Sprintf("Call %s reaped: both participants offline", callID))
	}
}

// Signal relays offer / answer / ice-candidate frames to every device
// of the named recipient. Pure relay, no state transition.
func (c *Coordinator) Signal(ctx context.Context, senderID, name string, p event.SignalPayload) error {
	if p.RecipientID == "" {
		return coreerrors.ErrMissingRecipient
	}
	payload := event.SignalRelayPayload{SenderID: senderID, Payload: p.Payload}
	for _, sink := range c.presence.ConnectionsOf(p.RecipientID) {
		_ = sink.Consume(ctx, event.Event{Name: name, Data: payload})
	}
	return nil
}

// State exposes the machine's view of one call, for tests and the
// debug endpoint.
func (c *Coordinator) State(callID string) (domain.CallSession, domain.CallState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if call, ok := c.calls[callID]; ok {
		return call.session, call.state
	}
	return domain.CallSession{}, domain.CallIdle
}

// lookup resolves the call and the sender's counterpart. Unknown call
// ids and strangers to the call are dropped with a log line only.
func (c *Coordinator) lookup(senderID, callID string) (*liveCall, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, ok := c.calls[callID]
	if !ok {
		c.log.Warn("Dropping transition for unknown call", "call_id", callID, "sender", senderID)
		return nil, "", coreerrors.ErrUnknownCall
	}
	other := call.session.Counterpart(senderID)
	if other == "" {
		c.log.Warn("Sender is not a participant of this call", "call_id", callID, "sender", senderID)
		return nil, "", coreerrors.ErrUnknownCall
	}
	return call, other, nil
}

func (c *Coordinator) forward(ctx context.Context, userID string, e event.Event) {
	for _, sink := range c.presence.ConnectionsOf(userID) {
		_ = sink.Consume(ctx, e)
	}
}
