package services

import (
	"chat-core/domain"
	"chat-core/domain/event"
	coreerrors "chat-core/errors"
	"chat-core/runtime"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type callFixture struct {
	registry    *runtime.Registry
	coordinator *Coordinator
	// one device each unless a test adds more
	alice, bob, carol *captureSink
}

func newCallFixture(t *testing.T) *callFixture {
	t.Helper()
	registry := runtime.NewRegistry()
	f := &callFixture{
		registry:    registry,
		coordinator: NewCoordinator(slog.Default(), registry),
		alice:       &captureSink{},
		bob:         &captureSink{},
		carol:       &captureSink{},
	}
	registry.Add("alice", "ha", "Alice", f.alice)
	registry.Add("bob", "hb", "Bob", f.bob)
	registry.Add("carol", "hc", "Carol", f.carol)
	return f
}

func (f *callFixture) request(t *testing.T, callID string) {
	t.Helper()
	err := f.coordinator.Request(context.Background(),
		domain.Identity{UserID: "alice", Username: "Alice"}, f.alice,
		event.CallRequestPayload{ToUserID: "bob", CallType: "video", CallID: callID})
	require.NoError(t, err)
}

func TestCoordinator_Request_RingsEveryCalleeDevice(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	// Given bob on a second device too
	bob2 := &captureSink{}
	f.registry.Add("bob", "hb2", "Bob", bob2)

	// When alice calls bob
	f.request(t, "c1")

	// Then every device of bob rings with the offer and caller identity
	req.Len(f.bob.named(event.IncomingCall), 1)
	req.Len(bob2.named(event.IncomingCall), 1)
	payload := f.bob.named(event.IncomingCall)[0].Data.(event.IncomingCallPayload)
	req.Equal("alice", payload.FromUserID)
	req.Equal("Alice", payload.FromUsername)
	req.Equal("c1", payload.CallID)

	// And bob is Ringing with the call id, alice still idle
	inCall, callID := f.registry.CallState("bob")
	req.True(inCall)
	req.Equal("c1", callID)
	inCall, _ = f.registry.CallState("alice")
	req.False(inCall)

	_, state := f.coordinator.State("c1")
	req.Equal(domain.CallRinging, state)
}

func TestCoordinator_Request_BusyCallee(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	// Given bob already in a call
	f.registry.SetCallState("bob", true, "existing")

	// When alice calls bob
	err := f.coordinator.Request(context.Background(),
		domain.Identity{UserID: "alice", Username: "Alice"}, f.alice,
		event.CallRequestPayload{ToUserID: "bob", CallID: "c1"})

	// Then alice gets a busy failure, bob hears nothing, no state change
	req.ErrorIs(err, coreerrors.ErrCalleeBusy)
	req.Len(f.alice.named(event.CallFailed), 1)
	req.Empty(f.bob.named(event.IncomingCall))
	_, callID := f.registry.CallState("bob")
	req.Equal("existing", callID)
}

func TestCoordinator_Request_OfflineCallee(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	err := f.coordinator.Request(context.Background(),
		domain.Identity{UserID: "alice", Username: "Alice"}, f.alice,
		event.CallRequestPayload{ToUserID: "nobody", CallID: "c1"})

	req.ErrorIs(err, coreerrors.ErrCalleeOffline)
	req.Len(f.alice.named(event.CallFailed), 1)
	failed := f.alice.named(event.CallFailed)[0].Data.(event.CallFailedPayload)
	req.Equal("User is offline.", failed.Reason)
}

func TestCoordinator_RingingCalleeIsBusyForOthers(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	// Given alice is ringing bob
	f.request(t, "c1")

	// When carol calls the ringing bob
	err := f.coordinator.Request(context.Background(),
		domain.Identity{UserID: "carol", Username: "Carol"}, f.carol,
		event.CallRequestPayload{ToUserID: "bob", CallID: "c2"})

	// Then carol is told busy before bob even accepted
	req.ErrorIs(err, coreerrors.ErrCalleeBusy)
	req.Len(f.carol.named(event.CallFailed), 1)
	req.Len(f.bob.named(event.IncomingCall), 1)
}

func TestCoordinator_Accept_BothActiveWithMatchingCallID(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)
	f.request(t, "c1")

	// When bob accepts with his answer
	answer := json.RawMessage(`{"sdp":"answer"}`)
	err := f.coordinator.Accept(context.Background(), "bob",
		event.CallAnswerPayload{CallID: "c1", Answer: answer})
	req.NoError(err)

	// Then both participants are Active on the same call
	inCall, callID := f.registry.CallState("alice")
	req.True(inCall)
	req.Equal("c1", callID)
	inCall, callID = f.registry.CallState("bob")
	req.True(inCall)
	req.Equal("c1", callID)
	_, state := f.coordinator.State("c1")
	req.Equal(domain.CallActive, state)

	// And the caller received the acceptance with the answer
	req.Len(f.alice.named(event.CallAccepted), 1)
	accepted := f.alice.named(event.CallAccepted)[0].Data.(event.CallAnswerPayload)
	req.Equal("c1", accepted.CallID)
	req.JSONEq(`{"sdp":"answer"}`, string(accepted.Answer))
}

func TestCoordinator_Reject_ClearsBothSides(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)
	f.request(t, "c1")

	err := f.coordinator.Reject(context.Background(), "bob",
		event.CallAnswerPayload{CallID: "c1"})
	req.NoError(err)

	for _, user := range []string{"alice", "bob"} {
		inCall, callID := f.registry.CallState(user)
		req.False(inCall, user)
		req.Empty(callID, user)
	}
	req.Len(f.alice.named(event.CallRejected), 1)
	_, state := f.coordinator.State("c1")
	req.Equal(domain.CallIdle, state)
}

func TestCoordinator_End_ClearsBothSides(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)
	f.request(t, "c1")
	req.NoError(f.coordinator.Accept(context.Background(), "bob",
		event.CallAnswerPayload{CallID: "c1"}))

	// When the caller hangs up
	err := f.coordinator.End(context.Background(), "alice",
		event.CallAnswerPayload{CallID: "c1"})
	req.NoError(err)

	// Then both are idle again and the callee was notified
	for _, user := range []string{"alice", "bob"} {
		inCall, callID := f.registry.CallState(user)
		req.False(inCall, user)
		req.Empty(callID, user)
	}
	req.Len(f.bob.named(event.CallEnded), 1)

	// And bob is callable again
	err = f.coordinator.Request(context.Background(),
		domain.Identity{UserID: "carol", Username: "Carol"}, f.carol,
		event.CallRequestPayload{ToUserID: "bob", CallID: "c3"})
	req.NoError(err)
}

func TestCoordinator_UnknownCallIsDropped(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	err := f.coordinator.Accept(context.Background(), "bob",
		event.CallAnswerPayload{CallID: "ghost"})
	req.ErrorIs(err, coreerrors.ErrUnknownCall)

	// A stranger to an existing call cannot drive it either
	f.request(t, "c1")
	err = f.coordinator.End(context.Background(), "carol",
		event.CallAnswerPayload{CallID: "c1"})
	req.ErrorIs(err, coreerrors.ErrUnknownCall)
	_, state := f.coordinator.State("c1")
	req.Equal(domain.CallRinging, state)
}

func TestCoordinator_ConcurrentRequests_SingleWinner(t *testing.T) {
	req := require.New(t)

	// Two callers dial the same idle callee at once, repeatedly: the
	// claim must be atomic, so exactly one rings and one is told busy.
	for i := 0; i < 500; i++ {
		f := newCallFixture(t)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		callers := []struct {
			identity domain.Identity
			origin   *captureSink
			callID   string
		}{
			{domain.Identity{UserID: "alice", Username: "Alice"}, f.alice, "cA"},
			{domain.Identity{UserID: "carol", Username: "Carol"}, f.carol, "cB"},
		}
		for j, caller := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[j] = f.coordinator.Request(context.Background(), caller.identity,
					caller.origin, event.CallRequestPayload{ToUserID: "bob", CallID: caller.callID})
			}()
		}
		wg.Wait()

		winners := 0
		var winnerCallID string
		for j, err := range errs {
			if err == nil {
				winners++
				winnerCallID = callers[j].callID
				continue
			}
			req.ErrorIs(err, coreerrors.ErrCalleeBusy)
		}
		req.Equal(1, winners, "exactly one concurrent caller may ring an idle callee")

		// Bob rings once, with the winner's call id claimed in the registry
		req.Len(f.bob.named(event.IncomingCall), 1)
		inCall, callID := f.registry.CallState("bob")
		req.True(inCall)
		req.Equal(winnerCallID, callID)

		// The loser's call id never reached the coordinator's table
		for _, caller := range callers {
			_, state := f.coordinator.State(caller.callID)
			if caller.callID == winnerCallID {
				req.Equal(domain.CallRinging, state)
			} else {
				req.Equal(domain.CallIdle, state)
			}
		}
	}
}

func TestCoordinator_Disconnect_ReapsWhenBothOffline(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)
	f.request(t, "c1")

	// When both participants drop their last connection
	f.registry.Remove("alice", "ha")
	f.registry.Remove("bob", "hb")
	f.coordinator.Disconnect(context.Background(), "bob")

	// Then the call entry is gone, not leaked
	_, state := f.coordinator.State("c1")
	req.Equal(domain.CallIdle, state)
}

func TestCoordinator_Disconnect_KeepsCallWhileCounterpartOnline(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)
	f.request(t, "c1")
	req.NoError(f.coordinator.Accept(context.Background(), "bob",
		event.CallAnswerPayload{CallID: "c1"}))

	// When only the caller vanishes
	f.registry.Remove("alice", "ha")
	f.coordinator.Disconnect(context.Background(), "alice")

	// Then the entry survives so bob can still end the call explicitly
	_, state := f.coordinator.State("c1")
	req.Equal(domain.CallActive, state)
	inCall, _ := f.registry.CallState("bob")
	req.True(inCall)

	req.NoError(f.coordinator.End(context.Background(), "bob",
		event.CallAnswerPayload{CallID: "c1"}))
	_, state = f.coordinator.State("c1")
	req.Equal(domain.CallIdle, state)
	inCall, _ = f.registry.CallState("bob")
	req.False(inCall)
}

func TestCoordinator_Signal_PureRelay(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	bob2 := &captureSink{}
	f.registry.Add("bob", "hb2", "Bob", bob2)

	candidate := json.RawMessage(`{"candidate":"udp 1 ..."}`)
	err := f.coordinator.Signal(context.Background(), "alice", event.IceCandidate,
		event.SignalPayload{RecipientID: "bob", Payload: candidate})
	req.NoError(err)

	// Every device got the candidate, stamped with the sender
	req.Len(f.bob.named(event.IceCandidate), 1)
	req.Len(bob2.named(event.IceCandidate), 1)
	relayed := f.bob.named(event.IceCandidate)[0].Data.(event.SignalRelayPayload)
	req.Equal("alice", relayed.SenderID)
	req.JSONEq(string(candidate), string(relayed.Payload))

	// And no call state appeared anywhere
	inCall, _ := f.registry.CallState("bob")
	req.False(inCall)
}
