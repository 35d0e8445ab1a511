// Package stream implements the client side of the agent runtime's
// streaming chat protocol: issuing a turn request, consuming the SSE event
// stream, assembling the assistant message idempotently, tracking session
// identity and pending interruptions, and re-entering the stream after an
// interruption is resolved.
//
// # Architecture
//
// The package is layered the way the protocol is:
//
//   - transport: one streaming HTTP request decoded into raw event payloads
//   - ParseEvent: raw payloads to typed events
//   - MergeContent: pure, idempotent content-block assembly
//   - Session: conversation identity, transcript, pending interruption
//   - Turn: the state machine driving one request/stream cycle
//   - Client: the three resumption drivers plus the out-of-band calls
//
// # Quick Start
//
//	client := stream.NewClient(stream.ClientOptions{BaseURL: "http://localhost:8000"})
//	session := stream.NewSession("agent-1")
//
//	turn, err := client.Send(ctx, session, stream.SendOptions{Message: "Hello!"})
//	if err != nil {
//	    return err
//	}
//
// A turn settles in exactly one of four terminal states: Completed,
// Interrupted, Failed, or Cancelled. An Interrupted turn leaves the session
// holding a pending interruption; resolving it drives the next turn:
//
//	switch turn.State() {
//	case stream.TurnInterrupted:
//	    if q := session.PendingQuestion(); q != nil {
//	        turn, err = client.AnswerQuestion(ctx, session, answers)
//	    }
//	    if p := session.PendingPermission(); p != nil {
//	        // approve re-enters the stream, deny is a plain acknowledgement
//	        turn, err = client.ContinuePermission(ctx, session, "")
//	    }
//	}
//
// # Discipline
//
// One turn per session: callers must not start a turn while another is
// active on the same session. The drivers return ErrTurnActive when the
// slot is taken, but the precondition belongs to the caller.
//
// Cancellation is cooperative: cancel the context passed to a driver, or
// call Cancel on the running turn, then notify the runtime out-of-band with
// Client.Stop. Cancelled turns never surface an error block.
package stream
