// Package harness runs worker scenarios and checks what they journal.
//
// A scenario drives one worker with deterministic collaborators: commands
// come from testutil.FakeSource, clients are testutil.RecordingConn, time
// only moves on "advance" steps and pixels land on a canvas.Soft. Every
// journaled event is read back from the session store as the trace.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config: |
//	  streaming_video = "all"
//	surfaces:
//	  - { id: 0, width: 640, height: 480 }
//	channels:
//	  - { name: display, ack_window: 20 }
//	  - { name: pointer, kind: cursor, deferred: true }
//	steps:
//	  - draw: { type: fill, bbox: [0, 0, 64, 64], color: 0xff0000ff }
//	  - draw:
//	      type: copy
//	      bbox: [0, 0, 32, 32]
//	      image: { pattern: gradient, width: 32, height: 32 }
//	  - advance: 40ms
//	  - run: 1
//	  - control: { op: connect, channel: pointer }
//	  - block: display
//	  - ack: { channel: display, sync: 1 }
//	  - draw: { surface: 9, bbox: [0, 0, 1, 1] }
//	  - run: 1
//	    error: BAD_SURFACE
//	assertions:
//	  - type: trace_order
//	    channel: display
//	    names: [channel_connect, set_ack, surface_create, draw]
//	  - type: final_state
//	    table: events
//	    where: { kind: stream_create }
//	    expect: { stream: 0 }
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: an event with the name whose fields include match
//   - trace_order: names appear in the given order, not necessarily adjacent
//   - trace_count: a name appears exactly count times
//   - final_state: one journal row matches where and carries expect
//   - worker_state: a counter captured after the last step
//   - pixel: a canvas color, rendered after the last step
//
// A trace event is named by its message type when it is a sent message and
// by its kind otherwise, so surface_create names both the journaled event
// and the message; give a channel to count only the messages.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/display_basic.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
