package wizard

import (
	"context"
	"strings"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/block"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/corerr"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/rbac"
)

// Chunk is one progressive-rendering unit the Bifrost strategy yields
// (spec.md §4.2.3): the keys executed so far in this chunk, whether it
// ends on a gate, and the gate's raw value (the form descriptor the
// frontend renders).
type Chunk struct {
	Keys      []string
	IsGate    bool
	GateValue interface{}
}

// Outcome is the final result of a chunked run, delivered on Generator.Done
// once the goroutine returns.
type Outcome struct {
	Signal string
	Err    error
}

// Generator is the goroutine+channel modeling of the chunked Loop Engine
// (spec.md §9: "model it as ... an actor with an inbox" — here, a
// goroutine paired with a resume channel, Go's idiomatic two-way
// coroutine). The run pauses at two kinds of key: at a "!" gate the
// goroutine suspends until Resume; at a "*" menu whose dispatch returns nil
// it sends a "_paused" chunk and an Outcome on Done, then returns.
type Generator struct {
	Chunks chan Chunk
	Done   chan Outcome
	resume chan interface{}
}

// resumeExtraKey is where the last gate/menu submission is stashed on the
// Context so the next dispatched step (and interpolation) can see it as
// "%submitted.field".
const resumeExtraKey = "submitted"

// Resume delivers client-submitted data (a form_submit or menu_selection
// payload) to a generator suspended at a gate, unblocking it to continue
// past that key. Resume never blocks: on a generator that has already
// finished, the data is left unread and nothing resumes.
func (g *Generator) Resume(data interface{}) {
	select {
	case g.resume <- data:
	default:
	}
}

// StartChunked launches the Bifrost chunked strategy as a background
// goroutine and returns immediately with the Generator handle. The caller
// (the WebSocket Bridge) ranges over Chunks, rendering each, and calls
// Resume after a gate chunk once the client submits the form.
func (e *Engine) StartChunked(ctx context.Context, b *block.Block, dispatch Dispatcher, callbacks *Callbacks, dctx *Context, startKey, blockName string) *Generator {
	g := &Generator{
		Chunks: make(chan Chunk),
		Done:   make(chan Outcome, 1),
		resume: make(chan interface{}, 1),
	}
	go e.runChunked(ctx, b, dispatch, callbacks, dctx, startKey, blockName, g)
	return g
}

// emitBack dispatches a zBack outcome to the caller-supplied callback, if
// any, before sending it on g.Done — the chunked-mode mirror of
// ExecuteLoop's callbacks.call handling for the same signal (spec.md
// §4.2.1 step 5). A chunked run can't resume in place the way ExecuteLoop
// recurses from inside OnBack (the Chunks channel is one-shot and this
// goroutine is about to exit); OnBack here is for observation/override of
// the final signal, with the actual pop-and-reload performed by whoever
// reads Outcome off Done.
func emitBack(callbacks *Callbacks, key string, g *Generator) {
	signal := SignalZBack
	if cbResult, handled := callbacks.call(SignalZBack, key, nil); handled {
		if s, ok := cbResult.(string); ok {
			signal = s
		}
	}
	g.Done <- Outcome{Signal: signal}
}

func (e *Engine) runChunked(ctx context.Context, b *block.Block, dispatch Dispatcher, callbacks *Callbacks, dctx *Context, startKey, blockName string, g *Generator) {
	defer close(g.Chunks)

	if blockName != "" {
		if step, ok := b.Get(blockName); ok && step.Nested != nil {
			b = step.Nested
		}
	}

	if signal, denied := e.checkBlockRBAC(ctx, b, dctx); denied {
		g.Chunks <- Chunk{Keys: nil, IsGate: false, GateValue: map[string]interface{}{
			"zRBAC_denied": true, "_signal": "navigate_back",
		}}
		emitBack(callbacks, blockName, g)
		return
	}

	if err := e.resolveBlockData(ctx, b, dctx); err != nil {
		e.log.Warn("chunked: error resolving _data: %v", err)
	}

	keys := b.ExecutableKeys()
	idx := indexOf(keys, startKey)
	var current []string

	for idx < len(keys) {
		key := keys[idx]
		step, _ := b.Get(key)

		decision, _, _ := e.Checker.Check(ctx, key, step.RBAC(), dctx.Session.AuthSnapshot())
		if decision == rbac.Denied {
			idx++
			continue
		}
		if decision == rbac.DeniedZGuest {
			if len(current) > 0 {
				g.Chunks <- Chunk{Keys: current, IsGate: false}
			}
			g.Chunks <- Chunk{Keys: nil, IsGate: false, GateValue: map[string]interface{}{
				"zRBAC_denied": true, "_signal": "navigate_back",
			}}
			emitBack(callbacks, key, g)
			return
		}

		InterpolateStep(&step, dctx)

		result, err := dispatch.Dispatch(ctx, key, step, dctx)
		if err != nil {
			e.log.Error("chunked: dispatch error on %q: %v", key, err)
			idx++
			continue
		}

		isMenu := strings.Contains(key, "*")
		if result == nil && isMenu {
			current = append(current, key)
			g.Chunks <- Chunk{Keys: current, IsGate: false, GateValue: map[string]interface{}{"_paused": true}}
			g.Done <- Outcome{}
			return
		}

		current = append(current, key)

		if strings.Contains(key, "!") {
			gateValue := dispatchValue(step)
			g.Chunks <- Chunk{Keys: current, IsGate: true, GateValue: gateValue}
			current = nil

			select {
			case submission := <-g.resume:
				if dctx.Extra == nil {
					dctx.Extra = map[string]interface{}{}
				}
				dctx.Extra[resumeExtraKey] = submission
			case <-ctx.Done():
				g.Done <- Outcome{Err: corerr.New(corerr.KindConnection, key, ctx.Err())}
				return
			}
			idx++
			continue
		}

		idx++
	}

	if len(current) > 0 {
		g.Chunks <- Chunk{Keys: current, IsGate: false}
	}
	g.Done <- Outcome{}
}

func dispatchValue(step block.Step) interface{} {
	if step.Dispatch != nil {
		return step.Dispatch.Fields
	}
	if step.Scalar != nil {
		return *step.Scalar
	}
	return nil
}
