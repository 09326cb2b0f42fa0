package wizard

import (
	"context"
	"strings"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/accumulator"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/block"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/corerr"
)

// Handle is the higher-level entry point spec.md §4.2 names alongside
// execute_loop: it provides the Accumulator, interpolation, and transaction
// scoping around a flat sequence of steps (grounded on zWizard.py's
// handle()). Unlike ExecuteLoop, Handle does not process navigation
// signals or menu loopback — it is the "plain workflow" path zData
// transactional scripts and one-shot CLI workflows use.
func (e *Engine) Handle(ctx context.Context, workflow *block.Block, dispatch Dispatcher, dctx *Context) (acc *accumulator.Accumulator, err error) {
	acc = accumulator.New()
	dctx.Accumulator = acc

	useTransaction := metadataBool(workflow, "_transaction")
	var transactionAlias string

	defer func() {
		if dctx.Schema != nil {
			dctx.Schema.Clear()
		}
	}()

	if err := e.resolveBlockData(ctx, workflow, dctx); err != nil {
		e.log.Warn("handle: error resolving _data: %v", err)
	}

	for _, key := range workflow.ExecutableKeys() {
		step, _ := workflow.Get(key)
		InterpolateStep(&step, dctx)

		if useTransaction && transactionAlias == "" {
			if alias, ok := transactionModelAlias(step); ok {
				transactionAlias = alias
				if dctx.Schema != nil {
					if beginErr := dctx.Schema.Begin(alias); beginErr != nil {
						return acc, corerr.New(corerr.KindConnection, key, beginErr)
					}
				}
			}
		}

		result, dispatchErr := dispatch.Dispatch(ctx, key, step, dctx)
		if dispatchErr != nil {
			if useTransaction && transactionAlias != "" && dctx.Schema != nil {
				dctx.Schema.Rollback(transactionAlias)
			}
			return acc, corerr.New(corerr.KindDispatch, key, dispatchErr)
		}

		signal, _ := extractSignal(result)
		acc.Append(key, result, signal)
	}

	if useTransaction && transactionAlias != "" && dctx.Schema != nil {
		if commitErr := dctx.Schema.Commit(transactionAlias); commitErr != nil {
			return acc, corerr.New(corerr.KindConnection, transactionAlias, commitErr)
		}
	}

	return acc, nil
}

// metadataBool reads a metadata key's scalar value as a boolean, per the
// loader's string-scalar representation of YAML booleans.
func metadataBool(b *block.Block, key string) bool {
	step, ok := b.Get(key)
	if !ok || step.Scalar == nil {
		return false
	}
	return strings.EqualFold(*step.Scalar, "true")
}

// transactionModelAlias finds the first zData step whose model begins with
// "$", returning the alias name without the sigil (spec.md §4.2.5).
func transactionModelAlias(step block.Step) (string, bool) {
	if step.Dispatch == nil || step.Dispatch.Kind != block.KindData {
		return "", false
	}
	model, ok := step.Dispatch.Fields["model"].(string)
	if !ok || !strings.HasPrefix(model, "$") {
		return "", false
	}
	return strings.TrimPrefix(model, "$"), true
}

func extractSignal(result interface{}) (string, bool) {
	if s, ok := result.(string); ok && NavigationSignals[s] {
		return s, true
	}
	return "", false
}
