package agentrt

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lumenanalytics/agentd/toolkit"
)

// maxConcurrentTools bounds concurrent tool dispatch within one turn
// (spec.md §5's resource model).
const maxConcurrentTools = 8

// dispatchToolCalls runs each call concurrently against executor, bounded to
// maxConcurrentTools in flight at once, and returns results in the same
// order as calls regardless of completion order (spec.md §4.3 step 4 -- this
// is what makes replays reproducible, scenario S2).
func dispatchToolCalls(ctx context.Context, executor *toolkit.Executor, calls []toolkit.Call) []toolkit.Result {
	results := make([]toolkit.Result, len(calls))
	sem := make(chan struct{}, maxConcurrentTools)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call toolkit.Call) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = executor.Execute(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// resultToToolMessage converts a dispatch Result into the Tool message
// appended to the thread (spec.md §4.3 step 5: a tool error becomes
// {"error": "<message>"} content rather than aborting the conversation).
func resultToToolMessage(r toolkit.Result) Message {
	if r.Err != nil {
		errJSON, _ := json.Marshal(map[string]string{"error": r.Err.Error()})
		return NewToolMessage(r.CallID, string(r.Name), string(errJSON))
	}
	return NewToolMessage(r.CallID, string(r.Name), string(r.Payload))
}
