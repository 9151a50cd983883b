package heap

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/agentstate/agentstate/pkg/types"
)

// Query describes a tag/JSONPath search over one namespace's live
// objects.
type Query struct {
	TagFilter  []string // "k:v" pairs, all must match (AND)
	JSONPath   string   // optional; equality predicate path, evaluated against Body
	JSONValue  any      // value the JSONPath must equal when JSONPath is set
	Limit      int
	Projection []string // optional; top-level Body keys to keep
}

// Run executes q against namespace's current live objects, returning
// results ordered by commit_seq ascending for stability across calls.
func (h *Heap) Run(namespace string, q Query) ([]types.Object, error) {
	state := h.statePointer(namespace).Load()
	ids := state.candidateIDs(q.TagFilter)
	now := time.Now()

	results := make([]types.Object, 0, len(ids))
	for id := range ids {
		chain, ok := state.byID.Get(id)
		if !ok {
			continue
		}
		obj, ok := chain.latest()
		if !ok || obj.Tombstone || !obj.Alive(now) {
			continue
		}
		if q.JSONPath != "" {
			match, err := matchesJSONPath(obj.Body, q.JSONPath, q.JSONValue)
			if err != nil {
				return nil, types.New("heap.Query", types.KindInvalidArgument, err)
			}
			if !match {
				continue
			}
		}
		results = append(results, obj)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].CommitSeq < results[j].CommitSeq })

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	if len(q.Projection) > 0 {
		for i := range results {
			projected, err := project(results[i].Body, q.Projection)
			if err != nil {
				return nil, types.New("heap.Query", types.KindInvalidArgument, err)
			}
			results[i].Body = projected
		}
	}
	return results, nil
}

// matchesJSONPath reports whether evaluating path against body yields
// a value equal to want. Only equality predicates are guaranteed by
// the contract; anything jsonpath itself cannot evaluate surfaces as
// an error so the caller can reject it as InvalidArgument.
func matchesJSONPath(body json.RawMessage, path string, want any) (bool, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return false, err
	}
	got, err := jsonpath.Get(path, v)
	if err != nil {
		return false, err
	}
	return equalJSON(got, want), nil
}

// equalJSON compares two values the way JSON equality is normally
// understood (numbers compared as float64, since json.Unmarshal into
// any always produces float64 for numbers).
func equalJSON(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af == bf
	}
	return a == b
}

// project returns body restricted to the listed top-level keys.
func project(body json.RawMessage, keys []string) (json.RawMessage, error) {
	var full map[string]json.RawMessage
	if err := json.Unmarshal(body, &full); err != nil {
		return body, err
	}
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := full[k]; ok {
			out[k] = v
		}
	}
	return json.Marshal(out)
}
