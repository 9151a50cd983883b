package engine

import (
	"encoding/json"

	"github.com/agentstate/agentstate/pkg/types"
	"github.com/agentstate/agentstate/pkg/wal"
)

// decodeEvent translates a WAL record into the change-feed event it
// represents, if any. Lease commits have no change-feed representation
// and decode to ok=false.
func decodeEvent(rec wal.Record) (ev types.Event, ok bool, err error) {
	switch rec.Kind {
	case wal.KindPut:
		var p putPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return types.Event{}, false, err
		}
		return types.Event{
			Kind: types.EventPut, Namespace: rec.Namespace, ID: p.ID,
			CommitSeq: rec.CommitSeq, CommitTS: p.CommitTS, Tags: p.Tags,
		}, true, nil
	case wal.KindDelete:
		var p deletePayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return types.Event{}, false, err
		}
		return types.Event{
			Kind: types.EventDelete, Namespace: rec.Namespace, ID: p.ID,
			CommitSeq: rec.CommitSeq, CommitTS: p.CommitTS,
		}, true, nil
	default:
		return types.Event{}, false, nil
	}
}

// walHistoryAdapter implements watch.HistorySource over a *wal.WAL,
// decoding each raw Record the WAL replays into the (namespace, Event)
// shape the watch hub expects. The WAL's own ReadFrom has no notion of
// change-feed events — it only knows record framing — so this is
// where that translation lives, kept in pkg/engine alongside the
// payload decoding commit/publish already do.
type walHistoryAdapter struct {
	wal *wal.WAL
}

func (a walHistoryAdapter) ReadFrom(fromSeq uint64, fn func(namespace string, ev types.Event) error) (ok bool, err error) {
	return a.wal.ReadFrom(fromSeq, func(rec wal.Record) error {
		ev, ok, derr := decodeEvent(rec)
		if derr != nil {
			return derr
		}
		if !ok {
			return nil
		}
		return fn(rec.Namespace, ev)
	})
}
