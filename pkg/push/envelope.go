package push

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/mahaj/bizchat/pkg/model"
)

// Envelope is what travels over a bus: the addressees and the frame
// exactly as it will be written to their sockets.
type Envelope struct {
	UserIDs []string        `json:"userIds"`
	Payload json.RawMessage `json:"payload"`
}

func encodeEnvelope(userIDs []string, ev model.Event) ([]byte, error) {
	payload, err := ev.Encode()
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{UserIDs: userIDs, Payload: payload})
}

// dispatch hands a bus message to the local registry. Bad envelopes and
// delivery failures are logged and dropped.
func dispatch(ctx context.Context, local *Direct, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn("dropping malformed push envelope", "err", err)
		return
	}
	if err := local.Deliver(ctx, env.UserIDs, env.Payload); err != nil {
		log.Debug("fanout delivery incomplete", "err", err)
	}
}
