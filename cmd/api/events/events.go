package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	app "github.com/assetflow/assetflow-go/cmd/api/app"
)

// Event is one row of the asset audit trail.
type Event struct {
	ID        int64           `json:"id"`
	AssetID   *string         `json:"assetId,omitempty"`
	Type      string          `json:"type"`
	ActorID   *string         `json:"actorId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Emit records an audit event. Best effort; a failed insert is logged
// and never fails the caller's request.
func Emit(ctx context.Context, db app.DB, assetID, eventType, actorID string, payload any) {
	if db == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil || payload == nil {
		b = []byte("{}")
	}
	var asset, actor *string
	if assetID != "" {
		asset = &assetID
	}
	if actorID != "" {
		actor = &actorID
	}
	if _, err := db.Exec(ctx,
		`insert into asset_events (asset_id, event_type, actor_id, payload) values ($1, $2, $3, $4::jsonb)`,
		asset, eventType, actor, string(b)); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("event", eventType).Msg("emit asset event")
	}
}
