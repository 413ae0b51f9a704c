// Package notification fans billing events out to redis subscribers and
// email. Delivery is best effort: failures are logged and never returned.
package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/estatebill/internal/config"
	estatedomain "github.com/smallbiznis/estatebill/internal/estate/domain"
	"github.com/smallbiznis/estatebill/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	KindWaiverDecision  = "waiver_decision"
	KindClearanceResult = "clearance_result"
)

const dispatchTimeout = 5 * time.Second

type Event struct {
	Kind       string         `json:"kind"`
	ResidentID snowflake.ID   `json:"resident_id"`
	Data       map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
	Email  email.Provider
	Estate estatedomain.Service
	Redis  *redis.Client `optional:"true"`
}

type Dispatcher struct {
	log     *zap.Logger
	email   email.Provider
	estate  estatedomain.Service
	redis   *redis.Client
	channel string
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{
		log:     p.Log.Named("notification.dispatcher"),
		email:   p.Email,
		estate:  p.Estate,
		redis:   p.Redis,
		channel: p.Config.Redis.NotificationChannel,
	}
}

// Dispatch publishes the event and emails the resident when an address is
// on file. It never fails the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Data == nil {
		event.Data = map[string]any{}
	}
	log := d.log.With(zap.String("kind", event.Kind), zap.String("resident_id", event.ResidentID.String()))

	d.publish(ctx, log, event)
	d.sendEmail(ctx, log, event)
}

func (d *Dispatcher) publish(ctx context.Context, log *zap.Logger, event Event) {
	if d.redis == nil || d.channel == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Warn("notification.encode_failed", zap.Error(err))
		return
	}
	if err := d.redis.Publish(ctx, d.channel, payload).Err(); err != nil {
		log.Warn("notification.publish_failed", zap.String("channel", d.channel), zap.Error(err))
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, log *zap.Logger, event Event) {
	if d.email == nil || d.estate == nil || event.ResidentID == 0 {
		return
	}
	resident, err := d.estate.GetResident(ctx, event.ResidentID)
	if err != nil {
		log.Warn("notification.resident_lookup_failed", zap.Error(err))
		return
	}
	if resident.Email == "" {
		log.Debug("notification.no_email")
		return
	}

	data := make(map[string]any, len(event.Data)+1)
	for key, value := range event.Data {
		data[key] = value
	}
	data["resident_name"] = resident.FullName
	if err := d.email.SendTemplate(ctx, []string{resident.Email}, event.Kind, data); err != nil {
		log.Warn("notification.email_failed", zap.Error(err))
		return
	}
	log.Info("notification.email_sent")
}

var Module = fx.Module("notification",
	fx.Provide(NewDispatcher),
)
