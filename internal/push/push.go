package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/arogya-labs/teleconsult/internal/config"
	"github.com/arogya-labs/teleconsult/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"
)

// Service stores browser push subscriptions and delivers notifications
// through the web-push protocol. Delivery is always best-effort.
type Service struct {
	db     *gorm.DB
	keys   *config.VAPIDKeys
	logger *slog.Logger
}

func NewService(db *gorm.DB, keys *config.VAPIDKeys, logger *slog.Logger) *Service {
	return &Service{db: db, keys: keys, logger: logger}
}

// Subscribe stores or refreshes a push endpoint for the user.
func (s *Service) Subscribe(ctx context.Context, userID, endpoint, p256dh, auth string) error {
	sub := models.PushSubscription{
		UserID:   userID,
		Endpoint: endpoint,
		P256DH:   p256dh,
		Auth:     auth,
	}
	// An endpoint re-registered by the same browser replaces its old keys.
	err := s.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&models.PushSubscription{}).Error
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&sub).Error
}

// SendToUser pushes a payload to every subscription of the user. Endpoints
// the push service reports as gone are pruned.
func (s *Service) SendToUser(ctx context.Context, userID string, payload []byte) {
	var subs []models.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		s.logger.Error("push subscription lookup failed", "user_id", userID, "error", err)
		return
	}

	for _, sub := range subs {
		resp, err := webpush.SendNotification(payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256DH,
				Auth:   sub.Auth,
			},
		}, &webpush.Options{
			Subscriber:      s.keys.Subject,
			VAPIDPublicKey:  s.keys.PublicKey,
			VAPIDPrivateKey: s.keys.PrivateKey,
			TTL:             60,
		})
		if err != nil {
			s.logger.Warn("push send failed", "user_id", userID, "error", err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			s.db.WithContext(ctx).Delete(&models.PushSubscription{}, "id = ?", sub.ID)
		}
		resp.Body.Close()
	}
}

// NotifyEvent wraps an event name and payload into the JSON shape the
// service worker expects and sends it.
func (s *Service) NotifyEvent(ctx context.Context, userID, event string, payload any) {
	body, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	if err != nil {
		return
	}
	s.SendToUser(ctx, userID, body)
}
