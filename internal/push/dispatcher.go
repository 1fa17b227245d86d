// Package push delivers notification payloads to browser push endpoints via
// the Web Push protocol (VAPID) and classifies the outcome.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/classtrack/chime/internal/db"
)

// Payload is the wire format handed to the push service.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
}

// Status classifies one delivery attempt.
type Status int

const (
	// Delivered: the push service accepted the message.
	Delivered Status = iota
	// TransientFailure: network error or non-terminal service response.
	// Not retried; the next weekly occurrence is the recovery point.
	TransientFailure
	// PermanentlyGone: the endpoint no longer exists (HTTP 404/410).
	// The subscription must be reaped.
	PermanentlyGone
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case TransientFailure:
		return "transient"
	case PermanentlyGone:
		return "gone"
	default:
		return "unknown"
	}
}

// Result is the outcome of a single send.
type Result struct {
	Status Status
	Err    error
}

// Sender delivers one payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub *db.Subscription, payload Payload) Result
}

// Config holds VAPID credentials and push service options.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             int // seconds the push service may hold the message
}

type sendFunc func(ctx context.Context, message []byte, s *webpush.Subscription, o *webpush.Options) (*http.Response, error)

// WebPushSender sends payloads through the Web Push protocol.
type WebPushSender struct {
	cfg    Config
	logger *zap.Logger
	send   sendFunc // swapped out in tests
}

// NewWebPushSender creates a sender with the given VAPID credentials.
func NewWebPushSender(cfg Config, logger *zap.Logger) *WebPushSender {
	if cfg.TTL == 0 {
		cfg.TTL = 60
	}
	return &WebPushSender{
		cfg:    cfg,
		logger: logger,
		send:   webpush.SendNotificationWithContext,
	}
}

// GenerateVAPIDKeys creates a fresh VAPID key pair for deployments that have
// not configured one. Returns (private, public).
func GenerateVAPIDKeys() (string, string, error) {
	return webpush.GenerateVAPIDKeys()
}

// Send delivers payload to sub and classifies the response. There is no
// retry at this layer.
func (s *WebPushSender) Send(ctx context.Context, sub *db.Subscription, payload Payload) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Status: TransientFailure, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	resp, err := s.send(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.cfg.Subscriber,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             s.cfg.TTL,
	})
	if err != nil {
		return Result{Status: TransientFailure, Err: fmt.Errorf("send push: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return Result{Status: PermanentlyGone}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{Status: Delivered}
	default:
		return Result{
			Status: TransientFailure,
			Err:    fmt.Errorf("push service returned status %d", resp.StatusCode),
		}
	}
}
