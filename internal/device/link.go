package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/safeher/internal/domain"
	"go.uber.org/zap"
)

const (
	qosAtLeastOnce byte = 1

	defaultPromptTimeout = 10 * time.Second
	// Upper bound for a request whose ctx has no deadline of its own.
	defaultReplyTimeout = 2 * time.Minute
)

var (
	ErrNotConnected = errors.New("device link is not connected")
	ErrFixFailed    = errors.New("device could not obtain a location fix")
)

// Link is the request/response channel to one phone over MQTT. It serves as the
// notification surface, location source, permission prompter, haptics driver and
// SMS composer for the rest of the system.
type Link struct {
	transport Transport
	deviceID  string
	logger    *zap.Logger
	newID     func() string

	replyTimeout time.Duration

	mu      sync.Mutex
	pending map[string]chan []byte
}

func NewLink(transport Transport, deviceID string, logger *zap.Logger) (*Link, error) {
	if transport == nil {
		return nil, fmt.Errorf("device transport is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		deviceID = "default"
	}

	return &Link{
		transport: transport,
		deviceID:  deviceID,
		logger:    logger,
		newID:     uuid.NewString,
		pending:   make(map[string]chan []byte),

		replyTimeout: defaultReplyTimeout,
	}, nil
}

// Start subscribes to the device's reply topics.
func (l *Link) Start() error {
	for _, suffix := range []string{
		topicLocationFix,
		topicPromptResponse,
		topicPermissionResponse,
		topicComposerResult,
	} {
		if err := l.transport.Subscribe(l.topic(suffix), qosAtLeastOnce, l.handleReply); err != nil {
			return err
		}
	}
	return nil
}

func (l *Link) Close() error {
	return l.transport.Unsubscribe(
		l.topic(topicLocationFix),
		l.topic(topicPromptResponse),
		l.topic(topicPermissionResponse),
		l.topic(topicComposerResult),
	)
}

func (l *Link) IsConnected() bool {
	return l.transport.IsConnected()
}

// SubscribeMotion streams accelerometer samples published by the phone.
func (l *Link) SubscribeMotion(handler func(domain.MotionSample)) error {
	return l.transport.Subscribe(l.topic(topicMotion), 0, func(_ string, payload []byte) error {
		var msg motionMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("invalid motion sample: %w", err)
		}
		handler(domain.MotionSample{
			X:  msg.X,
			Y:  msg.Y,
			Z:  msg.Z,
			At: time.UnixMilli(msg.Timestamp).UTC(),
		})
		return nil
	})
}

// CurrentPosition asks the phone for one high-accuracy fix and waits until ctx ends.
func (l *Link) CurrentPosition(ctx context.Context) (*domain.Position, error) {
	id := l.newID()
	reply, err := l.roundTrip(ctx, id, topicLocationRequest, locationRequest{ID: id, HighAccuracy: true})
	if err != nil {
		return nil, err
	}

	var fix locationFix
	if err := json.Unmarshal(reply, &fix); err != nil {
		return nil, fmt.Errorf("invalid location fix: %w", err)
	}
	if fix.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrFixFailed, fix.Error)
	}

	position := &domain.Position{
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
		Accuracy:   fix.Accuracy,
		CapturedAt: fix.CapturedAt,
	}
	if err := position.Validate(); err != nil {
		return nil, err
	}
	return position, nil
}

// Prompt posts a YES/NO notification. An unanswered prompt yields PromptExpired.
func (l *Link) Prompt(ctx context.Context, p Prompt) (PromptAnswer, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultPromptTimeout
	}
	promptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id := l.newID()
	reply, err := l.roundTrip(promptCtx, id, topicPrompt, promptMessage{
		ID:        id,
		Title:     p.Title,
		Body:      p.Body,
		Actions:   []string{string(PromptConfirmed), string(PromptDeclined)},
		ExpiresAt: time.Now().Add(timeout).UTC(),
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return PromptExpired, nil
		}
		return "", err
	}

	var resp promptResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return "", fmt.Errorf("invalid prompt response: %w", err)
	}
	switch PromptAnswer(strings.ToUpper(strings.TrimSpace(resp.Action))) {
	case PromptConfirmed:
		return PromptConfirmed, nil
	case PromptDeclined:
		return PromptDeclined, nil
	default:
		return "", fmt.Errorf("unknown prompt action %q", resp.Action)
	}
}

// Notify posts a passive notification.
func (l *Link) Notify(_ context.Context, title string, body string) error {
	return l.publish(topicNotify, notifyMessage{Title: title, Body: body})
}

// Pulse fires a short vibration.
func (l *Link) Pulse(_ context.Context) error {
	return l.publish(topicHaptic, hapticMessage{PatternMS: []int{0, 200, 100, 200}})
}

// RequestPermission shows the platform permission dialog for capability.
func (l *Link) RequestPermission(ctx context.Context, capability domain.Capability) (bool, error) {
	id := l.newID()
	reply, err := l.roundTrip(ctx, id, topicPermissionRequest, permissionRequest{ID: id, Capability: capability.String()})
	if err != nil {
		return false, err
	}

	var resp permissionResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return false, fmt.Errorf("invalid permission response: %w", err)
	}
	return resp.Granted, nil
}

// OpenComposer opens the SMS app pre-filled with recipients and body and waits for the user.
func (l *Link) OpenComposer(ctx context.Context, recipients []string, body string) (ComposerResult, error) {
	id := l.newID()
	reply, err := l.roundTrip(ctx, id, topicComposerOpen, composerOpen{ID: id, Recipients: recipients, Body: body})
	if err != nil {
		return "", err
	}

	var resp composerResult
	if err := json.Unmarshal(reply, &resp); err != nil {
		return "", fmt.Errorf("invalid composer result: %w", err)
	}
	switch ComposerResult(strings.ToLower(strings.TrimSpace(resp.Result))) {
	case ComposerSent:
		return ComposerSent, nil
	case ComposerCancelled:
		return ComposerCancelled, nil
	default:
		return "", fmt.Errorf("unknown composer result %q", resp.Result)
	}
}

// roundTrip publishes msg and waits for the reply carrying id. A phone that never
// answers is cut off by ctx, or by replyTimeout when ctx has no deadline.
func (l *Link) roundTrip(ctx context.Context, id string, suffix string, msg any) ([]byte, error) {
	if !l.transport.IsConnected() {
		return nil, ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok && l.replyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.replyTimeout)
		defer cancel()
	}

	ch := make(chan []byte, 1)
	l.mu.Lock()
	l.pending[id] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pending, id)
		l.mu.Unlock()
	}()

	if err := l.publish(suffix, msg); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply := <-ch:
		return reply, nil
	}
}

func (l *Link) handleReply(topic string, payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("invalid reply on %s: %w", topic, err)
	}

	l.mu.Lock()
	ch, ok := l.pending[env.ID]
	l.mu.Unlock()
	if !ok {
		l.logger.Debug("dropping unsolicited device reply",
			zap.String("topic", topic),
			zap.String("id", env.ID),
		)
		return nil
	}

	select {
	case ch <- payload:
	default:
	}
	return nil
}

func (l *Link) publish(suffix string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", suffix, err)
	}
	return l.transport.Publish(l.topic(suffix), qosAtLeastOnce, false, payload)
}

func (l *Link) topic(suffix string) string {
	return "safeher/devices/" + l.deviceID + "/" + suffix
}
