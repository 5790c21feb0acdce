//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"irrigation-go-home/internal/coordinator"
	"irrigation-go-home/internal/store"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
}

// Bridge publishes controller state to MQTT with HA autodiscovery and
// accepts commands on <prefix>/<controller>/set.
type Bridge struct {
	client pahomqtt.Client
	coord  *coordinator.Coordinator
	prefix string
	logger *slog.Logger
	unsub  func()

	// Command topic currently subscribed per controller address.
	mu         sync.Mutex
	subscribed map[string]string
}

// command is the payload accepted on a controller's /set topic.
type command struct {
	SyncClock bool     `json:"sync_clock"`
	ZoneNames []string `json:"zone_names"`
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(coord *coordinator.Coordinator, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := &Bridge{
		coord:      coord,
		prefix:     cfg.TopicPrefix,
		logger:     logger.With("component", "mqtt"),
		subscribed: make(map[string]string),
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "irrigation-go-home"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.publishAll()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// Assigned before Connect so the OnConnect handler can publish.
	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// Start subscribes to coordinator events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.coord.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event coordinator.Event) {
	addr := eventAddress(event)
	if addr == "" {
		return
	}
	switch event.Type {
	case coordinator.EventControllerFound, coordinator.EventControllerUpdated:
		ctrl, err := b.coord.Controller(addr)
		if err != nil {
			return
		}
		b.publishController(ctrl)
	case coordinator.EventControllerRemoved:
		b.removeController(addr)
	case coordinator.EventControllerOnline, coordinator.EventControllerOffline,
		coordinator.EventStatusUpdate, coordinator.EventClockSet, coordinator.EventZoneNamesChanged:
		ctrl, err := b.coord.Controller(addr)
		if err != nil {
			return
		}
		b.publishState(ctrl)
	}
}

func eventAddress(event coordinator.Event) string {
	data, ok := event.Data.(map[string]any)
	if !ok {
		return ""
	}
	addr, _ := data["address"].(string)
	return addr
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publishAll() {
	list, err := b.coord.Controllers()
	if err != nil {
		b.logger.Error("list controllers for discovery", "err", err)
		return
	}
	for _, ctrl := range list {
		b.publishController(ctrl)
	}
}

// publishController publishes discovery and state and (re)subscribes the
// command topic, which follows the friendly name.
func (b *Bridge) publishController(ctrl *store.Controller) {
	for _, msg := range buildDiscovery(ctrl, b.prefix) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.publishState(ctrl)
	b.subscribeCommands(ctrl)
	b.logger.Info("published HA discovery", "addr", ctrl.Address, "name", ctrl.Name())
}

func (b *Bridge) publishState(ctrl *store.Controller) {
	topic := b.prefix + "/" + controllerTopicName(ctrl)
	b.publish(topic, mustJSON(buildState(ctrl)), true)
}

func (b *Bridge) removeController(addr string) {
	ctrl := &store.Controller{Address: addr}
	for _, msg := range buildRemoveDiscovery(ctrl) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.mu.Lock()
	topic, ok := b.subscribed[addr]
	delete(b.subscribed, addr)
	b.mu.Unlock()
	if ok {
		b.client.Unsubscribe(topic)
	}
}

func (b *Bridge) subscribeCommands(ctrl *store.Controller) {
	addr := ctrl.Address
	topic := b.prefix + "/" + controllerTopicName(ctrl) + "/set"

	b.mu.Lock()
	prev, had := b.subscribed[addr]
	b.subscribed[addr] = topic
	b.mu.Unlock()
	if had && prev == topic {
		return
	}
	if had {
		b.client.Unsubscribe(prev)
	}
	b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(addr, msg.Payload())
	})
}

func (b *Bridge) handleCommand(addr string, payload []byte) {
	cmd, err := parseCommand(payload)
	if err != nil {
		b.logger.Warn("invalid command", "addr", addr, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.coord.Context(), 10*time.Second)
	defer cancel()

	if cmd.SyncClock {
		if _, err := b.coord.SyncClock(ctx, addr); err != nil {
			b.logger.Warn("sync clock command failed", "addr", addr, "err", err)
		}
	}
	if cmd.ZoneNames != nil {
		if err := b.coord.SetZoneNames(ctx, addr, cmd.ZoneNames); err != nil {
			b.logger.Warn("zone names command failed", "addr", addr, "err", err)
		}
	}
}

func parseCommand(payload []byte) (command, error) {
	var cmd command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("decode command: %w", err)
	}
	if !cmd.SyncClock && cmd.ZoneNames == nil {
		return cmd, fmt.Errorf("empty command")
	}
	return cmd, nil
}

// buildState is the retained JSON published on a controller's state topic.
func buildState(ctrl *store.Controller) map[string]any {
	state := map[string]any{
		"address":    ctrl.Address,
		"name":       ctrl.Name(),
		"online":     ctrl.Online,
		"hostname":   ctrl.Hostname,
		"zone_names": ctrl.ZoneNames,
	}
	if !ctrl.LastSeen.IsZero() {
		state["last_seen"] = ctrl.LastSeen.Format(time.RFC3339)
	}
	if !ctrl.BootTime.IsZero() {
		state["boot_time"] = ctrl.BootTime.Format(time.RFC3339)
	}
	if ctrl.Status != nil {
		state["status"] = ctrl.Status
	}
	return state
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
