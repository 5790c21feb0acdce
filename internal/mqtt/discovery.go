//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"irrigation-go-home/internal/store"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/binary_sensor/irrigationcaddy_192_168_3_70/connectivity/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
	ConfigURL    string   `json:"configuration_url,omitempty"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic,omitempty"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	EntityCategory    string   `json:"entity_category,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	PayloadPress      string   `json:"payload_press,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	Device            haDevice `json:"device"`
}

const manufacturer = "IrrigationCaddy"

// controllerIdentifier returns the unique identifier for HA device registry.
func controllerIdentifier(ctrl *store.Controller) string {
	return "irrigationcaddy_" + sanitize(ctrl.Address)
}

// controllerTopicName returns the topic name for a controller (friendly
// name or address).
func controllerTopicName(ctrl *store.Controller) string {
	if ctrl.FriendlyName != "" {
		return sanitize(strings.ToLower(ctrl.FriendlyName))
	}
	return sanitize(ctrl.Address)
}

// sanitize keeps only characters that are safe in MQTT topics and HA ids.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, s)
}

// buildDiscovery generates HA discovery messages for a controller.
func buildDiscovery(ctrl *store.Controller, prefix string) []discoveryMsg {
	avail := prefix + "/bridge/state"
	stateTopic := prefix + "/" + controllerTopicName(ctrl)
	cmdTopic := stateTopic + "/set"
	nodeID := controllerIdentifier(ctrl)
	name := ctrl.Name()

	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: manufacturer,
		Model:        ctrl.Hostname,
		Name:         name,
		ConfigURL:    "http://" + ctrl.Address + "/",
	}

	return []discoveryMsg{
		buildComponent("binary_sensor", nodeID, "connectivity", haDiscovery{
			Name:              name + " Connectivity",
			StateTopic:        stateTopic,
			AvailabilityTopic: avail,
			ValueTemplate:     "{{ 'ON' if value_json.online else 'OFF' }}",
			DeviceClass:       "connectivity",
			PayloadOn:         "ON",
			PayloadOff:        "OFF",
			Device:            haDev,
		}),
		buildComponent("sensor", nodeID, "boot_time", haDiscovery{
			Name:              name + " Boot Time",
			StateTopic:        stateTopic,
			AvailabilityTopic: avail,
			ValueTemplate:     "{{ value_json.boot_time }}",
			DeviceClass:       "timestamp",
			EntityCategory:    "diagnostic",
			Device:            haDev,
		}),
		buildComponent("sensor", nodeID, "last_seen", haDiscovery{
			Name:              name + " Last Seen",
			StateTopic:        stateTopic,
			AvailabilityTopic: avail,
			ValueTemplate:     "{{ value_json.last_seen }}",
			DeviceClass:       "timestamp",
			EntityCategory:    "diagnostic",
			Device:            haDev,
		}),
		buildComponent("button", nodeID, "sync_clock", haDiscovery{
			Name:              name + " Sync Clock",
			CommandTopic:      cmdTopic,
			AvailabilityTopic: avail,
			PayloadPress:      `{"sync_clock":true}`,
			EntityCategory:    "config",
			Icon:              "mdi:clock-check-outline",
			Device:            haDev,
		}),
	}
}

func buildComponent(component, nodeID, objectID string, payload haDiscovery) discoveryMsg {
	payload.UniqueID = nodeID + "_" + objectID
	return discoveryMsg{
		Topic:   fmt.Sprintf("homeassistant/%s/%s/%s/config", component, nodeID, objectID),
		Payload: mustJSON(payload),
	}
}

// buildRemoveDiscovery generates empty retained messages to remove a
// controller from HA.
func buildRemoveDiscovery(ctrl *store.Controller) []discoveryMsg {
	nodeID := controllerIdentifier(ctrl)

	components := []struct{ comp, obj string }{
		{"binary_sensor", "connectivity"},
		{"sensor", "boot_time"},
		{"sensor", "last_seen"},
		{"button", "sync_clock"},
	}

	var msgs []discoveryMsg
	for _, c := range components {
		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("homeassistant/%s/%s/%s/config", c.comp, nodeID, c.obj),
			Payload: nil, // empty retained = delete
		})
	}
	return msgs
}
