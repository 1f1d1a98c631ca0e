package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattjoyce/dconnect-gw/internal/protocol"
)

const (
	// localServiceID is the only device this plugin serves.
	localServiceID = "local"

	profileBattery            = "battery"
	profileServiceInformation = "serviceinformation"

	defaultPowerSupplyDir = "/sys/class/power_supply"
)

var errNoBattery = errors.New("no battery found")

// batteryStatus is a single battery reading.
type batteryStatus struct {
	Level    float64 // 0.0 to 1.0
	Charging bool
}

type batterySource func() (batteryStatus, error)

// respond decodes a wire request and answers it.
func respond(data []byte, battery batterySource) protocol.PluginReply {
	var req protocol.PluginRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorReply(protocol.ErrUnknown, fmt.Sprintf("invalid request JSON: %v", err))
	}
	if req.Protocol != protocol.PluginProtocolVersion {
		return errorReply(protocol.ErrUnknown, fmt.Sprintf("unsupported protocol version: %d", req.Protocol))
	}
	return handle(req, battery)
}

func handle(req protocol.PluginRequest, battery batterySource) protocol.PluginReply {
	if req.ServiceID != localServiceID {
		return errorReply(protocol.ErrNotFoundService, "")
	}
	if req.Method != http.MethodGet {
		return errorReply(protocol.ErrNotSupportAction, "")
	}

	switch req.Profile {
	case profileServiceInformation:
		if req.Interface != "" || req.Attribute != "" {
			return errorReply(protocol.ErrUnknownAttribute, "")
		}
		return okReply(map[string]any{
			"supports": []string{profileBattery, profileServiceInformation},
		})
	case profileBattery:
		return handleBattery(req, battery)
	default:
		return errorReply(protocol.ErrNotSupportProfile, "")
	}
}

func handleBattery(req protocol.PluginRequest, battery batterySource) protocol.PluginReply {
	if req.Interface != "" {
		return errorReply(protocol.ErrUnknownAttribute, "")
	}
	switch req.Attribute {
	case "", "level", "charging":
	default:
		return errorReply(protocol.ErrNotSupportAttribute, "")
	}

	st, err := battery()
	if err != nil {
		reply := errorReply(protocol.ErrIllegalDeviceState, "Battery information is unavailable.")
		reply.Logs = []protocol.LogEntry{{Level: "warn", Message: err.Error()}}
		return reply
	}

	fields := map[string]any{}
	if req.Attribute == "" || req.Attribute == "level" {
		fields["level"] = st.Level
	}
	if req.Attribute == "" || req.Attribute == "charging" {
		fields["charging"] = st.Charging
	}
	return okReply(fields)
}

func okReply(fields map[string]any) protocol.PluginReply {
	return protocol.PluginReply{Result: int(protocol.ResultOK), Fields: fields}
}

func errorReply(code protocol.ErrorCode, message string) protocol.PluginReply {
	if message == "" {
		message = protocol.DefaultMessage(code)
	}
	return protocol.PluginReply{Result: int(code), ErrorMessage: message}
}

// sysfsBattery reads the first supply of type Battery under dir.
func sysfsBattery(dir string) batterySource {
	return func() (batteryStatus, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return batteryStatus{}, fmt.Errorf("read %s: %w", dir, err)
		}
		for _, e := range entries {
			supply := filepath.Join(dir, e.Name())
			if readTrimmed(filepath.Join(supply, "type")) != "Battery" {
				continue
			}
			capacity, err := strconv.Atoi(readTrimmed(filepath.Join(supply, "capacity")))
			if err != nil {
				return batteryStatus{}, fmt.Errorf("%s: bad capacity: %w", e.Name(), err)
			}
			status := readTrimmed(filepath.Join(supply, "status"))
			return batteryStatus{
				Level:    float64(capacity) / 100,
				Charging: status == "Charging" || status == "Full",
			}, nil
		}
		return batteryStatus{}, errNoBattery
	}
}

func readTrimmed(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
