package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// EncodePluginRequest serializes a PluginRequest to JSON and writes it to w.
func EncodePluginRequest(w io.Writer, req *PluginRequest) error {
	if req.Protocol != PluginProtocolVersion {
		return fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}

	if err := json.NewEncoder(w).Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return nil
}

// DecodePluginReply reads and strictly deserializes a PluginReply from r.
// Unknown fields are rejected.
func DecodePluginReply(r io.Reader) (*PluginReply, error) {
	var reply PluginReply

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	if err := validateReply(&reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// DecodePluginReplyLenient accepts unknown fields and returns the raw bytes so
// callers can log what the plugin actually produced.
func DecodePluginReplyLenient(r io.Reader) (*PluginReply, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read reply: %w", err)
	}
	reply, err := UnmarshalPluginReply(data)
	return reply, data, err
}

// UnmarshalPluginReply is the lenient decoder for an in-memory payload.
func UnmarshalPluginReply(data []byte) (*PluginReply, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("plugin produced no output")
	}

	var reply PluginReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("plugin output is not valid JSON: %w", err)
	}
	if err := validateReply(&reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func validateReply(reply *PluginReply) error {
	if reply.Result < 0 {
		return fmt.Errorf("invalid result value: %d", reply.Result)
	}
	return nil
}
