package protocol

import "time"

// PluginProtocolVersion is the version of the JSON exchange with out-of-process plugins.
const PluginProtocolVersion = 1

// PluginRequest is the envelope sent to an out-of-process plugin (stdin or NATS).
type PluginRequest struct {
	Protocol   int               `json:"protocol"`
	RequestID  string            `json:"request_id"`
	Method     string            `json:"method"`
	Profile    string            `json:"profile"`
	Interface  string            `json:"interface,omitempty"`
	Attribute  string            `json:"attribute,omitempty"`
	ServiceID  string            `json:"service_id"`
	Params     map[string]string `json:"params"`
	DeadlineAt time.Time         `json:"deadline_at"`
}

// PluginReply is the envelope an out-of-process plugin answers with.
type PluginReply struct {
	Result       int            `json:"result"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Fields       map[string]any `json:"fields,omitempty"`
	Logs         []LogEntry     `json:"logs,omitempty"`
}

// LogEntry represents a log message from a plugin.
type LogEntry struct {
	Level   string `json:"level"` // info | warn | error | debug
	Message string `json:"message"`
}

// NewPluginRequest builds the wire form of req.
func NewPluginRequest(id string, req *Request, deadline time.Time) *PluginRequest {
	params := make(map[string]string, len(req.Params))
	for k, v := range req.Params {
		params[k] = v
	}
	return &PluginRequest{
		Protocol:   PluginProtocolVersion,
		RequestID:  id,
		Method:     req.Method,
		Profile:    req.Profile,
		Interface:  req.Interface,
		Attribute:  req.Attribute,
		ServiceID:  req.ServiceID,
		Params:     params,
		DeadlineAt: deadline.UTC(),
	}
}

// Apply stages the reply's fields and status on resp. It does not send.
func (r *PluginReply) Apply(resp *Response) {
	for k, v := range r.Fields {
		resp.Put(k, v)
	}
	if r.Result == int(ResultOK) {
		resp.OK()
		return
	}
	resp.Error(ErrorCode(r.Result), r.ErrorMessage)
}
