package protocol

import "sync"

// Envelope field names.
const (
	FieldResult       = "result"
	FieldErrorMessage = "errorMessage"
	FieldProduct      = "product"
	FieldVersion      = "version"
)

// Envelope is the result object handed to the transport. It is a snapshot:
// mutating it does not affect the Response it came from.
type Envelope map[string]any

// Result returns the numeric result code, or -1 if the field is missing.
func (e Envelope) Result() int {
	switch v := e[FieldResult].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return -1
	}
}

// ErrorMessage returns the errorMessage field, if any.
func (e Envelope) ErrorMessage() string {
	msg, _ := e[FieldErrorMessage].(string)
	return msg
}

// Sink receives the envelope of a sent response.
type Sink func(Envelope)

// Response accumulates the result of one request and delivers it exactly once.
//
// All methods are safe for concurrent use. Once the response has been sent,
// Put, OK and Error are no-ops and Send returns false.
type Response struct {
	mu      sync.Mutex
	fields  map[string]any
	code    ErrorCode
	message string
	sent    bool
	deliver Sink
}

// NewResponse creates a pending response that hands its envelope to deliver
// on the first Send.
func NewResponse(deliver Sink) *Response {
	return &Response{
		fields:  make(map[string]any),
		deliver: deliver,
	}
}

// Put stages a result field.
func (r *Response) Put(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent {
		return
	}
	r.fields[key] = value
}

// OK marks the response as successful. Staged fields are kept.
func (r *Response) OK() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent {
		return
	}
	r.code = ResultOK
	r.message = ""
}

// Error marks the response as failed. Without a message (or with an empty one)
// the default text for code is used.
func (r *Response) Error(code ErrorCode, message ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent {
		return
	}
	r.setErrorLocked(code, message...)
}

// Result reports the current status code.
func (r *Response) Result() ErrorCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

// Sent reports whether the response has been delivered.
func (r *Response) Sent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

// Send delivers the response. Only the first call, from any goroutine, reaches
// the sink; it returns true. Every later call returns false.
func (r *Response) Send() bool {
	return r.finish(nil)
}

// SendError sets an error status and sends in one step. If the response was
// already sent, nothing changes.
func (r *Response) SendError(code ErrorCode, message ...string) bool {
	return r.finish(func() { r.setErrorLocked(code, message...) })
}

func (r *Response) finish(mutate func()) bool {
	r.mu.Lock()
	if r.sent {
		r.mu.Unlock()
		return false
	}
	if mutate != nil {
		mutate()
	}
	r.sent = true
	env := r.envelopeLocked()
	deliver := r.deliver
	r.mu.Unlock()

	if deliver != nil {
		deliver(env)
	}
	return true
}

func (r *Response) setErrorLocked(code ErrorCode, message ...string) {
	r.code = code
	r.message = ""
	if len(message) > 0 {
		r.message = message[0]
	}
	if r.message == "" {
		r.message = DefaultMessage(code)
	}
}

func (r *Response) envelopeLocked() Envelope {
	env := make(Envelope, len(r.fields)+2)
	for k, v := range r.fields {
		env[k] = v
	}
	env[FieldResult] = int(r.code)
	if r.code != ResultOK {
		env[FieldErrorMessage] = r.message
	} else {
		delete(env, FieldErrorMessage)
	}
	return env
}
