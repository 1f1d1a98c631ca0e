package protocol

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_SendDeliversStagedFields(t *testing.T) {
	var got Envelope
	resp := NewResponse(func(env Envelope) { got = env })

	resp.Put("recorders", []string{"cam"})
	resp.OK()
	require.True(t, resp.Send())

	assert.Equal(t, 0, got.Result())
	assert.Equal(t, []string{"cam"}, got["recorders"])
	_, hasMsg := got[FieldErrorMessage]
	assert.False(t, hasMsg, "success envelope must not carry errorMessage")
}

func TestResponse_UnsetStatusIsSuccess(t *testing.T) {
	var got Envelope
	resp := NewResponse(func(env Envelope) { got = env })
	resp.Send()
	assert.Equal(t, 0, got.Result())
}

func TestResponse_ErrorOverridesOK(t *testing.T) {
	var got Envelope
	resp := NewResponse(func(env Envelope) { got = env })

	resp.OK()
	resp.Error(ErrNotFoundService, "Service ID is invalid.")
	resp.Send()

	assert.Equal(t, 6, got.Result())
	assert.Equal(t, "Service ID is invalid.", got.ErrorMessage())
}

func TestResponse_ErrorWithoutMessageUsesDefault(t *testing.T) {
	var got Envelope
	resp := NewResponse(func(env Envelope) { got = env })

	resp.Error(ErrEmptyServiceID)
	resp.Send()

	assert.Equal(t, 5, got.Result())
	assert.Equal(t, DefaultMessage(ErrEmptyServiceID), got.ErrorMessage())
}

func TestResponse_OKAfterErrorClearsMessage(t *testing.T) {
	var got Envelope
	resp := NewResponse(func(env Envelope) { got = env })

	resp.Error(ErrUnknown, "boom")
	resp.OK()
	resp.Send()

	assert.Equal(t, 0, got.Result())
	assert.Empty(t, got.ErrorMessage())
}

func TestResponse_SendIsIdempotent(t *testing.T) {
	var deliveries atomic.Int32
	resp := NewResponse(func(Envelope) { deliveries.Add(1) })

	assert.True(t, resp.Send())
	assert.False(t, resp.Send())
	assert.False(t, resp.SendError(ErrTimeout))
	assert.Equal(t, int32(1), deliveries.Load())
	assert.True(t, resp.Sent())
}

func TestResponse_MutationsAfterSendAreIgnored(t *testing.T) {
	var got Envelope
	resp := NewResponse(func(env Envelope) { got = env })

	resp.Put("a", 1)
	resp.Send()
	resp.Put("b", 2)
	resp.Error(ErrTimeout)

	assert.Equal(t, ResultOK, resp.Result())
	assert.NotContains(t, got, "b")
	assert.Equal(t, 0, got.Result())
}

func TestResponse_SendErrorDoesNotOverwriteDelivered(t *testing.T) {
	var got Envelope
	resp := NewResponse(func(env Envelope) { got = env })

	resp.Put("value", "x")
	resp.OK()
	resp.Send()

	assert.False(t, resp.SendError(ErrTimeout))
	assert.Equal(t, 0, got.Result())
	assert.Equal(t, ResultOK, resp.Result())
}

func TestResponse_ConcurrentSendsDeliverOnce(t *testing.T) {
	for range 50 {
		var deliveries atomic.Int32
		resp := NewResponse(func(Envelope) { deliveries.Add(1) })

		var wg sync.WaitGroup
		var winners atomic.Int32
		for i := range 16 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var ok bool
				if i%2 == 0 {
					ok = resp.Send()
				} else {
					ok = resp.SendError(ErrTimeout)
				}
				if ok {
					winners.Add(1)
				}
			}(i)
		}
		wg.Wait()

		require.Equal(t, int32(1), deliveries.Load())
		require.Equal(t, int32(1), winners.Load())
	}
}

func TestRequest_PathAndParams(t *testing.T) {
	req := &Request{API: APINamespace, Profile: "mediastream_recording", Attribute: "mediarecorder"}
	assert.Equal(t, "/gotapi/mediastream_recording/mediarecorder", req.Path())

	req.Interface = "options"
	assert.Equal(t, "/gotapi/mediastream_recording/options/mediarecorder", req.Path())

	_, ok := req.Param(ParamServiceID)
	assert.False(t, ok)

	req.Params = Params{"serviceId": "old", "target": "0"}
	req.Params.Merge(map[string]string{"serviceId": "cam1.plugA"})
	v, ok := req.Param(ParamServiceID)
	assert.True(t, ok)
	assert.Equal(t, "cam1.plugA", v)
	assert.Equal(t, "0", req.Params["target"])
}

func TestDefaultMessage_UnknownCode(t *testing.T) {
	assert.Equal(t, "Error 42.", DefaultMessage(ErrorCode(42)))
	assert.Equal(t, "Response timeout.", DefaultMessage(ErrTimeout))
}
