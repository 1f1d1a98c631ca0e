package profile

import (
	"net/http"

	"github.com/mattjoyce/dconnect-gw/internal/protocol"
)

// AvailabilityName is the profile name of the availability module.
const AvailabilityName = "availability"

// Availability answers GET /gotapi/availability so clients can probe the gateway.
type Availability struct {
	product string
}

// NewAvailability creates the module; product is echoed back as "name".
func NewAvailability(product string) *Availability {
	return &Availability{product: product}
}

func (a *Availability) Name() string { return AvailabilityName }

func (a *Availability) Descriptors() []Descriptor {
	return []Descriptor{
		{
			Method:    http.MethodGet,
			Profile:   AvailabilityName,
			OnRequest: a.onGet,
		},
	}
}

func (a *Availability) onGet(_ *protocol.Request, resp *protocol.Response) error {
	resp.Put("name", a.product)
	resp.OK()
	return nil
}
