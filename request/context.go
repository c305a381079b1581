package request

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"trip-quota-service/domain"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Identity of an authenticated caller, resolved upstream and passed
// as trusted headers. Guests have no identity, only a fingerprint.
type Identity struct {
	UserId string
	Tier   domain.Tier
}

type Context struct {
	request        *http.Request
	responseWriter http.ResponseWriter

	endpoint string

	authenticated bool
	identity      *Identity

	rateIdentifier string
	clientAddress  string
}

func NewContext(request *http.Request, response http.ResponseWriter, endpoint string) *Context {
	return &Context{
		request:        request,
		responseWriter: response,
		endpoint:       endpoint,
	}
}

func (c *Context) Request() *http.Request {
	return c.request
}

func (c *Context) ResponseWriter() http.ResponseWriter {
	return c.responseWriter
}

func (c *Context) SetResponseWriter(writer http.ResponseWriter) {
	c.responseWriter = writer
}

func (c *Context) Endpoint() string {
	return c.endpoint
}

func (c *Context) Authenticate(identity Identity) {
	c.authenticated = true
	c.identity = &identity
}

func (c *Context) GetIdentity() (Identity, error) {
	if !c.authenticated {
		return Identity{}, ErrNotAuthenticated
	}
	return *c.identity, nil
}

func (c *Context) SetRateIdentifier(identifier string) {
	c.rateIdentifier = identifier
}

func (c *Context) RateIdentifier() string {
	return c.rateIdentifier
}

func (c *Context) SetClientAddress(address string) {
	c.clientAddress = address
}

// ClientAddress is the first forwarded-for entry or the real-ip header,
// empty when neither is set. Treated as an opaque string.
func (c *Context) ClientAddress() string {
	return c.clientAddress
}

func (c *Context) Context() context.Context {
	return c.request.Context()
}

func (c *Context) SetContext(ctx context.Context) {
	c.request = c.request.WithContext(ctx)
}
