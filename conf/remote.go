package conf

import (
	"reflect"
	"time"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
	"github.com/txix-open/isp-kit/rc/schema"
	"github.com/txix-open/jsonschema"
)

const (
	defaultRateLimitWindowMs    = 60_000
	defaultRateLimitMaxRequests = 10
	defaultGuestTripTtlInHours  = 12
)

func init() {
	schema.CustomGenerators.Register("logLevel", func(field reflect.StructField, t *jsonschema.Schema) {
		t.Type = "string"
		t.Enum = []interface{}{"debug", "info", "error", "fatal"}
	})
}

type Remote struct {
	Redis       Redis       `schema:"Redis settings,single source of truth for counters and the guest trip ledger"`
	Http        Http        `schema:"HTTP settings"`
	Logging     Logging     `schema:"Logging settings"`
	AiRateLimit AiRateLimit `schema:"AI request rate limit,fixed window anchored at the first request of each identifier"`
	GuestTrips  GuestTrips  `schema:"Guest trip ledger settings"`
	AiBackend   AiBackend   `schema:"AI backend upstream"`
	Tiers       []TierLimit `schema:"Tier quota overrides,replaces the built-in tier table when not empty"`
}

type Http struct {
	MaxRequestBodySizeInMb int64 `valid:"required" schema:"Max request body size,in megabytes"`
	ProxyTimeoutInSec      int   `valid:"required" schema:"AI proxy timeout,in seconds"`
}

type Logging struct {
	LogLevel         log.Level `schemaGen:"logLevel" schema:"Log level,requests are logged on debug level"`
	RequestLogEnable bool      `schema:"Enable request logging"`
	BodyLogEnable    bool      `schema:"Enable request and response body logging,request logging must be enabled"`
}

type AiRateLimit struct {
	WindowMs    int64 `schema:"Window length,in milliseconds, default: 60000"`
	MaxRequests int   `schema:"Max requests per window,default: 10"`
}

type GuestTrips struct {
	TripTtlInHours int    `schema:"Reserved trip time to live,hours until an uncompleted reservation expires, default: 12"`
	IpHashSalt     string `valid:"required" schema:"IP hash salt,client addresses are stored as salted hashes only"`
}

type AiBackend struct {
	Addresses []string `valid:"required" schema:"Upstream addresses,host:port of the AI backend instances"`
}

type TierLimit struct {
	Tier   string `valid:"required" schema:"Tier name"`
	Limit  int    `valid:"required" schema:"Max trips per period"`
	Period string `valid:"required,in(daily|monthly|lifetime)" schema:"Period kind"`
}

type Redis struct {
	Address  string         `schema:"Address,required unless sentinel is specified"`
	Username string         `schema:"Username"`
	Password string         `schema:"Password"`
	Sentinel *RedisSentinel `schema:"Sentinel settings,required unless address is specified"`
}

type RedisSentinel struct {
	Addresses  []string `valid:"required" schema:"Cluster node addresses"`
	MasterName string   `valid:"required" schema:"Master name"`
	Username   string   `schema:"Sentinel username"`
	Password   string   `schema:"Sentinel password"`
}

func (r Remote) Validate() error {
	if r.Redis.Sentinel == nil && r.Redis.Address == "" {
		return errors.New("invalid redis config. sentinel or address are required")
	}
	return nil
}

func (c AiRateLimit) Window() time.Duration {
	if c.WindowMs <= 0 {
		return defaultRateLimitWindowMs * time.Millisecond
	}
	return time.Duration(c.WindowMs) * time.Millisecond
}

func (c AiRateLimit) MaxCount() int {
	if c.MaxRequests <= 0 {
		return defaultRateLimitMaxRequests
	}
	return c.MaxRequests
}

func (c GuestTrips) TripTtl() time.Duration {
	if c.TripTtlInHours <= 0 {
		return defaultGuestTripTtlInHours * time.Hour
	}
	return time.Duration(c.TripTtlInHours) * time.Hour
}
