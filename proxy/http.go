package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/requestid"
	"trip-quota-service/httperrors"
	"trip-quota-service/request"
)

const (
	requestIdHeader = "x-request-id"
)

type HostManager interface {
	Next() (string, error)
}

// Http forwards AI requests to the model backend once the rate limiter has
// let them through. The backend receives the caller's original headers plus
// the request id.
type Http struct {
	hostManager HostManager
	timeout     time.Duration
}

func NewHttp(hostManager HostManager, timeout time.Duration) Http {
	return Http{
		hostManager: hostManager,
		timeout:     timeout,
	}
}

func (p Http) Handle(ctx *request.Context) error {
	host, err := p.hostManager.Next()
	if err != nil {
		return errors.WithMessage(err, "http: next host")
	}

	rawUrl := fmt.Sprintf("http://%s", host)
	target, err := url.Parse(rawUrl)
	if err != nil {
		return errors.WithMessage(err, "http: parse url")
	}

	req := ctx.Request()
	req.URL.Path = ctx.Endpoint()
	req.Header.Set(requestIdHeader, requestid.FromContext(ctx.Context()))

	reverseProxy := httputil.NewSingleHostReverseProxy(target)
	var resultError error
	reverseProxy.ErrorHandler = func(writer http.ResponseWriter, request *http.Request, err error) {
		resultError = httperrors.New(
			http.StatusServiceUnavailable,
			"upstream is not available",
			errors.WithMessagef(err, "http proxy to %s", host),
		)
	}

	proxyCtx, cancel := context.WithTimeout(req.Context(), p.timeout)
	defer cancel()
	req = req.WithContext(proxyCtx)
	reverseProxy.ServeHTTP(ctx.ResponseWriter(), req)

	return resultError
}
