package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/http/endpoint/buffer"
	"github.com/txix-open/isp-kit/log"
	"trip-quota-service/request"
)

type scSource interface {
	StatusCode() int
}

type writerWrapper struct {
	http.ResponseWriter

	statusCode int
}

func (w *writerWrapper) StatusCode() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *writerWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func Logger(logger log.Logger, enableRequestLogging bool, enableBodyLogging bool) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			if !enableRequestLogging {
				return next.Handle(ctx)
			}

			r := ctx.Request()

			var scSrc scSource
			var buf *buffer.Buffer
			if enableBodyLogging {
				buf = buffer.Acquire(ctx.ResponseWriter())
				defer buffer.Release(buf)

				err := buf.ReadRequestBody(r.Body)
				if err != nil {
					return errors.WithMessage(err, "logger: read request body for logging")
				}
				err = r.Body.Close()
				if err != nil {
					return errors.WithMessage(err, "logger: close request reader")
				}
				r.Body = io.NopCloser(bytes.NewBuffer(buf.RequestBody()))

				scSrc = buf
				ctx.SetResponseWriter(buf)
			} else {
				writer := &writerWrapper{ResponseWriter: ctx.ResponseWriter()}
				scSrc = writer
				ctx.SetResponseWriter(writer)
			}

			err := next.Handle(ctx)

			identity, _ := ctx.GetIdentity()
			fields := []log.Field{
				log.String("httpMethod", r.Method),
				log.String("remoteAddr", r.RemoteAddr),
				log.String("xForwardedFor", r.Header.Get(forwardedForHeader)),
				log.Int("statusCode", scSrc.StatusCode()),
				log.String("endpoint", ctx.Endpoint()),
				log.String("userId", identity.UserId),
				log.String("rateIdentifier", ctx.RateIdentifier()),
			}
			if enableBodyLogging {
				fields = append(fields,
					log.ByteString("request", buf.RequestBody()),
					log.ByteString("response", buf.ResponseBody()),
				)
			}
			logger.Debug(ctx.Context(), "log request", fields...)

			return err
		})
	}
}
