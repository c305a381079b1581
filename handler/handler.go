package handler

import (
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/json"
	"trip-quota-service/httperrors"
	"trip-quota-service/request"
)

func readJson(ctx *request.Context, value any) error {
	data, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return httperrors.New(
			http.StatusBadRequest,
			"unable to read request body",
			errors.WithMessage(err, "read request body"),
		)
	}
	err = json.Unmarshal(data, value)
	if err != nil {
		return httperrors.New(
			http.StatusBadRequest,
			"invalid json in request body",
			errors.WithMessage(err, "unmarshal request body"),
		)
	}
	return nil
}

func writeJson(ctx *request.Context, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.WithMessage(err, "marshal response body")
	}

	writer := ctx.ResponseWriter()
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, err = writer.Write(data)
	if err != nil {
		return errors.WithMessage(err, "write response body")
	}
	return nil
}
