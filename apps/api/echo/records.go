package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/records"
)

var errInvalidBody = &core.BackendError{
	Status: http.StatusBadRequest, Code: "invalid_body", Message: "request body must be a JSON object or an array of objects",
}

type recordApi struct {
	svc *records.Service
}

func registerRecordAPI(g *echo.Group, svc *records.Service) {
	api := recordApi{svc: svc}

	tg := g.Group("/:table")
	tg.GET("", api.query)
	tg.POST("", api.create)
	tg.PATCH("", api.update)
	tg.DELETE("", api.destroy)
}

// Handlers

func (api *recordApi) query(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var tq TableQuery
	if err = tq.Bind(ctx); err != nil {
		return err
	}

	rows, err := api.svc.Select(ctx.Request().Context(), usrID, ctx.Param("table"), tq.Query)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rows)
}

// create inserts the body rows; with resolution=merge-duplicates rows sharing an id are merged instead.
func (api *recordApi) create(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var pref Prefer
	pref.Bind(ctx)
	rows, err := bindRows(ctx)
	if err != nil {
		return err
	}

	saved := make([]core.Row, 0, len(rows))
	for _, row := range rows {
		var r core.Row
		if pref.MergeDuplicates {
			r, err = api.svc.Upsert(ctx.Request().Context(), usrID, ctx.Param("table"), row)
		} else {
			r, err = api.svc.Insert(ctx.Request().Context(), usrID, ctx.Param("table"), row)
		}
		if err != nil {
			return err
		}
		saved = append(saved, r)
	}

	if !pref.Representation {
		return ctx.NoContent(http.StatusCreated)
	}
	return ctx.JSON(http.StatusCreated, saved)
}

func (api *recordApi) update(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var tq TableQuery
	if err = tq.Bind(ctx); err != nil {
		return err
	}
	var pref Prefer
	pref.Bind(ctx)
	rows, err := bindRows(ctx)
	if err != nil {
		return err
	}
	if len(rows) != 1 {
		return errInvalidBody
	}

	updated, err := api.svc.Update(ctx.Request().Context(), usrID, ctx.Param("table"), tq.Filter, rows[0])
	if err != nil {
		return err
	}
	if !pref.Representation {
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.JSON(http.StatusOK, updated)
}

func (api *recordApi) destroy(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var tq TableQuery
	if err = tq.Bind(ctx); err != nil {
		return err
	}
	var pref Prefer
	pref.Bind(ctx)

	deleted, err := api.svc.Delete(ctx.Request().Context(), usrID, ctx.Param("table"), tq.Filter)
	if err != nil {
		return err
	}
	if !pref.Representation {
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.JSON(http.StatusOK, deleted)
}

func contextUserID(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// bindRows decodes a JSON object or an array of objects.
func bindRows(ctx echo.Context) ([]core.Row, error) {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading request body")
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errInvalidBody
	}

	if body[0] == '[' {
		var rows []core.Row
		if err = json.Unmarshal(body, &rows); err != nil {
			return nil, errInvalidBody
		}
		for _, r := range rows {
			if r == nil {
				return nil, errInvalidBody
			}
		}
		return rows, nil
	}
	var row core.Row
	if err = json.Unmarshal(body, &row); err != nil || row == nil {
		return nil, errInvalidBody
	}
	return []core.Row{row}, nil
}
