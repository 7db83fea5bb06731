package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/roster/core/roster"
)

type rosterApi struct {
	svc      *roster.Service
	validate *validator.Validate
}

func registerRosterAPI(g *echo.Group, svc *roster.Service, validate *validator.Validate) {
	api := rosterApi{
		svc:      svc,
		validate: validate,
	}

	g.GET("/roster/template", api.template)

	sg := g.Group("/schools/:school")
	sg.POST("/roster/preview", api.preview)
	sg.POST("/students", api.addStudent)

	cg := sg.Group("/classes/:class")
	cg.POST("/roster/import", api.importRoster)
	cg.GET("/students", api.classStudents)

	pg := g.Group("/users/:user/preferences")
	pg.GET("/roster-instructions", api.instructions)
	pg.PUT("/roster-instructions", api.setInstructionsSeen)
}

// Handlers

func (api *rosterApi) template(ctx echo.Context) error {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+roster.TemplateFilename+`"`)
	return ctx.Blob(http.StatusOK, "text/csv; charset=utf-8", roster.Template())
}

func (api *rosterApi) readUpload(ctx echo.Context) (roster.Input, error) {
	var up Upload
	if err := up.Bind(ctx); err != nil {
		return roster.Input{}, err
	}
	return up.Read(api.svc)
}

func (api *rosterApi) preview(ctx echo.Context) error {
	in, err := api.readUpload(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Preview(in)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *rosterApi) importRoster(ctx echo.Context) error {
	in, err := api.readUpload(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Import(ctx.Request().Context(), ctx.Param("school"), ctx.Param("class"), in)
	if err != nil {
		return err
	}
	// per-record failures are part of the report
	return ctx.JSON(http.StatusOK, res)
}

func (api *rosterApi) addStudent(ctx echo.Context) error {
	var data roster.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	schoolID := ctx.Param("school")
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc, schoolID); err != nil {
		return err
	}
	st, err := api.svc.AddStudent(ctx.Request().Context(), schoolID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *rosterApi) classStudents(ctx echo.Context) error {
	var ord Ordering
	ord.Bind(ctx)

	students, err := api.svc.ClassStudents(ctx.Request().Context(), ctx.Param("school"), ctx.Param("class"), ord.Orderings)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *rosterApi) instructions(ctx echo.Context) error {
	ins, err := api.svc.Instructions(ctx.Request().Context(), ctx.Param("user"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ins)
}

type instructionsSeenData struct {
	Seen *bool `json:"seen" validate:"required"`
}

func (api *rosterApi) setInstructionsSeen(ctx echo.Context) error {
	var data instructionsSeenData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to instructionsSeenData")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	userID := ctx.Param("user")
	if err := api.svc.SetInstructionsSeen(ctx.Request().Context(), userID, *data.Seen); err != nil {
		return err
	}
	ins, err := api.svc.Instructions(ctx.Request().Context(), userID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ins)
}
