package echoapi

import (
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/roster/core"
	"github.com/trezcool/roster/core/roster"
)

const (
	orderingParam     = "ordering"
	formatParam       = "format"
	requireEmailParam = "require_email"
	fileField         = "file"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// Upload is an import file sent either as the multipart "file" field or as the raw request body.
type Upload struct {
	Filename     string
	Format       roster.Format
	RequireEmail *bool
	body         io.Reader
	closer       io.Closer
}

func (up *Upload) Bind(ctx echo.Context) error {
	format, err := roster.ParseFormat(ctx.QueryParam(formatParam), "")
	if err != nil {
		return err
	}
	up.Format = format

	if v := ctx.QueryParam(requireEmailParam); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: requireEmailParam, Error: "must be a boolean"})
		}
		up.RequireEmail = &b
	}

	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := ctx.FormFile(fileField)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: fileField, Error: "this field is required"})
		}
		return up.open(fh)
	}
	up.body = ctx.Request().Body
	return nil
}

func (up *Upload) open(fh *multipart.FileHeader) error {
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(roster.ErrUnreadableFile, err.Error())
	}
	up.Filename = fh.Filename
	up.body = f
	up.closer = f
	return nil
}

// Read hands the upload to the roster service, which enforces the size limit.
func (up *Upload) Read(svc *roster.Service) (roster.Input, error) {
	if up.closer != nil {
		defer func() { _ = up.closer.Close() }()
	}
	in, err := svc.ReadInput(up.body, up.Filename, up.Format)
	if err != nil {
		return roster.Input{}, err
	}
	in.RequireEmail = up.RequireEmail
	return in, nil
}

// bodyLimit formats n bytes for middleware.BodyLimit, rounded up to the KB.
func bodyLimit(n int64) string {
	return fmt.Sprintf("%dK", (n+1023)/1024)
}
