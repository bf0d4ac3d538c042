package persistence

import (
	"fmt"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts a live SQL debugging console for ctx's database
// under mux, grounded on the teacher's internal/db.DB.AttachAdminRoutes.
func (ctx *Context) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		return wrapErr("attach_admin_routes", err)
	}
	tsql.SetDB(fmt.Sprintf("sqlite://%s", ctx.path), ctx.db, &tailsql.DBOptions{
		Label: fmt.Sprintf("MeasureIt dataset (%s/%s)", ctx.experiment, ctx.sample),
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	return nil
}
