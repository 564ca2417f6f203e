package query

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/manta-network/stakingx/app/query/controller"
	"github.com/manta-network/stakingx/app/query/types"
	"github.com/manta-network/stakingx/pkg/utils"
)

// NewServer builds the HTTP server of the query API and stores it on the app.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3001")

	app.Server = &http.Server{Addr: addr, Handler: controller.WithCORS(router)}
	app.Logger.Info("Starting server", zap.String("addr", addr), zap.Int("networks", len(app.Networks)))

	return nil
}
