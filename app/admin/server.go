package admin

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/manta-network/stakingx/app/admin/controller"
	"github.com/manta-network/stakingx/app/admin/types"
	"github.com/manta-network/stakingx/pkg/utils"
)

// NewServer builds the HTTP server of the admin API and stores it on the app.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3000")

	app.Server = &http.Server{
		Addr:              addr,
		Handler:           controller.WithCORS(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.Logger.Info("Starting server", zap.String("addr", addr), zap.Strings("networks", app.Networks))

	return nil
}
