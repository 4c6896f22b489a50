package http

import (
	"net/http"
	"os"
	"sync"

	"github.com/awantoch/edgebridge/config"
	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/event"
	"github.com/awantoch/edgebridge/utils"
)

var (
	initServerless sync.Once
	initErr        error
	serverlessMux  *http.ServeMux
	serverlessBus  event.EventBus
	muxMutex       sync.RWMutex
)

// ServerlessHandler is the Vercel function for edgebridge.
func ServerlessHandler(w http.ResponseWriter, r *http.Request) {
	// CORS
	w.Header().Set(constants.HeaderAllowOrigin, constants.CORSAllowOrigin)
	w.Header().Set(constants.HeaderAllowMethods, constants.CORSAllowMethods)
	w.Header().Set(constants.HeaderAllowHeaders, constants.CORSAllowHeaders)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Initialize once
	initServerless.Do(func() {
		var cfg *config.Config
		cfg, initErr = config.Load(os.Getenv(constants.EnvConfigPath))
		if initErr != nil {
			utils.Error("serverless init failed: %v", initErr)
			return
		}
		var bus event.EventBus
		bus, initErr = event.NewEventBusFromConfig(cfg.Events)
		if initErr != nil {
			utils.Error("serverless event bus failed: %v", initErr)
			return
		}
		muxMutex.Lock()
		serverlessBus = bus
		serverlessMux = NewMux("serverless", cfg, bus)
		muxMutex.Unlock()
	})

	if initErr != nil {
		utils.WriteHTTPError(w, constants.ResponseInternalError, http.StatusInternalServerError)
		return
	}

	muxMutex.RLock()
	mux := serverlessMux
	muxMutex.RUnlock()

	if mux == nil {
		utils.WriteHTTPError(w, constants.ResponseInternalError, http.StatusInternalServerError)
		return
	}

	mux.ServeHTTP(w, r)
}

// ResetServerlessMux resets the serverless mux (for testing)
func ResetServerlessMux() {
	muxMutex.Lock()
	defer muxMutex.Unlock()

	if serverlessBus != nil {
		_ = serverlessBus.Close()
	}
	initServerless = sync.Once{}
	initErr = nil
	serverlessMux = nil
	serverlessBus = nil
}
