// Package queryapi exposes a read-only HTTP surface over a running
// engine.Engine, grounded on the teacher's httptreemux-based web layer
// conventions (app/services/node) generalized to this chain's queries.
package queryapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dimfeld/httptreemux/v5"
	"go.uber.org/zap"

	"github.com/deltachain/core/chain/model"
)

// Engine is the subset of chain/engine.Engine this package depends on.
type Engine interface {
	AccountByName(name string) (model.Account, bool, error)
	AccountByAddress(address string) (model.Account, bool, error)
	AssetBySymbol(symbol string) (model.Asset, bool, error)
	OrderByID(id string) (model.Order, bool, error)
	CalculateSupply(asset model.AssetID) (uint64, error)
	CalculateDebt(asset model.AssetID, includeInterest bool) (uint64, error)
	GenerateSnapshot(asset model.AssetID) (map[model.AccountID]uint64, error)
	ExportForkGraph(start, end uint64) (string, error)
	Head() model.BlockID
}

// Mux builds the read-only query router.
func Mux(eng Engine, log *zap.SugaredLogger) *httptreemux.ContextMux {
	mux := httptreemux.NewContextMux()

	mux.GET("/v1/head", withLog(log, func(w http.ResponseWriter, r *http.Request) error {
		return respond(w, map[string]model.BlockID{"head": eng.Head()})
	}))

	mux.GET("/v1/accounts/name/:name", withLog(log, func(w http.ResponseWriter, r *http.Request) error {
		params := httptreemux.ContextParams(r.Context())
		acct, found, err := eng.AccountByName(params["name"])
		if err != nil {
			return err
		}
		if !found {
			return notFound(w, "account not found")
		}
		return respond(w, acct)
	}))

	mux.GET("/v1/accounts/address/:address", withLog(log, func(w http.ResponseWriter, r *http.Request) error {
		params := httptreemux.ContextParams(r.Context())
		acct, found, err := eng.AccountByAddress(params["address"])
		if err != nil {
			return err
		}
		if !found {
			return notFound(w, "account not found")
		}
		return respond(w, acct)
	}))

	mux.GET("/v1/assets/symbol/:symbol", withLog(log, func(w http.ResponseWriter, r *http.Request) error {
		params := httptreemux.ContextParams(r.Context())
		asst, found, err := eng.AssetBySymbol(params["symbol"])
		if err != nil {
			return err
		}
		if !found {
			return notFound(w, "asset not found")
		}
		return respond(w, asst)
	}))

	mux.GET("/v1/assets/:id/supply", withLog(log, func(w http.ResponseWriter, r *http.Request) error {
		params := httptreemux.ContextParams(r.Context())
		id, err := parseAssetID(params["id"])
		if err != nil {
			return badRequest(w, err.Error())
		}
		supply, err := eng.CalculateSupply(id)
		if err != nil {
			return err
		}
		return respond(w, map[string]uint64{"supply": supply})
	}))

	mux.GET("/v1/assets/:id/debt", withLog(log, func(w http.ResponseWriter, r *http.Request) error {
		params := httptreemux.ContextParams(r.Context())
		id, err := parseAssetID(params["id"])
		if err != nil {
			return badRequest(w, err.Error())
		}
		includeInterest := r.URL.Query().Get("interest") == "true"
		debt, err := eng.CalculateDebt(id, includeInterest)
		if err != nil {
			return err
		}
		return respond(w, map[string]uint64{"debt": debt})
	}))

	mux.GET("/v1/assets/:id/snapshot", withLog(log, func(w http.ResponseWriter, r *http.Request) error {
		params := httptreemux.ContextParams(r.Context())
		id, err := parseAssetID(params["id"])
		if err != nil {
			return badRequest(w, err.Error())
		}
		snap, err := eng.GenerateSnapshot(id)
		if err != nil {
			return err
		}
		return respond(w, snap)
	}))

	mux.GET("/v1/orders/:id", withLog(log, func(w http.ResponseWriter, r *http.Request) error {
		params := httptreemux.ContextParams(r.Context())
		order, found, err := eng.OrderByID(params["id"])
		if err != nil {
			return err
		}
		if !found {
			return notFound(w, "order not found")
		}
		return respond(w, order)
	}))

	mux.GET("/v1/forks", withLog(log, func(w http.ResponseWriter, r *http.Request) error {
		start, end, err := parseRange(r)
		if err != nil {
			return badRequest(w, err.Error())
		}
		dot, err := eng.ExportForkGraph(start, end)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		_, err = w.Write([]byte(dot))
		return err
	}))

	return mux
}

func parseAssetID(s string) (model.AssetID, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return model.AssetID(n), nil
}

func parseRange(r *http.Request) (uint64, uint64, error) {
	start, err := strconv.ParseUint(r.URL.Query().Get("start"), 10, 64)
	if err != nil {
		start = 0
	}
	end, err := strconv.ParseUint(r.URL.Query().Get("end"), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func withLog(log *zap.SugaredLogger, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			log.Errorw("query request failed", "path", r.URL.Path, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func respond(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, msg string) error {
	http.Error(w, msg, http.StatusNotFound)
	return nil
}

func badRequest(w http.ResponseWriter, msg string) error {
	http.Error(w, msg, http.StatusBadRequest)
	return nil
}
