package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/CodedInternet/gowl/onboard/config"
	deverrors "github.com/CodedInternet/gowl/onboard/errors"
	"github.com/CodedInternet/gowl/onboard/settings"
)

var (
	errNoSprayer = errors.New("sprayer not running")
	errNoNodes   = errors.New("CAN nodes not available")
)

type NodePayload struct {
	ID       uint8        `json:"id"`
	Settings settings.Map `json:"settings"`
}

type NodeSettingsPayload struct {
	Settings settings.Map `json:"settings"`
}

func (p *NodeSettingsPayload) Bind(r *http.Request) error {
	if len(p.Settings) == 0 {
		return errors.New("settings are required")
	}
	return nil
}

func apiRoutes(r chi.Router) {
	r.Post("/login", Login)

	r.Group(func(r chi.Router) {
		r.Use(ValidateJWT)

		r.Get("/refresh_token", JWTRefresh)
		r.Get("/status", GetStatus)

		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", ListNodes)
			r.Put("/{id}", PushNode)
			r.Post("/{id}/config/{index}", SelectNodeConfig)
		})

		r.Post("/config/{index}", ChangeConfig)
	})
}

func nodeID(r *http.Request) (uint8, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q", chi.URLParam(r, "id"))
	}
	return uint8(id), nil
}

func GetStatus(w http.ResponseWriter, r *http.Request) {
	if ENV.Sprayer == nil {
		render.Render(w, r, ErrUnavailable(errNoSprayer))
		return
	}
	render.JSON(w, r, ENV.Sprayer.Status())
}

func ListNodes(w http.ResponseWriter, r *http.Request) {
	if ENV.Nodes == nil {
		render.Render(w, r, ErrUnavailable(errNoNodes))
		return
	}

	nodes := []NodePayload{}
	for _, id := range ENV.Nodes.Nodes() {
		m, _ := ENV.Nodes.Settings(id)
		nodes = append(nodes, NodePayload{ID: id, Settings: m})
	}
	render.JSON(w, r, nodes)
}

// PushNode mirrors and sends new settings to a node. The bus gives no
// acknowledgement so 202 is the best we can say.
func PushNode(w http.ResponseWriter, r *http.Request) {
	if ENV.Nodes == nil {
		render.Render(w, r, ErrUnavailable(errNoNodes))
		return
	}

	id, err := nodeID(r)
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	data := &NodeSettingsPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if err := ENV.Nodes.UpdateNode(id, data.Settings); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, NodePayload{ID: id, Settings: data.Settings})
}

func SelectNodeConfig(w http.ResponseWriter, r *http.Request) {
	if ENV.Nodes == nil {
		render.Render(w, r, ErrUnavailable(errNoNodes))
		return
	}

	id, err := nodeID(r)
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	index, err := config.ParseIndex(chi.URLParam(r, "index"))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if err := ENV.Nodes.SelectConfig(id, index); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]int{"node": int(id), "index": index})
}

// ChangeConfig hot swaps the local snapshot.
func ChangeConfig(w http.ResponseWriter, r *http.Request) {
	if ENV.Sprayer == nil {
		render.Render(w, r, ErrUnavailable(errNoSprayer))
		return
	}

	if err := ENV.Sprayer.ChangeConfigArg(chi.URLParam(r, "index")); err != nil {
		var indexErr deverrors.ConfigIndexError
		var numErr *strconv.NumError
		if errors.As(err, &indexErr) || errors.As(err, &numErr) {
			render.Render(w, r, ErrInvalidRequest(err))
			return
		}
		render.Render(w, r, ErrRender(err))
		return
	}

	render.JSON(w, r, ENV.Sprayer.Status())
}
