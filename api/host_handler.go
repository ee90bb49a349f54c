package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/fleetcron/host"
	"github.com/xraph/fleetcron/id"
)

func (a *API) createGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g := host.NewGroup(req.Name, req.Description)
	if err := a.eng.Store().CreateGroup(r.Context(), g); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (a *API) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := a.eng.Store().ListGroups(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if groups == nil {
		groups = []*host.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (a *API) getGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g, err := a.eng.Store().GetGroup(r.Context(), groupID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) listGroupHosts(w http.ResponseWriter, r *http.Request) {
	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := a.eng.Store().GetGroup(r.Context(), groupID); err != nil {
		writeErr(w, err)
		return
	}
	hosts, err := a.eng.Store().ListHostsByGroup(r.Context(), groupID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if hosts == nil {
		hosts = []*host.Host{}
	}
	writeJSON(w, http.StatusOK, hosts)
}

func (a *API) createHost(w http.ResponseWriter, r *http.Request) {
	var req CreateHostRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	groupID := id.Nil
	if req.GroupID != "" {
		parsed, err := id.ParseGroupID(req.GroupID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		groupID = parsed
	}

	h := host.New(req.Name, req.Address, groupID)
	if req.Port > 0 {
		h.Port = req.Port
	}
	if req.User != "" {
		h.User = req.User
	}
	if err := a.eng.RegisterHost(r.Context(), h, req.Password); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (a *API) getHost(w http.ResponseWriter, r *http.Request) {
	hostID, err := id.ParseHostID(chi.URLParam(r, "hostId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h, err := a.eng.Store().GetHost(r.Context(), hostID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}
