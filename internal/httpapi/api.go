package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vs316/schema-weaver-sub001/internal/bootstrap"
	"github.com/vs316/schema-weaver-sub001/internal/dto"
	"github.com/vs316/schema-weaver-sub001/internal/model"
	"github.com/vs316/schema-weaver-sub001/internal/pkg/buildinfo"
	"github.com/vs316/schema-weaver-sub001/internal/repository"
	"github.com/vs316/schema-weaver-sub001/internal/schema"
	"github.com/vs316/schema-weaver-sub001/internal/service"
)

type apiServer struct {
	core      *bootstrap.Core
	startTime time.Time
}

func newAPI(core *bootstrap.Core) *apiServer {
	return &apiServer{
		core:      core,
		startTime: time.Now(),
	}
}

func (a *apiServer) registerJSONRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/diagrams", a.listDiagrams)
	mux.HandleFunc("POST /api/diagrams", a.createDiagram)
	mux.HandleFunc("GET /api/diagrams/{id}", a.getDiagram)
	mux.HandleFunc("PATCH /api/diagrams/{id}", a.updateDiagram)
	mux.HandleFunc("DELETE /api/diagrams/{id}", a.deleteDiagram)
	mux.HandleFunc("GET /api/diagrams/{id}/geometry", a.getGeometry)
	mux.HandleFunc("POST /api/diagrams/{id}/autocolor", a.autoColor)
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := dto.HealthDTO{
		OK:        true,
		StartedAt: a.startTime.Format(time.RFC3339),
		App: dto.AppStatusDTO{
			Version:   buildinfo.Version,
			Commit:    buildinfo.Commit,
			UptimeSec: int64(time.Since(a.startTime).Seconds()),
		},
		Realtime: dto.RealtimeDTO{Subscribers: a.core.Hub.Subscribers()},
	}
	if cfg := a.core.Cfg; cfg != nil {
		out.App.Name = cfg.App.Name
	}
	if db := a.core.DB; db != nil {
		out.App.SafeMode = db.SafeMode
		out.Storage = dto.StorageStatusDTO{
			Driver:         db.Driver,
			SchemaVersion:  db.SchemaVersion,
			SafeModeReason: db.MigrationError,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiServer) listDiagrams(w http.ResponseWriter, r *http.Request) {
	teamID := strings.TrimSpace(r.URL.Query().Get("team_id"))
	if teamID == "" {
		writeError(w, http.StatusBadRequest, "team_id 不能为空")
		return
	}
	list, err := a.core.Repos.Diagram.ListByTeam(r.Context(), teamID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]dto.DiagramSummaryDTO, 0, len(list))
	for _, d := range list {
		out = append(out, toDiagramSummaryDTO(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiServer) createDiagram(w http.ResponseWriter, r *http.Request) {
	if !a.requireWritable(w) {
		return
	}
	var req dto.CreateDiagramRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体格式错误: "+err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.TeamID = strings.TrimSpace(req.TeamID)
	if req.Name == "" || req.TeamID == "" {
		writeError(w, http.StatusBadRequest, "name 与 team_id 不能为空")
		return
	}
	typ := schema.DiagramType(req.DiagramType)
	if typ == "" {
		typ = schema.DiagramERD
	}
	if !typ.Valid() {
		writeError(w, http.StatusBadRequest, "不支持的图类型: "+req.DiagramType)
		return
	}

	d := &schema.Diagram{
		Name:        req.Name,
		DiagramType: typ,
		Tables:      schema.TableList{},
		Relations:   schema.RelationList{},
		Viewport:    schema.ViewportJSON(model.DefaultViewport()),
		TeamID:      req.TeamID,
		CreatedBy:   req.CreatedBy,
		UpdatedBy:   req.CreatedBy,
	}
	if err := a.core.Repos.Diagram.Create(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toDiagramDTO(d))
}

func (a *apiServer) getDiagram(w http.ResponseWriter, r *http.Request) {
	d, ok := a.loadDiagram(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toDiagramDTO(d))
}

func (a *apiServer) updateDiagram(w http.ResponseWriter, r *http.Request) {
	if !a.requireWritable(w) {
		return
	}
	var req dto.UpdateDiagramRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体格式错误: "+err.Error())
		return
	}
	if req.Tables != nil {
		if err := validateTables(*req.Tables); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	upd := toDiagramUpdate(req)
	if upd.IsEmpty() {
		writeError(w, http.StatusBadRequest, "没有需要更新的字段")
		return
	}

	existing, ok := a.loadDiagram(w, r)
	if !ok {
		return
	}
	// 同一请求里解锁并修改内容是允许的
	if existing.IsLocked && editsContent(req) && (req.IsLocked == nil || *req.IsLocked) {
		writeError(w, http.StatusLocked, "图已锁定")
		return
	}

	d, err := a.core.Repos.Diagram.Update(r.Context(), existing.ID, upd)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiagramDTO(d))
}

func (a *apiServer) deleteDiagram(w http.ResponseWriter, r *http.Request) {
	if !a.requireWritable(w) {
		return
	}
	if err := a.core.Repos.Diagram.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiServer) getGeometry(w http.ResponseWriter, r *http.Request) {
	d, ok := a.loadDiagram(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toGeometryDTO(d))
}

// autoColor 只给未着色的表分配颜色并落库
func (a *apiServer) autoColor(w http.ResponseWriter, r *http.Request) {
	if !a.requireWritable(w) {
		return
	}
	d, ok := a.loadDiagram(w, r)
	if !ok {
		return
	}
	if d.IsLocked {
		writeError(w, http.StatusLocked, "图已锁定")
		return
	}

	tables := service.ApplyAutoColors(d.Tables, d.Relations)
	updated, err := a.core.Repos.Diagram.Update(r.Context(), d.ID, schema.DiagramUpdate{Tables: &tables})
	if err != nil {
		writeRepoError(w, err)
		return
	}
	slog.Info("已自动着色", "id", d.ID, "tables", len(tables))
	writeJSON(w, http.StatusOK, toDiagramDTO(updated))
}

func (a *apiServer) loadDiagram(w http.ResponseWriter, r *http.Request) (*schema.Diagram, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "id 不能为空")
		return nil, false
	}
	d, err := a.core.Repos.Diagram.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "图不存在")
		return nil, false
	}
	return d, true
}

// requireWritable 迁移失败的安全模式下拒绝写入
func (a *apiServer) requireWritable(w http.ResponseWriter) bool {
	if a.core.DB != nil && a.core.DB.SafeMode {
		writeError(w, http.StatusServiceUnavailable, "数据库处于安全模式，只读")
		return false
	}
	return true
}

func writeRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "图不存在")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
