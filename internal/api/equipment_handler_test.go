package api

import (
	"net/http"
	"testing"

	"github.com/lingke-net/Space.Tab/internal/model"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

func TestAdminRegisterEquipmentDedupe(t *testing.T) {
	env := newTestEnv(t)
	admin := env.users.seed(t, model.User{Username: "root", Email: "root@x.com", IsAdmin: true}, "pw")
	token := env.login(t, admin)

	body := map[string]any{"bios_id": "BIOS-1", "country": "CN", "user_id": 7, "info_uuid": "custom-uuid"}
	w, resp := env.do(t, http.MethodPost, "/api/equipment/register", body, withToken(token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		InfoUUID string `json:"info_uuid"`
	}
	decodeData(t, resp, &out)
	if out.InfoUUID != "custom-uuid" {
		t.Fatalf("admin-chosen info_uuid not kept: %q", out.InfoUUID)
	}

	w, _ = env.do(t, http.MethodPost, "/api/equipment/register", body, withToken(token))
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", w.Code)
	}
	if len(env.equipment.infos) != 1 {
		t.Fatalf("duplicate row inserted: %d rows", len(env.equipment.infos))
	}
}

func TestClientRegisterEquipment(t *testing.T) {
	env := newTestEnv(t)

	send := func(fields map[string]any) int {
		w, _ := env.do(t, http.MethodPost, "/api/system/register", nil,
			withHeader(common.EncryptedContentHeader, env.sealPayload(t, fields)))
		return w.Code
	}

	if code := send(map[string]any{"bios_id": "B", "country": "CN", "user_id": "12", "info_uuid": "ignored"}); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if env.equipment.infos[0].InfoUUID == "ignored" {
		t.Fatalf("clients must not choose info_uuid")
	}
	if env.equipment.infos[0].UserID != 12 {
		t.Fatalf("string user_id not parsed: %d", env.equipment.infos[0].UserID)
	}
	if code := send(map[string]any{"bios_id": "B", "country": "CN", "user_id": 12}); code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", code)
	}
	if code := send(map[string]any{"bios_id": "B", "country": "CN", "user_id": 0}); code != http.StatusBadRequest {
		t.Fatalf("invalid user_id: expected 400, got %d", code)
	}
	if len(env.equipment.infos) != 1 {
		t.Fatalf("expected one row, got %d", len(env.equipment.infos))
	}
}

func TestEquipmentInfoAndDisposition(t *testing.T) {
	env := newTestEnv(t)
	admin := env.users.seed(t, model.User{Username: "root", Email: "root@x.com", IsAdmin: true}, "pw")
	token := env.login(t, admin)

	for _, country := range []string{"CN", "US"} {
		w, _ := env.do(t, http.MethodPost, "/api/equipment/info", map[string]any{"bios_id": "B", "country": country, "user_id": 1}, withToken(token))
		if w.Code != http.StatusOK {
			t.Fatalf("add info: expected 200, got %d", w.Code)
		}
	}
	w, resp := env.do(t, http.MethodGet, "/api/equipment/info?country=US", nil, withToken(token))
	if w.Code != http.StatusOK {
		t.Fatalf("list info: expected 200, got %d", w.Code)
	}
	var infos model.Page[model.EquipmentInfo]
	decodeData(t, resp, &infos)
	if infos.Total != 1 || infos.Data[0].Country != "US" {
		t.Fatalf("filter not applied: %+v", infos)
	}

	disp := map[string]string{
		"equipment_uuid": "eq-1", "system_architecture": "x64", "system": "Windows", "system_id": "10",
		"ram_info": "16G", "date": "2026-01-01", "wonderlab_run_file": "a.exe", "wonderlab_v": "2.5.0",
	}
	w, resp = env.do(t, http.MethodPost, "/api/equipment/disposition", disp, withToken(token))
	if w.Code != http.StatusOK {
		t.Fatalf("add disposition: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		InfoUUID string `json:"info_uuid"`
	}
	decodeData(t, resp, &created)

	missing := map[string]string{"equipment_uuid": "eq-1"}
	w, _ = env.do(t, http.MethodPost, "/api/equipment/disposition", missing, withToken(token))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("incomplete disposition: expected 400, got %d", w.Code)
	}

	disp["wonderlab_v"] = "2.6.0"
	w, _ = env.do(t, http.MethodPut, "/api/equipment/disposition/"+created.InfoUUID, disp, withToken(token))
	if w.Code != http.StatusOK {
		t.Fatalf("update disposition: expected 200, got %d", w.Code)
	}
	if got := env.equipment.dispositions[created.InfoUUID].ClientVersion; got != "2.6.0" {
		t.Fatalf("update not applied: %q", got)
	}
	w, _ = env.do(t, http.MethodPut, "/api/equipment/disposition/unknown", disp, withToken(token))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown disposition: expected 404, got %d", w.Code)
	}

	w, resp = env.do(t, http.MethodGet, "/api/equipment/disposition?equipment_uuid=eq-1", nil, withToken(token))
	if w.Code != http.StatusOK {
		t.Fatalf("list disposition: expected 200, got %d", w.Code)
	}
	var disps model.Page[model.EquipmentDisposition]
	decodeData(t, resp, &disps)
	if disps.Total != 1 || disps.Data[0].RunFile != "a.exe" {
		t.Fatalf("unexpected dispositions: %+v", disps)
	}
}

func TestEquipmentRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	u := env.users.seed(t, model.User{Username: "a", Email: "a@x.com"}, "pw")
	token := env.login(t, u)

	w, _ := env.do(t, http.MethodGet, "/api/equipment/info", nil, withToken(token))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}
