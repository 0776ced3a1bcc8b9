package httpserver

import (
	"errors"
	"net/http"
	"testing"

	"github.com/andylee303/jupyterlab-edu-extension/internal/bootstrap"
)

type fakeConfigSink struct {
	saved []bootstrap.Credentials
	err   error
}

func (f *fakeConfigSink) SaveCredentials(creds bootstrap.Credentials) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, creds)
	return "/home/student/.jupyterlab-edu-extension/config/dev/eduserver.ini", nil
}

func TestConfigSave(t *testing.T) {
	env := newTestEnv(t, false)
	sink := &fakeConfigSink{}
	env.server.config = sink

	rec := env.post(t, "/edu/api/config/save", map[string]any{
		"openai_api_key": "sk-new",
		"openai_model":   "gpt-5-mini",
		"supabase_url":   "https://proj.supabase.co",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["message"] != "設定已儲存" || body["env_path"] == "" {
		t.Errorf("body = %v", body)
	}
	if len(sink.saved) != 1 || sink.saved[0].OpenAIAPIKey != "sk-new" {
		t.Errorf("saved = %+v", sink.saved)
	}
}

func TestConfigSaveRequiresAPIKey(t *testing.T) {
	env := newTestEnv(t, false)
	env.server.config = &fakeConfigSink{}

	rec := env.post(t, "/edu/api/config/save", map[string]any{"openai_model": "gpt-5-mini"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "OpenAI API Key 為必填" {
		t.Errorf("body = %v", body)
	}
}

func TestConfigSaveSurfacesFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.server.config = &fakeConfigSink{err: errors.New("disk full")}

	rec := env.post(t, "/edu/api/config/save", map[string]any{"openai_api_key": "sk-x"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}
