package mcpserve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/capsight/capsight/creds"
	"github.com/capsight/capsight/engine"
	"github.com/capsight/capsight/remote"
	"github.com/capsight/capsight/settings"
	"github.com/capsight/capsight/state"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

var testImpl = &mcp.Implementation{Name: "capsight-test", Version: "0.1.0"}

// testEngine builds an Engine against a canned remote and syncs it once.
func testEngine(t *testing.T, synced bool) *engine.Engine {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"version": "2.33.0",
			"modules": []map[string]any{{"name": "net.recon", "running": true}},
		})
	})
	mux.HandleFunc("POST /api/session", func(w http.ResponseWriter, r *http.Request) {
		var cmd struct {
			Command string `json:"cmd"`
		}
		json.NewDecoder(r.Body).Decode(&cmd)
		if strings.HasPrefix(cmd.Command, "bogus") {
			http.Error(w, "unknown command", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(remote.CommandResult{Success: true})
	})
	mux.HandleFunc("GET /api/events", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]remote.Event{
			{Tag: "mod.started", Time: time.Unix(1000, 0), Data: json.RawMessage(`"net.recon"`)},
			{Tag: "sys.log", Time: time.Unix(1001, 0)},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	st := state.OpenMemory(t)
	cs := creds.New(st)
	cs.SetLogin("user", "pass")
	eng := engine.New(remote.New(srv.URL+"/api", cs), cs, settings.New(st), engine.Config{})
	if synced {
		eng.PollSession(context.Background())
		eng.PollEvents(context.Background())
	}
	return eng
}

func mcpSession(t *testing.T, eng *engine.Engine) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	Register(srv, eng)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// callTool invokes a tool and returns its text payload. Tool-level failures
// only cross the wire as IsError plus the message in the content, so that is
// what the client side checks.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, error) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	var text string
	if len(result.Content) > 0 {
		tc, ok := result.Content[0].(*mcp.TextContent)
		if !ok {
			t.Fatalf("CallTool(%s): expected TextContent", name)
		}
		text = tc.Text
	}
	if result.IsError {
		return "", errors.New(text)
	}
	return text, nil
}

func TestSessionSnapshot(t *testing.T) {
	session := mcpSession(t, testEngine(t, true))

	text, err := callTool(t, session, "session_snapshot", map[string]any{})
	if err != nil {
		t.Fatalf("tool error: %v", err)
	}
	var snap remote.Snapshot
	if err := json.Unmarshal([]byte(text), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.Version != "2.33.0" {
		t.Errorf("version = %q", snap.Version)
	}
	if snap.Module("net.recon") == nil {
		t.Error("net.recon module missing")
	}
}

func TestSessionSnapshot_BeforeSync(t *testing.T) {
	session := mcpSession(t, testEngine(t, false))

	if _, err := callTool(t, session, "session_snapshot", map[string]any{}); err == nil {
		t.Fatal("expected tool error before first sync")
	}
}

func TestEventsList(t *testing.T) {
	session := mcpSession(t, testEngine(t, true))

	text, err := callTool(t, session, "events_list", map[string]any{})
	if err != nil {
		t.Fatalf("tool error: %v", err)
	}
	var list []remote.Event
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d events", len(list))
	}

	text, err = callTool(t, session, "events_list", map[string]any{"tag": "sys.log"})
	if err != nil {
		t.Fatalf("tool error: %v", err)
	}
	list = nil
	json.Unmarshal([]byte(text), &list)
	if len(list) != 1 || list[0].Tag != "sys.log" {
		t.Errorf("filtered list = %+v", list)
	}
}

func TestRunCommand(t *testing.T) {
	session := mcpSession(t, testEngine(t, true))

	text, err := callTool(t, session, "run_command", map[string]any{"command": "net.probe on"})
	if err != nil {
		t.Fatalf("tool error: %v", err)
	}
	var resp struct {
		Accepted bool `json:"accepted"`
	}
	json.Unmarshal([]byte(text), &resp)
	if !resp.Accepted {
		t.Error("command not accepted")
	}

	if _, err := callTool(t, session, "run_command", map[string]any{"command": "bogus thing"}); err == nil {
		t.Error("rejected command did not surface as tool error")
	}
	if _, err := callTool(t, session, "run_command", map[string]any{}); err == nil {
		t.Error("missing command did not surface as tool error")
	}
}

func TestSyncStats(t *testing.T) {
	session := mcpSession(t, testEngine(t, true))

	text, err := callTool(t, session, "sync_stats", map[string]any{})
	if err != nil {
		t.Fatalf("tool error: %v", err)
	}
	var stats engine.Stats
	if err := json.Unmarshal([]byte(text), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.SessionTicks != 1 || stats.EventTicks != 1 {
		t.Errorf("ticks = %d/%d", stats.SessionTicks, stats.EventTicks)
	}
	if !stats.LoggedIn {
		t.Error("not logged in after successful sync")
	}
}
