package odooconnect

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	fakeDB       = "odoo"
	fakeLogin    = "admin"
	fakePassword = "admin"
	fakeUID      = 2
)

// fakeOdoo is an in-memory Odoo speaking the JSON-RPC web API. It keeps
// res.partner rows, counts every RPC and records the context each call_kw
// carried.
type fakeOdoo struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	sessions    map[string]bool
	nextSession int
	calls       map[string]int
	contexts    []map[string]any
	kwargs      []map[string]any
	args        [][]any
	partners    map[int64]map[string]any
	nextID      int64

	// rejectCalls answers that many following call_kw requests with a
	// session expired error.
	rejectCalls int
	// rejectLogins answers that many following logins with AccessDenied.
	rejectLogins int
	failWrites   bool
	userContext  map[string]any
}

func newFakeOdoo(t *testing.T) *fakeOdoo {
	t.Helper()
	f := &fakeOdoo{
		t:        t,
		sessions: map[string]bool{},
		calls:    map[string]int{},
		partners: map[int64]map[string]any{},
		nextID:   100,
		userContext: map[string]any{
			"lang": "en_US",
			"tz":   "Europe/Brussels",
			"uid":  fakeUID,
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/web/session/authenticate", f.handleAuthenticate)
	mux.HandleFunc("/web/session/get_session_info", f.handleSessionInfo)
	mux.HandleFunc("/web/dataset/call_kw/", f.handleCallKw)
	mux.HandleFunc("/report/pdf/", f.handleReport)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newTestSession(t *testing.T, f *fakeOdoo, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	s, err := New(f.server.URL, fakeDB, fakeLogin, fakePassword, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func (f *fakeOdoo) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeOdoo) lastContext() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.contexts) == 0 {
		return nil
	}
	return f.contexts[len(f.contexts)-1]
}

func (f *fakeOdoo) lastKwargs() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.kwargs) == 0 {
		return nil
	}
	return f.kwargs[len(f.kwargs)-1]
}

func (f *fakeOdoo) lastArgs() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.args) == 0 {
		return nil
	}
	return f.args[len(f.args)-1]
}

// expireSessions forgets every session, as a server restart would.
func (f *fakeOdoo) expireSessions() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = map[string]bool{}
}

func (f *fakeOdoo) seedPartner(values map[string]any) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(values)
}

func (f *fakeOdoo) insertLocked(values map[string]any) int64 {
	f.nextID++
	row := map[string]any{"id": f.nextID, "email": false, "is_company": false}
	for k, v := range values {
		row[k] = v
	}
	f.partners[f.nextID] = row
	return f.nextID
}

func decodeParams(r *http.Request) map[string]any {
	var env struct {
		JSONRPC string         `json:"jsonrpc"`
		Method  string         `json:"method"`
		Params  map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil || env.JSONRPC != "2.0" || env.Method != "call" {
		return nil
	}
	return env.Params
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": result})
}

func writeError(w http.ResponseWriter, code int, name, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"error": map[string]any{
			"code":    code,
			"message": "Odoo Server Error",
			"data":    map[string]any{"name": name, "message": message, "debug": "Traceback"},
		},
	})
}

func writeSessionExpired(w http.ResponseWriter) {
	writeError(w, 100, "odoo.http.SessionExpiredException", "Session expired")
}

func (f *fakeOdoo) sessionOK(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return false
	}
	return f.sessions[cookie.Value]
}

func (f *fakeOdoo) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	params := decodeParams(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["authenticate"]++

	if f.rejectLogins > 0 || params["db"] != fakeDB || params["login"] != fakeLogin || params["password"] != fakePassword {
		if f.rejectLogins > 0 {
			f.rejectLogins--
		}
		writeError(w, 200, "odoo.exceptions.AccessDenied", "Access Denied")
		return
	}

	f.nextSession++
	sid := fmt.Sprintf("sess-%d", f.nextSession)
	f.sessions[sid] = true
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: sid, Path: "/"})
	writeResult(w, map[string]any{
		"uid":            fakeUID,
		"session_id":     sid,
		"server_version": "17.0",
		"user_context":   f.userContext,
		"user_companies": map[string]any{"current_company": 1, "allowed_companies": map[string]any{"1": map[string]any{"id": 1, "name": "YourCompany"}}},
		"name":           "Mitchell Admin",
		"username":       fakeLogin,
		"partner_id":     3,
		"is_admin":       true,
		"web.base.url":   f.server.URL,
	})
}

func (f *fakeOdoo) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["session_info"]++
	if !f.sessionOK(r) {
		writeSessionExpired(w)
		return
	}
	writeResult(w, map[string]any{"uid": fakeUID, "user_context": f.userContext})
}

func (f *fakeOdoo) handleReport(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["report"]++
	if !f.sessionOK(r) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>login</html>")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	fmt.Fprintf(w, "%%PDF-1.4 %s", strings.TrimPrefix(r.URL.Path, "/report/pdf/"))
}

func (f *fakeOdoo) handleCallKw(w http.ResponseWriter, r *http.Request) {
	params := decodeParams(r)
	f.mu.Lock()
	defer f.mu.Unlock()

	if params == nil {
		writeError(w, 200, "werkzeug.exceptions.BadRequest", "bad envelope")
		return
	}
	model, _ := params["model"].(string)
	method, _ := params["method"].(string)
	if r.URL.Path != "/web/dataset/call_kw/"+model+"/"+method {
		writeError(w, 200, "werkzeug.exceptions.BadRequest", "path does not match params")
		return
	}
	if !f.sessionOK(r) {
		writeSessionExpired(w)
		return
	}
	if f.rejectCalls > 0 {
		f.rejectCalls--
		writeSessionExpired(w)
		return
	}

	args, _ := params["args"].([]any)
	kwargs, _ := params["kwargs"].(map[string]any)
	ctx, _ := kwargs["context"].(map[string]any)
	f.calls[model+"."+method]++
	f.contexts = append(f.contexts, ctx)
	f.kwargs = append(f.kwargs, kwargs)
	f.args = append(f.args, args)

	if model != string(ModelResPartner) {
		if method == "fields_get" {
			writeError(w, 200, "builtins.KeyError", "The model does not exist")
			return
		}
		writeResult(w, true)
		return
	}

	switch method {
	case "fields_get":
		writeResult(w, map[string]any{
			"id":         map[string]any{"type": "integer", "string": "ID"},
			"name":       map[string]any{"type": "char", "string": "Name"},
			"email":      map[string]any{"type": "char", "string": "Email"},
			"is_company": map[string]any{"type": "boolean", "string": "Is a Company"},
			"parent_id":  map[string]any{"type": "many2one", "string": "Related Company", "relation": "res.partner"},
			"child_ids":  map[string]any{"type": "one2many", "string": "Contact", "relation": "res.partner"},
		})
	case "create":
		switch v := args[0].(type) {
		case map[string]any:
			writeResult(w, f.insertLocked(v))
		case []any:
			ids := []int64{}
			for _, item := range v {
				ids = append(ids, f.insertLocked(item.(map[string]any)))
			}
			writeResult(w, ids)
		}
	case "read":
		fields := []string{}
		if len(args) > 1 {
			for _, name := range args[1].([]any) {
				fields = append(fields, name.(string))
			}
		}
		out := []any{}
		for _, raw := range args[0].([]any) {
			id := int64(raw.(float64))
			row, ok := f.partners[id]
			if !ok {
				writeError(w, 200, "odoo.exceptions.MissingError", "Record does not exist or has been deleted.")
				return
			}
			out = append(out, project(row, fields))
		}
		writeResult(w, out)
	case "write":
		if f.failWrites {
			writeError(w, 200, "odoo.exceptions.ValidationError", "write rejected")
			return
		}
		values, _ := kwargs["values"].(map[string]any)
		if len(args) > 1 {
			values = args[1].(map[string]any)
		}
		for _, raw := range args[0].([]any) {
			row, ok := f.partners[int64(raw.(float64))]
			if !ok {
				writeError(w, 200, "odoo.exceptions.MissingError", "Record does not exist or has been deleted.")
				return
			}
			for k, v := range values {
				row[k] = v
			}
		}
		writeResult(w, true)
	case "unlink":
		for _, raw := range args[0].([]any) {
			delete(f.partners, int64(raw.(float64)))
		}
		writeResult(w, true)
	case "search":
		ids := f.matchLocked(args[0].([]any))
		if limit, ok := kwargs["limit"].(float64); ok && int(limit) < len(ids) {
			ids = ids[:int(limit)]
		}
		writeResult(w, ids)
	case "search_count":
		writeResult(w, len(f.matchLocked(args[0].([]any))))
	case "search_read":
		fields := []string{}
		for _, name := range kwargs["fields"].([]any) {
			fields = append(fields, name.(string))
		}
		out := []any{}
		for _, id := range f.matchLocked(args[0].([]any)) {
			out = append(out, project(f.partners[id], fields))
		}
		writeResult(w, out)
	default:
		writeResult(w, map[string]any{"method": method, "args": args, "kwargs": kwargs})
	}
}

// matchLocked supports the equality conditions tests use; operators such as
// "|" are ignored.
func (f *fakeOdoo) matchLocked(domain []any) []int64 {
	ids := []int64{}
	for id, row := range f.partners {
		ok := true
		for _, cond := range domain {
			c, isList := cond.([]any)
			if !isList || len(c) != 3 || c[1] != "=" {
				continue
			}
			if row[c[0].(string)] != c[2] {
				ok = false
			}
		}
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func project(row map[string]any, fields []string) map[string]any {
	out := map[string]any{"id": row["id"]}
	for _, name := range fields {
		if v, ok := row[name]; ok {
			out[name] = v
		} else {
			out[name] = false
		}
	}
	// Many2one reads come back with the display name too.
	if _, ok := out["parent_id"]; ok {
		out["parent_id_display"] = "parent"
	}
	return out
}
