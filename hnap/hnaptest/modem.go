// Package hnaptest provides an in-process MB8600 stand-in for tests.
package hnaptest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/markuslindenberg/mb8600_exporter/hnap"
)

// Modem answers HNAP requests the way an MB8600 does: it checks HNAP_AUTH on
// every request and only serves status actions to an authenticated session.
type Modem struct {
	Username  string
	Password  string
	PublicKey string
	Challenge string
	Cookie    string

	LogList    string
	Downstream string
	Upstream   string

	// Responses overrides the body returned for an action.
	Responses   map[string]string
	// StatusCodes makes the modem answer an action with a bare HTTP error.
	StatusCodes map[string]int

	mu         sync.Mutex
	privateKey string
	requests   map[string]int
	badAuth    int
}

// New returns a modem accepting admin/motorola.
func New() *Modem {
	return &Modem{
		Username:  "admin",
		Password:  "motorola",
		PublicKey: "PUBKEY",
		Challenge: "CHALLENGE1",
		Cookie:    "UID123",
	}
}

// Server starts an httptest server serving the modem at /HNAP1/.
func (m *Modem) Server() *httptest.Server {
	mux := http.NewServeMux()
	mux.Handle("/HNAP1/", m)
	return httptest.NewServer(mux)
}

// Requests returns how many requests named action were received.
func (m *Modem) Requests(action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[action]
}

// BadAuth returns how many requests carried an invalid HNAP_AUTH header.
func (m *Modem) BadAuth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.badAuth
}

// Expire forgets the current session.
func (m *Modem) Expire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.privateKey = ""
}

func (m *Modem) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.requests == nil {
		m.requests = map[string]int{}
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) != 1 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var (
		action string
		params json.RawMessage
	)
	for k, v := range body {
		action, params = k, v
	}
	m.requests[action]++

	if r.Header.Get("SOAPAction") != hnap.Namespace+action {
		http.Error(w, "bad SOAPAction", http.StatusBadRequest)
		return
	}
	if code, ok := m.StatusCodes[action]; ok {
		http.Error(w, http.StatusText(code), code)
		return
	}

	if action == hnap.ActionLogin {
		// The request step is signed anonymously, the login step with the
		// key derived from the challenge.
		if !m.verify(r, hnap.AnonymousKey, action) && !(m.privateKey != "" && m.verify(r, m.privateKey, action)) {
			m.badAuth++
		}
		if body, ok := m.Responses[action]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"` + action + `Response":` + body + `}`))
			return
		}
		m.login(w, params)
		return
	}

	key := hnap.AnonymousKey
	if m.privateKey != "" {
		key = m.privateKey
	}
	if !m.verify(r, key, action) {
		m.badAuth++
		writeJSON(w, map[string]interface{}{"Error": "unauthenticated"})
		return
	}
	if m.privateKey == "" || !m.hasSessionCookie(r) {
		writeJSON(w, map[string]interface{}{"Error": "unauthenticated"})
		return
	}

	if action == hnap.ActionMultiple {
		var requested map[string]string
		if err := json.Unmarshal(params, &requested); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var sb strings.Builder
		sb.WriteString(`{"GetMultipleHNAPsResponse":{`)
		for name := range requested {
			sb.WriteString(`"` + name + `Response":` + m.result(name) + `,`)
		}
		sb.WriteString(`"GetMultipleHNAPsResult":"OK"}}`)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sb.String()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"` + action + `Response":` + m.result(action) + `}`))
}

func (m *Modem) verify(r *http.Request, key, action string) bool {
	parts := strings.SplitN(r.Header.Get("HNAP_AUTH"), " ", 2)
	if len(parts) != 2 {
		return false
	}
	return parts[0] == hnap.HMACMD5(key, parts[1]+hnap.Namespace+action)
}

func (m *Modem) hasSessionCookie(r *http.Request) bool {
	uid, err := r.Cookie("uid")
	return err == nil && uid.Value == m.Cookie
}

func (m *Modem) login(w http.ResponseWriter, params json.RawMessage) {
	var req hnap.LoginRequest
	if err := json.Unmarshal(params, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "request":
		if req.Username != m.Username {
			writeJSON(w, map[string]interface{}{"LoginResponse": hnap.LoginResponse{LoginResult: "FAILED"}})
			return
		}
		m.privateKey = hnap.HMACMD5(m.PublicKey+m.Password, m.Challenge)
		writeJSON(w, map[string]interface{}{"LoginResponse": hnap.LoginResponse{
			LoginResult: "OK",
			Challenge:   m.Challenge,
			PublicKey:   m.PublicKey,
			Cookie:      m.Cookie,
		}})
	case "login":
		result := "OK"
		if req.Username != m.Username || req.LoginPassword != hnap.HMACMD5(m.privateKey, m.Challenge) {
			result = "FAILED"
			m.privateKey = ""
		}
		writeJSON(w, map[string]interface{}{"LoginResponse": hnap.LoginResponse{LoginResult: result}})
	default:
		http.Error(w, "bad request", http.StatusBadRequest)
	}
}

func (m *Modem) result(action string) string {
	if body, ok := m.Responses[action]; ok {
		return body
	}
	var v interface{}
	switch action {
	case hnap.ActionStatusLog:
		v = hnap.StatusLogResponse{MotoStatusLogList: m.LogList, GetMotoStatusLogResult: "OK"}
	case hnap.ActionDownstreamChannelInfo:
		v = hnap.DownstreamChannelInfoResponse{MotoConnDownstreamChannel: m.Downstream, GetMotoStatusDownstreamChannelInfoResult: "OK"}
	case hnap.ActionUpstreamChannelInfo:
		v = hnap.UpstreamChannelInfoResponse{MotoConnUpstreamChannel: m.Upstream, GetMotoStatusUpstreamChannelInfoResult: "OK"}
	default:
		v = map[string]string{action + "Result": "OK"}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
