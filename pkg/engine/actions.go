package engine

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"text/template"
	"time"

	"github.com/expectd/expectd/pkg/mock"
)

// execute runs the expectation's action against the response writer and
// returns the status code sent, 0 when the connection was dropped.
func (e *Engine) execute(w http.ResponseWriter, r *http.Request, req *mock.HTTPRequest, exp *mock.Expectation) int {
	action := exp.Action
	if action == nil {
		w.WriteHeader(http.StatusOK)
		return http.StatusOK
	}
	switch action.Type {
	case mock.ActionResponse:
		return e.respond(w, action.Response)
	case mock.ActionForward:
		return e.forward(w, r, action.Forward)
	case mock.ActionError:
		return e.fail(w, action.Error)
	case mock.ActionTemplate:
		return e.render(w, req, action.Template)
	case mock.ActionCallback:
		// callbacks need a registered client channel; none is wired yet
		e.log.Warn("callback action without a registered client", "expectation", exp.ID)
		w.WriteHeader(http.StatusNotImplemented)
		return http.StatusNotImplemented
	}
	w.WriteHeader(http.StatusInternalServerError)
	return http.StatusInternalServerError
}

func (e *Engine) respond(w http.ResponseWriter, resp *mock.ResponseAction) int {
	if resp.DelayMs > 0 {
		time.Sleep(time.Duration(resp.DelayMs) * time.Millisecond)
	}
	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
	return status
}

func (e *Engine) forward(w http.ResponseWriter, r *http.Request, fwd *mock.ForwardAction) int {
	scheme := fwd.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := fwd.Host
	if fwd.Port > 0 {
		host = fmt.Sprintf("%s:%d", fwd.Host, fwd.Port)
	}
	target := &url.URL{Scheme: scheme, Host: host}

	status := http.StatusBadGateway
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ModifyResponse = func(resp *http.Response) error {
		status = resp.StatusCode
		return nil
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		e.log.Warn("forward failed", "target", target.String(), "error", err)
		w.WriteHeader(http.StatusBadGateway)
	}
	proxy.ServeHTTP(w, r)
	return status
}

func (e *Engine) fail(w http.ResponseWriter, errAction *mock.ErrorAction) int {
	if errAction.DropConnection {
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, err := hj.Hijack()
			if err == nil {
				if len(errAction.ResponseBytes) > 0 {
					_, _ = conn.Write(errAction.ResponseBytes)
				}
				_ = conn.Close()
				return 0
			}
			e.log.Warn("hijack failed, closing via handler", "error", err)
		}
		// no hijack support (HTTP/2, test recorders): best effort
		w.WriteHeader(http.StatusInternalServerError)
		return http.StatusInternalServerError
	}
	w.WriteHeader(http.StatusInternalServerError)
	if len(errAction.ResponseBytes) > 0 {
		_, _ = w.Write(errAction.ResponseBytes)
	}
	return http.StatusInternalServerError
}

// templateData is what response templates see.
type templateData struct {
	Method      string
	Path        string
	Body        string
	Headers     map[string]string
	QueryParams map[string]string
}

func (e *Engine) render(w http.ResponseWriter, req *mock.HTTPRequest, tmpl *mock.TemplateAction) int {
	if tmpl.DelayMs > 0 {
		time.Sleep(time.Duration(tmpl.DelayMs) * time.Millisecond)
	}
	parsed, err := template.New("response").Parse(tmpl.Template)
	if err != nil {
		e.log.Warn("invalid response template", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return http.StatusInternalServerError
	}
	data := templateData{
		Method:      req.Method,
		Path:        req.Path,
		Body:        string(req.Body),
		Headers:     firstValues(req.Headers),
		QueryParams: firstValues(req.QueryParams),
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, data); err != nil {
		e.log.Warn("response template failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return http.StatusInternalServerError
	}
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
	return http.StatusOK
}

func firstValues(entries mock.Entries) map[string]string {
	out := make(map[string]string, len(entries))
	for _, kv := range entries {
		if _, dup := out[kv.Name]; !dup && len(kv.Values) > 0 {
			out[kv.Name] = kv.Values[0]
		}
	}
	return out
}
