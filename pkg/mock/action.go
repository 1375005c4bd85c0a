package mock

import "fmt"

// ActionType discriminates the action union. An expectation carries exactly
// one action; the engine only selects it, execution belongs to the
// transport/action layer.
type ActionType string

const (
	ActionResponse ActionType = "response"
	ActionForward  ActionType = "forward"
	ActionError    ActionType = "error"
	ActionCallback ActionType = "callback"
	ActionTemplate ActionType = "template"
)

// Direction classifies whether an action answers locally or forwards
// upstream. Used by metrics and the proxy path.
type Direction string

const (
	DirectionRespond Direction = "respond"
	DirectionForward Direction = "forward"
)

// ResponseAction returns a canned response.
type ResponseAction struct {
	StatusCode int               `json:"statusCode" yaml:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body       string            `json:"body,omitempty" yaml:"body,omitempty"`
	DelayMs    int               `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`
}

// ForwardAction proxies the request to another host.
type ForwardAction struct {
	Host   string `json:"host" yaml:"host"`
	Port   int    `json:"port,omitempty" yaml:"port,omitempty"`
	Scheme string `json:"scheme,omitempty" yaml:"scheme,omitempty"`
}

// ErrorAction produces a transport-level failure.
type ErrorAction struct {
	DropConnection bool   `json:"dropConnection,omitempty" yaml:"dropConnection,omitempty"`
	ResponseBytes  []byte `json:"responseBytes,omitempty" yaml:"responseBytes,omitempty"`
}

// CallbackAction hands the request to a registered callback client.
type CallbackAction struct {
	CallbackClass string `json:"callbackClass,omitempty" yaml:"callbackClass,omitempty"`
	ClientID      string `json:"clientId,omitempty" yaml:"clientId,omitempty"`
}

// TemplateAction renders the response through a template engine.
type TemplateAction struct {
	Engine   string `json:"engine" yaml:"engine"`
	Template string `json:"template" yaml:"template"`
	DelayMs  int    `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`
}

// Action is the closed union of the five action kinds. Type selects which
// pointer is populated.
type Action struct {
	Type     ActionType      `json:"type" yaml:"type"`
	Response *ResponseAction `json:"response,omitempty" yaml:"response,omitempty"`
	Forward  *ForwardAction  `json:"forward,omitempty" yaml:"forward,omitempty"`
	Error    *ErrorAction    `json:"error,omitempty" yaml:"error,omitempty"`
	Callback *CallbackAction `json:"callback,omitempty" yaml:"callback,omitempty"`
	Template *TemplateAction `json:"template,omitempty" yaml:"template,omitempty"`
}

// Direction reports whether the action answers locally or forwards.
func (a *Action) Direction() Direction {
	if a != nil && a.Type == ActionForward {
		return DirectionForward
	}
	return DirectionRespond
}

// Validate checks that the populated variant agrees with Type.
func (a *Action) Validate() error {
	if a == nil {
		return fmt.Errorf("expectation has no action")
	}
	switch a.Type {
	case ActionResponse:
		if a.Response == nil {
			return fmt.Errorf("action type response requires a response")
		}
	case ActionForward:
		if a.Forward == nil || a.Forward.Host == "" {
			return fmt.Errorf("action type forward requires a forward host")
		}
	case ActionError:
		if a.Error == nil {
			return fmt.Errorf("action type error requires an error")
		}
	case ActionCallback:
		if a.Callback == nil || (a.Callback.CallbackClass == "" && a.Callback.ClientID == "") {
			return fmt.Errorf("action type callback requires a callback class or client id")
		}
	case ActionTemplate:
		if a.Template == nil || a.Template.Template == "" {
			return fmt.Errorf("action type template requires a template")
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}
