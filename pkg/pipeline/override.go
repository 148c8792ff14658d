package pipeline

import (
	"net/http"
	"strings"

	"github.com/rhuss/weft/pkg/api"
)

// MethodOverrideHeader carries the intended method of a tunneled POST.
const MethodOverrideHeader = "X-HTTP-Method-Override"

var overridable = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// MethodOverride returns middleware that replaces the method of a POST
// request with the value of the X-HTTP-Method-Override header. Only POST
// is overridden and only to a known method; req.OriginalMethod keeps POST.
func MethodOverride() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(req *api.Request, res api.Response) error {
			if req.Method == http.MethodPost {
				if m := strings.ToUpper(strings.TrimSpace(req.Header.Get(MethodOverrideHeader))); overridable[m] {
					req.Method = m
				}
			}
			return next.Serve(req, res)
		})
	}
}
