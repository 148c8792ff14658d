package pipeline

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/rhuss/weft/pkg/api"
)

// BodyDecoder returns middleware that decodes req.RawBody into req.Body
// according to the Content-Type header:
//
//   - application/json and */*+json: decoded JSON value
//   - application/x-www-form-urlencoded: url.Values
//   - text/*: string
//
// Other content types leave Body unset; handlers read RawBody. Requests
// whose Body is already set (channel frames) pass through untouched.
// Malformed JSON or form bodies are answered with 400 and do not reach the
// next handler.
func BodyDecoder() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(req *api.Request, res api.Response) error {
			if req.Body != nil || len(req.RawBody) == 0 {
				return next.Serve(req, res)
			}

			mediaType, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
			if err != nil {
				mediaType = ""
			}

			switch {
			case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
				var v any
				if err := json.Unmarshal(req.RawBody, &v); err != nil {
					return badBody(res, "invalid JSON: "+err.Error())
				}
				req.Body = v
			case mediaType == "application/x-www-form-urlencoded":
				v, err := url.ParseQuery(string(req.RawBody))
				if err != nil {
					return badBody(res, "invalid form body: "+err.Error())
				}
				req.Body = v
			case strings.HasPrefix(mediaType, "text/"):
				req.Body = string(req.RawBody)
			}
			return next.Serve(req, res)
		})
	}
}

func badBody(res api.Response, msg string) error {
	return res.Status(http.StatusBadRequest).JSON(api.ErrorResponse{
		Error: api.NewInvalidRequestError("body", msg),
	})
}
