package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/golden-vcr/openapi-go/apierror"
	"github.com/golden-vcr/openapi-go/apilog"
	"github.com/golden-vcr/openapi-go/entry"
	"github.com/golden-vcr/openapi-go/hmac"
)

// DefaultMaxBodyBytes limits the size of a signed request body
const DefaultMaxBodyBytes = 1 << 20

type callKey struct{}

// call accumulates the details of a request for its apilog.Event
type call struct {
	ev    apilog.Event
	start time.Time
}

func newCall(ctx context.Context, method, path, remoteAddr string) (context.Context, *call) {
	start := time.Now()
	c := &call{
		ev: apilog.Event{
			RequestId:  entry.RequestId(ctx),
			Method:     method,
			Path:       path,
			RemoteAddr: remoteAddr,
			ReceivedAt: start.UTC(),
		},
		start: start,
	}
	return context.WithValue(ctx, callKey{}, c), c
}

// noteSignature copies the (possibly partial) signature of the call into its event
func (c *call) noteSignature(sig hmac.Signature) {
	c.ev.AppId = sig.AppId
	c.ev.Nonce = sig.Nonce
	c.ev.SignedAt = sig.Timestamp
}

// finish completes the event with the response status and hands it to recorder
func (c *call) finish(ctx context.Context, recorder apilog.Recorder, status int) {
	c.ev.Status = status
	c.ev.Outcome = apilog.OutcomeForStatus(status)
	c.ev.ElapsedMs = float64(time.Since(c.start).Nanoseconds()) / float64(time.Millisecond)
	recorder.Record(ctx, c.ev)
}

func callFromContext(ctx context.Context) *call {
	c, _ := ctx.Value(callKey{}).(*call)
	return c
}

func noteErrorCode(ctx context.Context, code *apierror.Code) {
	if c := callFromContext(ctx); c != nil {
		c.ev.ErrorCode = code.Code()
	}
}

// writeError renders err as an envelope, noting its error code in the call's event
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, _ := apierror.FromError(err)
	noteErrorCode(r.Context(), code)
	if code == apierror.ErrSystemError {
		entry.Logger(r.Context()).Error("Request failed", "error", err)
	}
	apierror.Write(w, err)
}

// RequireSignature rejects any request that doesn't carry a valid signature over its
// method, path, query and body. The body is buffered so that it can be both verified
// and read by next. Accepted requests carry their hmac.Signature in the context.
func RequireSignature(verifier hmac.Verifier, recorder apilog.Recorder, allowlist Allowlist, maxBodyBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, c := newCall(r.Context(), r.Method, r.URL.Path, r.RemoteAddr)
			r = r.WithContext(ctx)
			sw := entry.NewStatusWriter(w)
			defer func() {
				status := sw.Status()
				if status == 0 {
					status = http.StatusOK
				}
				c.finish(r.Context(), recorder, status)
			}()

			body, err := io.ReadAll(http.MaxBytesReader(sw, r.Body, maxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(sw, r, apierror.New(apierror.ErrParamInvalid, "Request body is too large"))
					return
				}
				writeError(sw, r, apierror.New(apierror.ErrParamInvalid, "Request body could not be read"))
				return
			}

			sig, err := verifier.VerifyHTTP(r, body)
			c.noteSignature(sig)
			if sig.AppId != "" {
				entry.Annotate(r.Context(), "appId", sig.AppId)
			}
			if err != nil {
				entry.Logger(r.Context()).Warn("Signature verification failed", "error", err)
				writeError(sw, r, err)
				return
			}

			if !allowlist.Allows(sig.AppId, r.RemoteAddr) {
				entry.Logger(r.Context()).Warn("Client address is not allowlisted")
				writeError(sw, r, apierror.New(apierror.ErrPermissionDenied, "Client address is not allowed"))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(sw, r.WithContext(hmac.NewContext(r.Context(), sig)))
		})
	}
}

// RequireEntityAccess rejects any request whose signing app has not been granted
// access to the table named by the route's {table} wildcard. It must run after
// RequireSignature, on a handler registered with a pattern that contains {table}.
func RequireEntityAccess(grants Grants) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig, ok := hmac.FromContext(r.Context())
			if !ok {
				writeError(w, r, apierror.ErrAuthFailed)
				return
			}
			table := r.PathValue("table")
			if table == "" {
				writeError(w, r, apierror.New(apierror.ErrParamMissing, "table is required"))
				return
			}
			if !grants.Allows(sig.AppId, table) {
				entry.Logger(r.Context()).Warn("Entity access denied", "table", table)
				writeError(w, r, apierror.New(apierror.ErrPermissionDenied, "No access to this entity"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
