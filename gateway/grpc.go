package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/golden-vcr/openapi-go/apierror"
	"github.com/golden-vcr/openapi-go/apilog"
	"github.com/golden-vcr/openapi-go/entities"
	"github.com/golden-vcr/openapi-go/entry"
	"github.com/golden-vcr/openapi-go/hmac"
)

const (
	EntitiesServiceName = "openapi.v1.Entities"
	EntitiesListMethod  = "/" + EntitiesServiceName + "/List"
	EntitiesGetMethod   = "/" + EntitiesServiceName + "/Get"
)

// EntitiesServer is the read-only gRPC view of the entity API. Requests and responses
// are google.protobuf.Struct messages with the same fields as the HTTP API: List takes
// table, page, pageSize and filters, and returns data and total; Get takes table and id,
// and returns data.
type EntitiesServer interface {
	List(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Get(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// NewGRPCServer returns a gRPC server exposing the Entities service. Every call is
// logged, recorded via cfg.Recorder, and verified; the allowlist and grants in cfg
// apply as they do over HTTP.
func NewGRPCServer(logger *slog.Logger, cfg Config) *grpc.Server {
	if cfg.Recorder == nil {
		cfg.Recorder = apilog.NopRecorder{}
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		entry.GRPCServerLogging(logger),
		recordCalls(cfg.Recorder),
		hmac.UnaryServerInterceptor(cfg.Verifier),
		annotateAppId,
	))
	RegisterEntitiesServer(s, &entitiesServer{
		store:     cfg.Store,
		grants:    cfg.Grants,
		allowlist: cfg.Allowlist,
	})
	return s
}

// recordCalls records an apilog.Event for every call. It is chained ahead of signature
// verification so that rejected calls are recorded too.
func recordCalls(recorder apilog.Recorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, c := newCall(ctx, http.MethodPost, info.FullMethod, peerAddr(ctx))
		md, _ := metadata.FromIncomingContext(ctx)
		sig, _ := hmac.ParseSignature(func(key string) string {
			if values := md.Get(key); len(values) > 0 {
				return values[0]
			}
			return ""
		})
		c.noteSignature(sig)

		m, err := handler(ctx, req)
		code := status.Code(err)
		if err != nil && c.ev.ErrorCode == "" {
			// Verification failures never reach statusFromError
			fallback := apierror.ErrSystemError
			if code == codes.Unauthenticated {
				fallback = apierror.ErrAuthFailed
			}
			c.ev.ErrorCode = fallback.Code()
		}
		c.finish(ctx, recorder, httpStatusFromCode(code))
		return m, err
	}
}

func annotateAppId(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if sig, ok := hmac.FromContext(ctx); ok {
		entry.Annotate(ctx, "appId", sig.AppId)
	}
	return handler(ctx, req)
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

func RegisterEntitiesServer(s grpc.ServiceRegistrar, srv EntitiesServer) {
	s.RegisterService(&entitiesServiceDesc, srv)
}

type entitiesServer struct {
	store     entities.Store
	grants    Grants
	allowlist Allowlist
}

func (s *entitiesServer) authorize(ctx context.Context, table string) error {
	sig, ok := hmac.FromContext(ctx)
	if !ok {
		return apierror.ErrAuthFailed
	}
	if !s.allowlist.Allows(sig.AppId, peerAddr(ctx)) {
		entry.Logger(ctx).Warn("Client address is not allowlisted")
		return apierror.New(apierror.ErrPermissionDenied, "Client address is not allowed")
	}
	if table == "" {
		return apierror.New(apierror.ErrParamMissing, "table is required")
	}
	if !s.grants.Allows(sig.AppId, table) {
		return apierror.New(apierror.ErrPermissionDenied, "No access to this entity")
	}
	return nil
}

func (s *entitiesServer) List(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	table := fields["table"].GetStringValue()
	if err := s.authorize(ctx, table); err != nil {
		return nil, statusFromError(ctx, err)
	}

	opts := entities.ListOptions{
		Page:     intField(fields["page"]),
		PageSize: intField(fields["pageSize"]),
		Filters:  make(map[string]string),
	}
	for k, v := range fields["filters"].GetStructValue().GetFields() {
		opts.Filters[k] = v.GetStringValue()
	}

	records, total, err := s.store.List(ctx, table, opts)
	if err != nil {
		return nil, statusFromError(ctx, storeError(err))
	}
	return toStruct(map[string]any{"data": records, "total": total})
}

func (s *entitiesServer) Get(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	table := fields["table"].GetStringValue()
	if err := s.authorize(ctx, table); err != nil {
		return nil, statusFromError(ctx, err)
	}
	id := int64(intField(fields["id"]))
	if id < 1 {
		return nil, statusFromError(ctx, apierror.New(apierror.ErrParamInvalid, "id must be a positive integer"))
	}

	record, err := s.store.Get(ctx, table, id)
	if err != nil {
		return nil, statusFromError(ctx, storeError(err))
	}
	return toStruct(map[string]any{"data": record})
}

// intField converts a numeric field to an int, saturating values that don't fit.
// Missing and non-numeric fields are 0.
func intField(v *structpb.Value) int {
	f := v.GetNumberValue()
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= math.MinInt:
		return math.MinInt
	}
	return int(f)
}

// toStruct converts v to a Struct via its JSON form, so that values like time.Time are
// rendered exactly as they are over HTTP
func toStruct(v map[string]any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func storeError(err error) error {
	switch {
	case errors.Is(err, entities.ErrNotFound):
		return apierror.ErrNotFound
	case errors.Is(err, entities.ErrUnknownTable):
		return apierror.New(apierror.ErrNotFound, "Entity table not found")
	case errors.Is(err, entities.ErrPageOutOfRange):
		return apierror.New(apierror.ErrParamInvalid, "page is out of range")
	}
	return err
}

// statusFromError converts an API error to a gRPC status whose code corresponds to the
// HTTP status of the error code, noting the error code in the call's event
func statusFromError(ctx context.Context, err error) error {
	code, message := apierror.FromError(err)
	noteErrorCode(ctx, code)
	if code == apierror.ErrSystemError {
		entry.Logger(ctx).Error("Request failed", "error", err)
	}
	c := codes.Internal
	switch code.HTTPStatus() {
	case http.StatusBadRequest:
		c = codes.InvalidArgument
	case http.StatusUnauthorized:
		c = codes.Unauthenticated
	case http.StatusForbidden:
		c = codes.PermissionDenied
	case http.StatusNotFound:
		c = codes.NotFound
	}
	return status.Errorf(c, "[%s] %s", code.Code(), message)
}

func httpStatusFromCode(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unaryHandler(method string, call func(srv EntitiesServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(EntitiesServer), ctx, req.(*structpb.Struct))
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: method}, handler)
	}
}

var entitiesServiceDesc = grpc.ServiceDesc{
	ServiceName: EntitiesServiceName,
	HandlerType: (*EntitiesServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "List",
			Handler:    unaryHandler(EntitiesListMethod, EntitiesServer.List),
		},
		{
			MethodName: "Get",
			Handler:    unaryHandler(EntitiesGetMethod, EntitiesServer.Get),
		},
	},
	Metadata: "openapi/v1/entities.proto",
}

// EntitiesClient calls the Entities service. Pair it with a connection that uses
// hmac.UnaryClientInterceptor so that every call is signed.
type EntitiesClient struct {
	cc grpc.ClientConnInterface
}

func NewEntitiesClient(cc grpc.ClientConnInterface) *EntitiesClient {
	return &EntitiesClient{cc: cc}
}

func (c *EntitiesClient) List(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, EntitiesListMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EntitiesClient) Get(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, EntitiesGetMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
