package hmac

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const echoMethod = "/openapi.test.Echo/Echo"

type echoServer interface {
	Echo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type echo struct{}

// Echo returns the request fields along with the app id that signed the request
func (echo) Echo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	out := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	for k, v := range in.GetFields() {
		out.Fields[k] = v
	}
	if sig, ok := FromContext(ctx); ok {
		out.Fields["appId"] = structpb.NewStringValue(sig.AppId)
	}
	return out, nil
}

var echoServiceDesc = grpc.ServiceDesc{
	ServiceName: "openapi.test.Echo",
	HandlerType: (*echoServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Echo",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(structpb.Struct)
				if err := dec(in); err != nil {
					return nil, err
				}
				handler := func(ctx context.Context, req any) (any, error) {
					return srv.(echoServer).Echo(ctx, req.(*structpb.Struct))
				}
				if interceptor == nil {
					return handler(ctx, in)
				}
				return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: echoMethod}, handler)
			},
		},
	},
}

func startEchoServer(t *testing.T, v Verifier) *bufconn.Listener {
	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer(grpc.UnaryInterceptor(UnaryServerInterceptor(v)))
	s.RegisterService(&echoServiceDesc, echo{})
	go s.Serve(lis)
	t.Cleanup(s.Stop)
	return lis
}

func dialEchoServer(t *testing.T, lis *bufconn.Listener, opts ...grpc.DialOption) *grpc.ClientConn {
	opts = append(opts,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	conn, err := grpc.NewClient("passthrough:///bufnet", opts...)
	assert.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func Test_GRPCInterceptors(t *testing.T) {
	verifier := NewVerifier(StaticSecrets{testAppId: testAppSecret}, WithNonceStore(&memoryNonces{}, time.Minute))
	lis := startEchoServer(t, verifier)

	credential, err := NewCredential(testAppId, testAppSecret)
	assert.NoError(t, err)

	t.Run("signed calls are verified and the app id is passed to the handler", func(t *testing.T) {
		conn := dialEchoServer(t, lis, grpc.WithUnaryInterceptor(UnaryClientInterceptor(NewSigner(credential))))
		in, err := structpb.NewStruct(map[string]any{"table": "product", "page": 1})
		assert.NoError(t, err)

		out := new(structpb.Struct)
		err = conn.Invoke(context.Background(), echoMethod, in, out)
		assert.NoError(t, err)
		assert.Equal(t, "product", out.Fields["table"].GetStringValue())
		assert.Equal(t, testAppId, out.Fields["appId"].GetStringValue())
	})

	t.Run("unsigned calls are rejected", func(t *testing.T) {
		conn := dialEchoServer(t, lis)
		err := conn.Invoke(context.Background(), echoMethod, &structpb.Struct{}, new(structpb.Struct))
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("calls signed with the wrong secret are rejected", func(t *testing.T) {
		wrong, err := NewCredential(testAppId, "not_the_secret")
		assert.NoError(t, err)
		conn := dialEchoServer(t, lis, grpc.WithUnaryInterceptor(UnaryClientInterceptor(NewSigner(wrong))))
		err = conn.Invoke(context.Background(), echoMethod, &structpb.Struct{}, new(structpb.Struct))
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("replayed nonces are rejected", func(t *testing.T) {
		fixed := NewSigner(credential, WithNonceSource(func() (string, error) { return "ffffffffffffffffffffffffffffffff", nil }))
		conn := dialEchoServer(t, lis, grpc.WithUnaryInterceptor(UnaryClientInterceptor(fixed)))
		err := conn.Invoke(context.Background(), echoMethod, &structpb.Struct{}, new(structpb.Struct))
		assert.NoError(t, err)
		err = conn.Invoke(context.Background(), echoMethod, &structpb.Struct{}, new(structpb.Struct))
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})
}
