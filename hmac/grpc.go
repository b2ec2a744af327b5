package hmac

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// UnaryClientInterceptor signs every outgoing unary RPC, treating it as a POST to the
// full method name whose body is the deterministic protobuf encoding of the request
// message. The signature is carried in lower-cased metadata keys named after the HTTP
// headers.
func UnaryClientInterceptor(s Signer) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		body, err := marshalMessage(req)
		if err != nil {
			return &EncodingError{Err: err}
		}
		sig, err := s.SignRequest(Request{
			Method: http.MethodPost,
			Path:   method,
			Body:   body,
		})
		if err != nil {
			return err
		}
		ctx = metadata.AppendToOutgoingContext(ctx,
			strings.ToLower(HeaderAppId), sig.AppId,
			strings.ToLower(HeaderTimestamp), strconv.FormatInt(sig.Timestamp, 10),
			strings.ToLower(HeaderNonce), sig.Nonce,
			strings.ToLower(HeaderSignature), sig.Value,
		)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// UnaryServerInterceptor verifies the signature of every incoming unary RPC before
// invoking its handler, rejecting unsigned or invalid calls with Unauthenticated. The
// verified signature is available to handlers via FromContext.
func UnaryServerInterceptor(v Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		sig, err := ParseSignature(func(key string) string {
			if values := md.Get(key); len(values) > 0 {
				return values[0]
			}
			return ""
		})
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		body, err := marshalMessage(req)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}

		err = v.Verify(ctx, Request{
			Method: http.MethodPost,
			Path:   info.FullMethod,
			Body:   body,
		}, sig)
		if err != nil {
			if errors.Is(err, ErrVerificationFailed) {
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
			return nil, status.Error(codes.Internal, err.Error())
		}
		return handler(NewContext(ctx, sig), req)
	}
}

func marshalMessage(m any) ([]byte, error) {
	msg, ok := m.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%T is not a protobuf message", m)
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(msg)
}
