package gate

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/StricklySoft/accessgate/pkg/auth"
)

// UnaryServerInterceptor returns a gRPC unary interceptor enforcing
// policy. The bearer token is read from the "authorization" metadata and
// the client IP from the same proxy headers the HTTP middleware uses.
// Policy.Route defaults to the full method name.
//
// Denials map to status codes as follows:
//
//	401 -> Unauthenticated
//	403 -> PermissionDenied
//	429 -> ResourceExhausted
//	503 -> Unavailable
func (g *Gate) UnaryServerInterceptor(policy Policy) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := g.checkGRPC(ctx, policy, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// [Gate.UnaryServerInterceptor]. The policy is checked once when the
// stream opens.
func (g *Gate) StreamServerInterceptor(policy Policy) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := g.checkGRPC(ss.Context(), policy, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func (g *Gate) checkGRPC(ctx context.Context, policy Policy, fullMethod string) (context.Context, error) {
	if policy.Route == "" {
		policy.Route = fullMethod
	}
	md, _ := metadata.FromIncomingContext(ctx)
	principal, denial := g.Check(ctx, headerFromMetadata(md), policy)
	if denial != nil {
		return ctx, denial.GRPCStatus().Err()
	}
	return auth.ContextWithPrincipal(ctx, principal), nil
}

// GRPCStatus converts the denial to a gRPC status carrying the public
// code and message. The grpc status package recognises this method, so a
// *Denial returned as an error keeps its status code.
func (d *Denial) GRPCStatus() *status.Status {
	return status.New(grpcCode(d.Status), d.Code+": "+d.Message)
}

func grpcCode(httpStatus int) codes.Code {
	switch httpStatus {
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case http.StatusServiceUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func headerFromMetadata(md metadata.MD) http.Header {
	h := make(http.Header, len(md))
	for k, vs := range md {
		h[http.CanonicalHeaderKey(k)] = vs
	}
	return h
}

// wrappedServerStream carries the context holding the principal.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
