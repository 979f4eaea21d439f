package control

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDHeader carries the request id in call metadata.
const RequestIDHeader = "x-request-id"

// RequestID returns the id of the call handled with ctx. It is empty
// outside the logging interceptor.
func RequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDHeader); len(ids) > 0 {
			return ids[0]
		}
	}
	return ""
}

// LoggingInterceptor logs every call with its request id, status code and
// duration. Calls without a request id are assigned one, which is also
// returned to the client as a header.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := RequestID(ctx)
		if id == "" {
			id = uuid.NewString()
			md, _ := metadata.FromIncomingContext(ctx)
			md = md.Copy()
			md.Set(RequestIDHeader, id)
			ctx = metadata.NewIncomingContext(ctx, md)
		}
		if err := grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id)); err != nil {
			log.Debug().Err(err).Str("request_id", id).Msg("failed to set request id header")
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		var ev *zerolog.Event
		switch code {
		case codes.OK:
			ev = log.Info()
		case codes.Internal, codes.Unknown:
			ev = log.Error().Err(err)
		default:
			ev = log.Warn().Err(err)
		}
		ev.Str("request_id", id).
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("control call")
		return resp, err
	}
}

// RecoveryInterceptor turns a panicking handler into an Internal error.
func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("method", info.FullMethod).Interface("panic", r).Msg("control handler panicked")
				err = status.Error(codes.Internal, fmt.Sprintf("panic: %v", r))
			}
		}()
		return handler(ctx, req)
	}
}
