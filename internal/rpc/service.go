// Package rpc exposes the internal gRPC surface used by other backend
// services. Messages are google.protobuf.Struct so no generated stubs are
// needed.
package rpc

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"support-chat/internal/models"
	"support-chat/internal/observability"
	"support-chat/internal/repositories"
	"support-chat/internal/telemetry"
)

const (
	ServiceName         = "support.v1.SupportInternal"
	purgeIdentityMethod = "/" + ServiceName + "/PurgeIdentity"
)

// SupportInternalServer is the server API of support.v1.SupportInternal.
type SupportInternalServer interface {
	PurgeIdentity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// IdentityPurger deletes all support data of an identity.
type IdentityPurger interface {
	PurgeIdentity(ctx context.Context, identity models.Identity) (repositories.DeleteResult, error)
}

// ScrollbackEvictor drops realtime frames of a purged identity.
type ScrollbackEvictor interface {
	ForgetIdentity(identity models.Identity) int
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SupportInternalServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PurgeIdentity", Handler: purgeIdentityHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "support/v1/internal.proto",
}

func purgeIdentityHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SupportInternalServer).PurgeIdentity(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: purgeIdentityMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SupportInternalServer).PurgeIdentity(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterSupportInternalServer registers srv on s.
func RegisterSupportInternalServer(s grpc.ServiceRegistrar, srv SupportInternalServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Service implements SupportInternalServer on top of the conversation store.
type Service struct {
	purger     IdentityPurger
	scrollback ScrollbackEvictor
	audit      *telemetry.AuditEmitter
}

// NewService builds a Service. scrollback and audit may be nil.
func NewService(purger IdentityPurger, scrollback ScrollbackEvictor, audit *telemetry.AuditEmitter) *Service {
	return &Service{purger: purger, scrollback: scrollback, audit: audit}
}

// PurgeIdentity expects user_id and/or email and answers with
// conversations_deleted and messages_deleted.
func (s *Service) PurgeIdentity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	identity := models.Identity{
		UserID: fields["user_id"].GetStringValue(),
		Email:  fields["email"].GetStringValue(),
	}.Normalize()
	if identity.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "user_id or email is required")
	}

	res, err := s.purger.PurgeIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, repositories.ErrValidation) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		log.Error().Err(err).Str("user_id", identity.UserID).Msg("grpc purge identity failed")
		return nil, status.Error(codes.Internal, "purge failed")
	}

	if s.scrollback != nil {
		s.scrollback.ForgetIdentity(identity)
	}

	var userID *string
	if identity.UserID != "" {
		userID = &identity.UserID
	}
	s.audit.Emit(ctx, "INFO", "identity purged", "", userID, map[string]any{
		"source":                "grpc",
		"email":                 identity.Email,
		"conversations_deleted": res.Conversations,
		"messages_deleted":      res.Messages,
	})
	_ = observability.PublishEvent(ctx, observability.RoutingDomainEvents, observability.EventEnvelope{
		EventType: "domain_events",
		EventName: "identity_purged",
		Payload: map[string]interface{}{
			"user_id":               identity.UserID,
			"email":                 identity.Email,
			"conversations_deleted": res.Conversations,
			"messages_deleted":      res.Messages,
		},
	}, nil)

	return structpb.NewStruct(map[string]interface{}{
		"conversations_deleted": float64(res.Conversations),
		"messages_deleted":      float64(res.Messages),
	})
}
