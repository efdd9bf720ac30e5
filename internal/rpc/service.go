// Package rpc describes the dermalink.v1.Dermalink gRPC service and binds
// its methods to the handler.
package rpc

import (
	"context"

	"google.golang.org/grpc"

	"dermalink-api/internal/api"
	"dermalink-api/internal/handler"
)

const ServiceName = "dermalink.v1.Dermalink"

// Method is one unary RPC of the service.
type Method struct {
	Name   string
	NewReq func() any
	call   func(h *handler.Handler, ctx context.Context, req any) (any, error)
}

// Invoke runs the method on h, passing through icpt when it is not nil.
func (m Method) Invoke(h *handler.Handler, ctx context.Context, req any, icpt grpc.UnaryServerInterceptor) (any, error) {
	if icpt == nil {
		return m.call(h, ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: h, FullMethod: FullMethod(m.Name)}
	return icpt(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return m.call(h, ctx, req)
	})
}

func unary[Req, Resp any](name string, fn func(*handler.Handler, context.Context, *Req) (*Resp, error)) Method {
	return Method{
		Name:   name,
		NewReq: func() any { return new(Req) },
		call: func(h *handler.Handler, ctx context.Context, req any) (any, error) {
			return fn(h, ctx, req.(*Req))
		},
	}
}

var methods = []Method{
	unary("Register", (*handler.Handler).Register),
	unary("Login", (*handler.Handler).Login),
	unary("Refresh", (*handler.Handler).Refresh),
	unary("Logout", (*handler.Handler).Logout),

	unary("GetProfile", (*handler.Handler).GetProfile),
	unary("UpdateProfile", (*handler.Handler).UpdateProfile),
	unary("UpsertExpertProfile", (*handler.Handler).UpsertExpertProfile),
	unary("ListExperts", (*handler.Handler).ListExperts),
	unary("GetExpert", (*handler.Handler).GetExpert),
	unary("GetAvailability", (*handler.Handler).GetAvailability),
	unary("SetAvailability", (*handler.Handler).SetAvailability),

	unary("BookAppointment", (*handler.Handler).BookAppointment),
	unary("ListMyAppointments", (*handler.Handler).ListMyAppointments),
	unary("ListExpertAppointments", (*handler.Handler).ListExpertAppointments),
	unary("GetAppointment", (*handler.Handler).GetAppointment),
	unary("UpdateAppointmentStatus", (*handler.Handler).UpdateAppointmentStatus),

	unary("CreateProduct", (*handler.Handler).CreateProduct),
	unary("ListProducts", (*handler.Handler).ListProducts),
	unary("GetProduct", (*handler.Handler).GetProduct),
	unary("CreateReview", (*handler.Handler).CreateReview),
	unary("ListReviews", (*handler.Handler).ListReviews),

	unary("CreateResource", (*handler.Handler).CreateResource),
	unary("ListResources", (*handler.Handler).ListResources),
	unary("GetResource", (*handler.Handler).GetResource),
	unary("LikeResource", (*handler.Handler).LikeResource),
	unary("UnlikeResource", (*handler.Handler).UnlikeResource),
	unary("AddComment", (*handler.Handler).AddComment),
	unary("ListComments", (*handler.Handler).ListComments),
	unary("DeleteComment", (*handler.Handler).DeleteComment),

	unary("AddHistory", (*handler.Handler).AddHistory),
	unary("ListHistory", (*handler.Handler).ListHistory),
	unary("DeleteHistory", (*handler.Handler).DeleteHistory),
	unary("AddResourceFeed", (*handler.Handler).AddResourceFeed),
	unary("ListResourceFeeds", (*handler.Handler).ListResourceFeeds),
}

var byName = func() map[string]Method {
	m := make(map[string]Method, len(methods))
	for _, md := range methods {
		m[md.Name] = md
	}
	return m
}()

// FullMethod returns "/dermalink.v1.Dermalink/<name>".
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// Lookup finds a method by its short name.
func Lookup(name string) (Method, bool) {
	m, ok := byName[name]
	return m, ok
}

// Methods lists every method in declaration order.
func Methods() []Method {
	return append([]Method(nil), methods...)
}

// OpenMethods need no access token. They are also the rate-limited ones.
func OpenMethods() map[string]bool {
	return map[string]bool{
		FullMethod("Register"): true,
		FullMethod("Login"):    true,
		FullMethod("Refresh"):  true,
	}
}

// server is the type grpc checks the registered implementation against.
type server interface {
	Register(context.Context, *api.RegisterRequest) (*api.RegisterResponse, error)
	Login(context.Context, *api.LoginRequest) (*api.LoginResponse, error)
}

func ServiceDesc() *grpc.ServiceDesc {
	sd := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*server)(nil),
	}
	for _, m := range methods {
		sd.Methods = append(sd.Methods, grpc.MethodDesc{
			MethodName: m.Name,
			Handler: func(srv any, ctx context.Context, dec func(any) error, icpt grpc.UnaryServerInterceptor) (any, error) {
				in := m.NewReq()
				if err := dec(in); err != nil {
					return nil, err
				}
				return m.Invoke(srv.(*handler.Handler), ctx, in, icpt)
			},
		})
	}
	return sd
}

// Register attaches h to s.
func Register(s *grpc.Server, h *handler.Handler) {
	s.RegisterService(ServiceDesc(), h)
}
