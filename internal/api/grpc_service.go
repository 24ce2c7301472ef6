package api

import (
	"context"
	"encoding/json"
	"errors"

	"hairstudio/internal/domain"
	"hairstudio/internal/models"
	"hairstudio/internal/slots"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

const (
	calendarServiceName = "studio.calendar.v1.CalendarService"

	methodGetSlots         = "/" + calendarServiceName + "/GetSlots"
	methodListAvailability = "/" + calendarServiceName + "/ListAvailability"
	methodListAppointments = "/" + calendarServiceName + "/ListAppointments"

	// JSONCodecName is the content-subtype clients select with grpc.CallContentSubtype.
	JSONCodecName = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries plain Go structs over gRPC without generated protobuf types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

type GetSlotsRequest struct {
	Date      string `json:"date"`
	Duration  int    `json:"duration"`
	NotBefore string `json:"not_before,omitempty"`
}

type GetSlotsResponse struct {
	Date   string   `json:"date"`
	Status string   `json:"status"`
	Slots  []string `json:"slots"`
}

type ListAvailabilityRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ListAvailabilityResponse struct {
	Availability []*models.Availability `json:"availability"`
}

type ListAppointmentsRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Status string `json:"status,omitempty"`
}

type ListAppointmentsResponse struct {
	Appointments []*models.Appointment `json:"appointments"`
}

// CalendarServer is the read-only calendar RPC surface.
type CalendarServer interface {
	GetSlots(ctx context.Context, req *GetSlotsRequest) (*GetSlotsResponse, error)
	ListAvailability(ctx context.Context, req *ListAvailabilityRequest) (*ListAvailabilityResponse, error)
	ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsResponse, error)
}

var calendarServiceDesc = grpc.ServiceDesc{
	ServiceName: calendarServiceName,
	HandlerType: (*CalendarServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSlots", Handler: getSlotsHandler},
		{MethodName: "ListAvailability", Handler: listAvailabilityHandler},
		{MethodName: "ListAppointments", Handler: listAppointmentsHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterCalendarServer(s grpc.ServiceRegistrar, srv CalendarServer) {
	s.RegisterService(&calendarServiceDesc, srv)
}

func getSlotsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetSlotsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalendarServer).GetSlots(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetSlots}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CalendarServer).GetSlots(ctx, req.(*GetSlotsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListAvailabilityRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalendarServer).ListAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListAvailability}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CalendarServer).ListAvailability(ctx, req.(*ListAvailabilityRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listAppointmentsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListAppointmentsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalendarServer).ListAppointments(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListAppointments}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CalendarServer).ListAppointments(ctx, req.(*ListAppointmentsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// CalendarService adapts domain.CalendarService to the RPC surface.
type CalendarService struct {
	calendar domain.CalendarService
	log      zerolog.Logger
}

func NewCalendarService(calendar domain.CalendarService, logger *zerolog.Logger) *CalendarService {
	svc := &CalendarService{calendar: calendar, log: zerolog.Nop()}
	if logger != nil {
		svc.log = logger.With().Str("component", "grpc_calendar").Logger()
	}
	return svc
}

func (s *CalendarService) GetSlots(ctx context.Context, req *GetSlotsRequest) (*GetSlotsResponse, error) {
	if req.Date == "" {
		return nil, status.Error(codes.InvalidArgument, "date is required")
	}

	dayStatus, result, err := s.calendar.DayStatus(ctx, req.Date, req.Duration)
	if err != nil {
		return nil, s.toStatus(err)
	}

	if req.NotBefore != "" {
		result, err = slots.NotBefore(result, req.NotBefore)
		if err != nil {
			return nil, s.toStatus(err)
		}
		if dayStatus == slots.DayOpen && len(result) == 0 {
			dayStatus = slots.DayFullyBooked
		}
	}

	return &GetSlotsResponse{Date: req.Date, Status: dayStatus, Slots: result}, nil
}

func (s *CalendarService) ListAvailability(ctx context.Context, req *ListAvailabilityRequest) (*ListAvailabilityResponse, error) {
	list, err := s.calendar.ListAvailability(ctx, req.From, req.To)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &ListAvailabilityResponse{Availability: list}, nil
}

func (s *CalendarService) ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsResponse, error) {
	list, err := s.calendar.ListAppointments(ctx, req.From, req.To, req.Status)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &ListAppointmentsResponse{Appointments: list}, nil
}

func (s *CalendarService) toStatus(err error) error {
	code := domain.ErrorCode(err)
	switch code {
	case domain.CodeNotFound:
		return status.Error(codes.NotFound, domain.ErrorMessage(err))
	case domain.CodeInvalidFormat, domain.CodeInvalidInput:
		return status.Error(codes.InvalidArgument, domain.ErrorMessage(err))
	case domain.CodeDateClosed, domain.CodeSlotUnavailable, domain.CodeDayHasAppointments, domain.CodeAlreadyCancelled:
		return status.Error(codes.FailedPrecondition, domain.ErrorMessage(err))
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	s.log.Error().Err(err).Msg("calendar call failed")
	return status.Error(codes.Internal, domain.ErrorMessage(err))
}

// CalendarClient calls CalendarServer over a connection using the JSON codec.
type CalendarClient struct {
	cc grpc.ClientConnInterface
}

func NewCalendarClient(cc grpc.ClientConnInterface) *CalendarClient {
	return &CalendarClient{cc: cc}
}

func (c *CalendarClient) GetSlots(ctx context.Context, in *GetSlotsRequest, opts ...grpc.CallOption) (*GetSlotsResponse, error) {
	out := new(GetSlotsResponse)
	if err := c.cc.Invoke(ctx, methodGetSlots, in, out, c.callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CalendarClient) ListAvailability(ctx context.Context, in *ListAvailabilityRequest, opts ...grpc.CallOption) (*ListAvailabilityResponse, error) {
	out := new(ListAvailabilityResponse)
	if err := c.cc.Invoke(ctx, methodListAvailability, in, out, c.callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CalendarClient) ListAppointments(ctx context.Context, in *ListAppointmentsRequest, opts ...grpc.CallOption) (*ListAppointmentsResponse, error) {
	out := new(ListAppointmentsResponse)
	if err := c.cc.Invoke(ctx, methodListAppointments, in, out, c.callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CalendarClient) callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
}
