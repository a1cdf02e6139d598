package rpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"hlcrelay/internal/message"
)

const (
	serviceName   = "hlcrelay.Relay"
	deliverMethod = "/" + serviceName + "/Deliver"
)

// relayServer is the server API of the Relay service.
type relayServer interface {
	Deliver(ctx context.Context, msg *message.Message) (*ack, error)
}

var relayServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*relayServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    deliverHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hlcrelay/relay",
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(message.Message)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(relayServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: deliverMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(relayServer).Deliver(ctx, req.(*message.Message))
	}
	return interceptor(ctx, in, info, handler)
}

// InboxServer implements the Relay service for one participant.
type InboxServer struct {
	nodeID string
	inbox  chan<- message.Message
	done   <-chan struct{}
	logger *zap.SugaredLogger
}

// NewInboxServer creates a server that queues messages for nodeID on inbox
// until done is closed.
func NewInboxServer(nodeID string, inbox chan<- message.Message, done <-chan struct{}, logger *zap.SugaredLogger) *InboxServer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &InboxServer{
		nodeID: nodeID,
		inbox:  inbox,
		done:   done,
		logger: logger,
	}
}

// Deliver handles Deliver requests.
func (s *InboxServer) Deliver(ctx context.Context, msg *message.Message) (*ack, error) {
	s.logger.Debugf("[%s] Deliver: id=%s, sender=%s, hlc=%s", s.nodeID, msg.ID, msg.Sender, msg.Timestamp)

	if msg.Target != s.nodeID {
		return nil, status.Errorf(codes.NotFound, "node %s does not serve %s", s.nodeID, msg.Target)
	}

	select {
	case s.inbox <- *msg:
		return &ack{}, nil
	case <-s.done:
		return nil, status.Error(codes.Unavailable, "transport closed")
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}
