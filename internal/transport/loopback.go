package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"IndexBridge/internal/protocol"
)

// Loopback is an in-memory transport connecting chain nodes inside one
// process. Deliveries are buffered per chain and consumed by each
// node's inbound loop. Used by tests and single-process simulations.
type Loopback struct {
	authority protocol.Address

	mu      sync.Mutex
	inboxes map[protocol.ChainID]chan Delivery

	// failNext, when set, makes the next send fail without dispatching.
	failNext error
}

func NewLoopback(authority protocol.Address) *Loopback {
	return &Loopback{
		authority: authority,
		inboxes:   make(map[protocol.ChainID]chan Delivery),
	}
}

// Register creates the inbox for a chain and returns its delivery
// stream. Registering the same chain twice replaces the inbox.
func (l *Loopback) Register(chain protocol.ChainID) <-chan Delivery {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan Delivery, 256)
	l.inboxes[chain] = ch
	return ch
}

// FailNext makes the next send return err instead of dispatching.
func (l *Loopback) FailNext(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

// Endpoint binds a Sender identity for one local component.
func (l *Loopback) Endpoint(sourceChain protocol.ChainID, sourceAddress protocol.Address) Sender {
	return &loopbackEndpoint{hub: l, chain: sourceChain, address: sourceAddress}
}

func (l *Loopback) dispatch(d Delivery, target protocol.ChainID) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.failNext; err != nil {
		l.failNext = nil
		return "", err
	}

	inbox, ok := l.inboxes[target]
	if !ok {
		return "", fmt.Errorf("no inbox registered for chain %d", target)
	}

	d.DeliveryID = uuid.NewString()
	d.Authority = l.authority
	d.Ack = func() {}
	d.Nak = func() {}

	select {
	case inbox <- d:
		return d.DeliveryID, nil
	default:
		return "", fmt.Errorf("inbox for chain %d is full", target)
	}
}

type loopbackEndpoint struct {
	hub     *Loopback
	chain   protocol.ChainID
	address protocol.Address
}

func (e *loopbackEndpoint) SendMessage(_ context.Context, target protocol.ChainID, targetAddress protocol.Address, payload []byte, _ uint64) (string, error) {
	return e.hub.dispatch(Delivery{
		SourceChain:   e.chain,
		SourceAddress: e.address,
		TargetAddress: targetAddress,
		Payload:       payload,
	}, target)
}

func (e *loopbackEndpoint) SendMessageWithToken(_ context.Context, target protocol.ChainID, targetAddress protocol.Address, payload []byte, _ uint64, token protocol.TokenTransfer) (string, error) {
	return e.hub.dispatch(Delivery{
		SourceChain:   e.chain,
		SourceAddress: e.address,
		TargetAddress: targetAddress,
		Payload:       payload,
		Tokens:        []protocol.TokenTransfer{token},
	}, target)
}
