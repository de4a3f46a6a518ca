package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"IndexBridge/internal/protocol"
)

const bridgeStream = "BRIDGE_MESSAGES"

// SubjectForChain returns the JetStream subject a chain node consumes.
func SubjectForChain(chain protocol.ChainID) string {
	return fmt.Sprintf("bridge.chain.%d", chain)
}

type wireDelivery struct {
	DeliveryID    string      `json:"delivery_id"`
	SourceChain   uint16      `json:"source_chain"`
	SourceAddress string      `json:"source_address"`
	TargetAddress string      `json:"target_address"`
	Payload       []byte      `json:"payload"`
	Tokens        []wireToken `json:"tokens,omitempty"`
	Fee           uint64      `json:"fee"`
}

type wireToken struct {
	Token  string `json:"token"`
	Amount uint64 `json:"amount"`
}

// NATSRelay moves deliveries between chain nodes over NATS JetStream.
// One durable consumer per chain gives each node an at-least-once,
// unordered stream, which matches the bridging contract the settlement
// core is written against.
type NATSRelay struct {
	js        jetstream.JetStream
	authority protocol.Address
	log       zerolog.Logger
	consumers []jetstream.ConsumeContext
}

func NewNATSRelay(js jetstream.JetStream, authority protocol.Address, log zerolog.Logger) *NATSRelay {
	return &NATSRelay{js: js, authority: authority, log: log}
}

// EnsureStream creates the bridge message stream if it does not exist.
func (r *NATSRelay) EnsureStream(ctx context.Context) error {
	_, err := r.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      bridgeStream,
		Subjects:  []string{"bridge.chain.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", bridgeStream, err)
	}
	r.log.Info().Str("stream", bridgeStream).Msg("ensured bridge stream")
	return nil
}

// Subscribe creates this chain's durable consumer and feeds deliveries
// into out. Malformed frames are logged and acked; they can never
// become processable by redelivery.
func (r *NATSRelay) Subscribe(ctx context.Context, chain protocol.ChainID, out chan<- Delivery) error {
	consumer, err := r.js.CreateOrUpdateConsumer(ctx, bridgeStream, jetstream.ConsumerConfig{
		Durable:       fmt.Sprintf("bridge-node-%d", chain),
		FilterSubject: SubjectForChain(chain),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer for chain %d: %w", chain, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var w wireDelivery
		if err := json.Unmarshal(msg.Data(), &w); err != nil {
			r.log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed frame")
			msg.Ack()
			return
		}

		d := Delivery{
			DeliveryID:    w.DeliveryID,
			SourceChain:   protocol.ChainID(w.SourceChain),
			SourceAddress: protocol.Address(w.SourceAddress),
			TargetAddress: protocol.Address(w.TargetAddress),
			Authority:     r.authority,
			Payload:       w.Payload,
			Ack:           func() { msg.Ack() },
			Nak:           func() { msg.Nak() },
		}
		for _, tok := range w.Tokens {
			d.Tokens = append(d.Tokens, protocol.TokenTransfer{
				Token:  protocol.Address(tok.Token),
				Amount: tok.Amount,
			})
		}

		select {
		case out <- d:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume chain %d: %w", chain, err)
	}

	r.consumers = append(r.consumers, cc)
	r.log.Info().Str("subject", SubjectForChain(chain)).Msg("subscribed")
	return nil
}

// Stop halts all consumers.
func (r *NATSRelay) Stop() {
	for _, cc := range r.consumers {
		cc.Stop()
	}
	r.log.Info().Msg("relay consumers stopped")
}

// Endpoint binds a Sender identity for one local component.
func (r *NATSRelay) Endpoint(sourceChain protocol.ChainID, sourceAddress protocol.Address) Sender {
	return &natsEndpoint{relay: r, chain: sourceChain, address: sourceAddress}
}

type natsEndpoint struct {
	relay   *NATSRelay
	chain   protocol.ChainID
	address protocol.Address
}

func (e *natsEndpoint) publish(ctx context.Context, target protocol.ChainID, w wireDelivery) (string, error) {
	w.DeliveryID = uuid.NewString()
	w.SourceChain = uint16(e.chain)
	w.SourceAddress = string(e.address)

	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("marshal delivery: %w", err)
	}
	if _, err := e.relay.js.Publish(ctx, SubjectForChain(target), data); err != nil {
		return "", fmt.Errorf("publish to chain %d: %w", target, err)
	}
	return w.DeliveryID, nil
}

func (e *natsEndpoint) SendMessage(ctx context.Context, target protocol.ChainID, targetAddress protocol.Address, payload []byte, fee uint64) (string, error) {
	return e.publish(ctx, target, wireDelivery{
		TargetAddress: string(targetAddress),
		Payload:       payload,
		Fee:           fee,
	})
}

func (e *natsEndpoint) SendMessageWithToken(ctx context.Context, target protocol.ChainID, targetAddress protocol.Address, payload []byte, fee uint64, token protocol.TokenTransfer) (string, error) {
	return e.publish(ctx, target, wireDelivery{
		TargetAddress: string(targetAddress),
		Payload:       payload,
		Fee:           fee,
		Tokens:        []wireToken{{Token: string(token.Token), Amount: token.Amount}},
	})
}

// ConnectNATS establishes a NATS connection and returns a JetStream
// context. Reconnects indefinitely with a short backoff.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
