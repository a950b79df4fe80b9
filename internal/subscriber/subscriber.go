package subscriber

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/domain"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Subscribed
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Subscribed:
		return "subscribed"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Ingester consumes one broker message.
type Ingester interface {
	FromMQTT(ctx context.Context, topic string, payload []byte) (int64, error)
}

// Alerter is told when the broker connection drops.
type Alerter interface {
	SendConnectionLostAlert(broker, topic string, cause error) error
}

type Options struct {
	Broker       string
	ClientID     string
	Topic        string
	QoS          byte
	Username     string
	Password     string
	QueueSize    int
	WriteTimeout time.Duration
	Alerter      Alerter

	// NewClient builds the paho client. Defaults to mqtt.NewClient.
	NewClient func(*mqtt.ClientOptions) mqtt.Client
}

type Stats struct {
	Received  uint64 `json:"received"`
	Stored    uint64 `json:"stored"`
	Malformed uint64 `json:"malformed"`
	Failed    uint64 `json:"failed"`
}

const subscribeTimeout = 10 * time.Second

type message struct {
	topic   string
	payload []byte
}

// Subscriber keeps one broker subscription alive and feeds every message, in arrival
// order, through a bounded queue to a single writer goroutine.
type Subscriber struct {
	opts   Options
	ingest Ingester
	log    zerolog.Logger
	client mqtt.Client

	state     atomic.Int32
	queue     chan message
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	received  atomic.Uint64
	stored    atomic.Uint64
	malformed atomic.Uint64
	failed    atomic.Uint64
}

func New(opts Options, ingest Ingester, logger zerolog.Logger) *Subscriber {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.NewClient == nil {
		opts.NewClient = mqtt.NewClient
	}

	s := &Subscriber{
		opts:   opts,
		ingest: ingest,
		log:    logger.With().Str("component", "subscriber").Str("topic", opts.Topic).Logger(),
		queue:  make(chan message, opts.QueueSize),
		done:   make(chan struct{}),
	}
	s.state.Store(int32(Disconnected))

	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetKeepAlive(30 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionAttemptHandler(s.onConnectAttempt).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost).
		SetReconnectingHandler(s.onReconnecting)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	s.client = opts.NewClient(co)
	return s
}

// Start launches the writer and begins connecting. It does not wait for the broker:
// paho keeps retrying in the background until Close.
func (s *Subscriber) Start() {
	s.wg.Add(1)
	go s.writer()

	s.setState(Connecting)
	token := s.client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			s.log.Error().Err(fmt.Errorf("%w: %w", domain.ErrConnectionFailure, err)).Msg("broker connect failed")
		}
	}()
}

// Close stops callbacks, lets the writer drain the queue and finish its in-flight append.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(Closed))

		if s.client.IsConnectionOpen() {
			if t := s.client.Unsubscribe(s.opts.Topic); !t.WaitTimeout(2*time.Second) || t.Error() != nil {
				s.log.Warn().Err(t.Error()).Msg("unsubscribe did not complete")
			}
		}
		s.client.Disconnect(250)

		close(s.done)
		s.wg.Wait()

		st := s.Stats()
		s.log.Info().
			Uint64("received", st.Received).
			Uint64("stored", st.Stored).
			Uint64("malformed", st.Malformed).
			Uint64("failed", st.Failed).
			Msg("subscriber closed")
	})
}

func (s *Subscriber) State() State { return State(s.state.Load()) }

// Connected reports whether the broker connection is up, subscribed or not.
func (s *Subscriber) Connected() bool {
	st := s.State()
	return st == Connected || st == Subscribed
}

func (s *Subscriber) Subscribed() bool { return s.State() == Subscribed }

func (s *Subscriber) Stats() Stats {
	return Stats{
		Received:  s.received.Load(),
		Stored:    s.stored.Load(),
		Malformed: s.malformed.Load(),
		Failed:    s.failed.Load(),
	}
}

// setState never leaves Closed.
func (s *Subscriber) setState(next State) {
	for {
		cur := s.state.Load()
		if State(cur) == Closed {
			return
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			if State(cur) != next {
				s.log.Debug().Stringer("from", State(cur)).Stringer("to", next).Msg("state changed")
			}
			return
		}
	}
}

func (s *Subscriber) onConnectAttempt(broker *url.URL, tlsCfg *tls.Config) *tls.Config {
	s.setState(Connecting)
	s.log.Debug().Str("broker", broker.String()).Msg("connecting to broker")
	return tlsCfg
}

// transition moves to next only from one of the listed states. It reports whether it did.
func (s *Subscriber) transition(next State, from ...State) bool {
	for _, f := range from {
		if s.state.CompareAndSwap(int32(f), int32(next)) {
			s.log.Debug().Stringer("from", f).Stringer("to", next).Msg("state changed")
			return true
		}
	}
	return false
}

func (s *Subscriber) onConnect(c mqtt.Client) {
	if !s.transition(Connected, Connecting, Disconnected) {
		s.log.Warn().Stringer("state", s.State()).Msg("ignoring stale connect")
		return
	}
	s.log.Info().Str("broker", s.opts.Broker).Msg("connected to broker")

	token := c.Subscribe(s.opts.Topic, s.opts.QoS, s.onMessage)
	var err error
	if !token.WaitTimeout(subscribeTimeout) {
		err = errors.New("timed out waiting for SUBACK")
	} else if err = token.Error(); err == nil {
		if st, ok := token.(*mqtt.SubscribeToken); ok {
			err = subackError(st.Result())
		}
	}
	if err != nil {
		s.log.Error().Err(fmt.Errorf("%w: %w", domain.ErrSubscriptionFailure, err)).Msg("subscribe failed")
		return
	}

	// The link may have dropped while waiting for SUBACK; Reconnecting wins.
	if !s.transition(Subscribed, Connected) {
		s.log.Warn().Stringer("state", s.State()).Msg("connection changed during subscribe")
		return
	}
	s.log.Info().Uint8("qos", s.opts.QoS).Msg("subscribed")
}

// subackError reports the first topic the broker refused (return code 0x80).
func subackError(result map[string]byte) error {
	for topic, code := range result {
		if code == 0x80 {
			return fmt.Errorf("broker rejected subscription to %q", topic)
		}
	}
	return nil
}

func (s *Subscriber) onConnectionLost(_ mqtt.Client, cause error) {
	s.setState(Reconnecting)
	s.log.Warn().Err(fmt.Errorf("%w: %w", domain.ErrConnectionFailure, cause)).Msg("broker connection lost")

	if s.opts.Alerter != nil {
		go func() {
			if err := s.opts.Alerter.SendConnectionLostAlert(s.opts.Broker, s.opts.Topic, cause); err != nil {
				s.log.Error().Err(err).Msg("connection-lost alert failed")
			}
		}()
	}
}

func (s *Subscriber) onReconnecting(_ mqtt.Client, _ *mqtt.ClientOptions) {
	s.setState(Reconnecting)
	s.log.Info().Msg("reconnecting to broker")
}

// onMessage runs on paho's goroutine. A full queue blocks it rather than dropping.
func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.received.Add(1)
	m := message{topic: msg.Topic(), payload: append([]byte(nil), msg.Payload()...)}

	select {
	case s.queue <- m:
		return
	default:
	}

	s.log.Warn().Int("capacity", cap(s.queue)).Msg("ingest queue full")
	select {
	case s.queue <- m:
	case <-s.done:
		s.failed.Add(1)
		s.log.Error().Msg("subscriber closed before message was queued")
	}
}

func (s *Subscriber) writer() {
	defer s.wg.Done()
	for {
		select {
		case m := <-s.queue:
			s.handle(m)
		case <-s.done:
			for {
				select {
				case m := <-s.queue:
					s.handle(m)
				default:
					return
				}
			}
		}
	}
}

func (s *Subscriber) handle(m message) {
	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			s.log.Error().Interface("panic", r).Str("payload", string(m.payload)).Msg("ingest panicked, message dropped")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	defer cancel()

	_, err := s.ingest.FromMQTT(ctx, m.topic, m.payload)
	switch {
	case err == nil:
		s.stored.Add(1)
	case errors.Is(err, domain.ErrMalformedPayload):
		s.malformed.Add(1)
		s.log.Warn().Err(err).Str("payload", string(m.payload)).Msg("discarding malformed message")
	default:
		s.failed.Add(1)
		s.log.Error().Err(err).Msg("reading dropped")
	}
}
