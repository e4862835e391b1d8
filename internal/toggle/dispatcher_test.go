package toggle

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/blep/internal/gatt"
)

const testCharUUID = "2a3d"

// DispatcherTestSuite provides testify/suite for proper test isolation
type DispatcherTestSuite struct {
	suite.Suite
	cell       *Cell
	notifier   *recordingNotifier
	dispatcher *Dispatcher
}

func (s *DispatcherTestSuite) SetupTest() {
	s.cell = NewCell()
	s.notifier = &recordingNotifier{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	s.dispatcher = NewDispatcher(s.cell, s.notifier, testCharUUID, logger)
}

func (s *DispatcherTestSuite) write(payload []byte) gatt.Response {
	responder := gatt.NewResponder()
	s.dispatcher.Handle(gatt.WriteRequested{
		Request:   gatt.Request{Central: "aa:bb:cc:dd:ee:ff", CharUUID: testCharUUID},
		Value:     payload,
		Responder: responder,
	})
	select {
	case resp := <-responder.Response():
		return resp
	default:
		s.FailNow("no response sent for write request")
		return gatt.Response{}
	}
}

func (s *DispatcherTestSuite) read() gatt.Response {
	responder := gatt.NewResponder()
	s.dispatcher.Handle(gatt.ReadRequested{
		Request:   gatt.Request{Central: "aa:bb:cc:dd:ee:ff", CharUUID: testCharUUID},
		Responder: responder,
	})
	select {
	case resp := <-responder.Response():
		return resp
	default:
		s.FailNow("no response sent for read request")
		return gatt.Response{}
	}
}

func (s *DispatcherTestSuite) TestWriteSequenceLastTokenWins() {
	// GOAL: Verify the cell equals the last recognized token in arrival order
	//
	// TEST SCENARIO: Sequence of on/off writes → each acknowledged → final
	// state matches the last token

	for _, payload := range []string{"on", "off", "on", "on", "off"} {
		resp := s.write([]byte(payload))
		s.Equal(gatt.StatusSuccess, resp.Status)
	}
	s.Equal(Off, s.cell.Load())
}

func (s *DispatcherTestSuite) TestWriteTrimsWhitespace() {
	resp := s.write([]byte("  on\n"))
	s.Equal(gatt.StatusSuccess, resp.Status)
	s.Equal(On, s.cell.Load())
}

func (s *DispatcherTestSuite) TestWriteIsCaseSensitive() {
	// Remote writes do not normalize case; "ON" is an unrecognized value.
	resp := s.write([]byte("ON"))
	s.Equal(gatt.StatusSuccess, resp.Status)
	s.Equal(Off, s.cell.Load())
}

func (s *DispatcherTestSuite) TestUnrecognizedWriteAcknowledgedWithoutMutation() {
	// GOAL: Verify "always acknowledge" semantics for unrecognized values
	//
	// TEST SCENARIO: Write "maybe" → success response → state unchanged →
	// raw message still forwarded to subscribers

	s.cell.Store(On)
	resp := s.write([]byte("maybe"))
	s.Equal(gatt.StatusSuccess, resp.Status)
	s.Equal(On, s.cell.Load())

	updates := s.notifier.all()
	s.Require().Len(updates, 1)
	s.Equal("maybe", string(updates[0].value))
}

func (s *DispatcherTestSuite) TestNonTextWriteAcknowledgedWithoutMutation() {
	// GOAL: Verify undecodable payloads are acknowledged but have no effect
	//
	// TEST SCENARIO: Write invalid UTF-8 → success response → state
	// unchanged → no notification pushed

	s.cell.Store(On)
	resp := s.write([]byte{0xFF, 0xFE})
	s.Equal(gatt.StatusSuccess, resp.Status)
	s.Equal(On, s.cell.Load())
	s.Empty(s.notifier.all())
}

func (s *DispatcherTestSuite) TestRecognizedWriteNotifiesCanonicalToken() {
	resp := s.write([]byte("  off  "))
	s.Equal(gatt.StatusSuccess, resp.Status)

	updates := s.notifier.all()
	s.Require().Len(updates, 1)
	s.Equal(testCharUUID, updates[0].charUUID)
	s.Equal("off", string(updates[0].value))
}

func (s *DispatcherTestSuite) TestReadReflectsStateAtProcessingTime() {
	// GOAL: Verify every read gets exactly one response matching the cell
	//
	// TEST SCENARIO: Read while OFF → "off"; flip to ON; read → "on"

	resp := s.read()
	s.Equal(gatt.StatusSuccess, resp.Status)
	s.Equal("off", string(resp.Value))

	s.cell.Store(On)
	resp = s.read()
	s.Equal(gatt.StatusSuccess, resp.Status)
	s.Equal("on", string(resp.Value))
}

func (s *DispatcherTestSuite) TestAbandonedResponderDoesNotCrashDispatcher() {
	// GOAL: Verify response-delivery failures are transient, not fatal
	//
	// TEST SCENARIO: Responder abandoned before dispatch → dispatcher logs
	// and continues → next request is served normally

	responder := gatt.NewResponder()
	responder.Abandon()
	s.dispatcher.Handle(gatt.ReadRequested{
		Request:   gatt.Request{Central: "aa:bb:cc:dd:ee:ff", CharUUID: testCharUUID},
		Responder: responder,
	})

	resp := s.read()
	s.Equal(gatt.StatusSuccess, resp.Status)
}

func (s *DispatcherTestSuite) TestPowerAndSubscriptionEventsAreLogOnly() {
	s.dispatcher.Handle(gatt.PowerStateChanged{IsPowered: true})
	s.dispatcher.Handle(gatt.SubscriptionChanged{
		Request:    gatt.Request{Central: "aa:bb:cc:dd:ee:ff", CharUUID: testCharUUID},
		Subscribed: true,
	})
	s.Equal(Off, s.cell.Load())
	s.Empty(s.notifier.all())
}

func (s *DispatcherTestSuite) TestUnknownEventKindIsDiscarded() {
	s.dispatcher.Handle(unknownEvent{})
	s.Equal(Off, s.cell.Load())
	s.Empty(s.notifier.all())
}

type unknownEvent struct{}

func (unknownEvent) PeripheralEvent() {}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func TestDispatcherRunStopsWhenChannelCloses(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	d := NewDispatcher(NewCell(), &recordingNotifier{}, testCharUUID, logger)

	events := make(chan gatt.Event)
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(context.Background(), events)
	}()

	events <- gatt.PowerStateChanged{IsPowered: true}
	close(events)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after channel close")
	}
}

func TestDispatcherRunStopsOnContextCancel(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	d := NewDispatcher(NewCell(), &recordingNotifier{}, testCharUUID, logger)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan gatt.Event)
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx, events)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestDispatcherProcessesEventsInArrivalOrder(t *testing.T) {
	// GOAL: Verify strict sequential processing in arrival order
	//
	// TEST SCENARIO: Queue alternating writes → run dispatcher → state
	// equals the last queued token

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cell := NewCell()
	d := NewDispatcher(cell, &recordingNotifier{}, testCharUUID, logger)

	tokens := []string{"on", "off", "on", "off", "off", "on"}
	events := make(chan gatt.Event, len(tokens))
	responders := make([]*gatt.Responder, 0, len(tokens))
	for _, tok := range tokens {
		r := gatt.NewResponder()
		responders = append(responders, r)
		events <- gatt.WriteRequested{
			Request:   gatt.Request{Central: "aa:bb:cc:dd:ee:ff", CharUUID: testCharUUID},
			Value:     []byte(tok),
			Responder: r,
		}
	}
	close(events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(context.Background(), events)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not drain queued events")
	}

	assert.Equal(t, On, cell.Load())
	for i, r := range responders {
		select {
		case resp := <-r.Response():
			require.Equal(t, gatt.StatusSuccess, resp.Status, "response %d", i)
		default:
			t.Fatalf("write %d did not receive a response", i)
		}
	}
}
