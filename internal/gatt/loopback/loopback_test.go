package loopback

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/blep/internal/gatt"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testService() *gatt.Service {
	return &gatt.Service{
		UUID:    "1234",
		Primary: true,
		Characteristics: []gatt.Characteristic{
			{
				UUID:        "2a3d",
				Properties:  gatt.PropertyRead | gatt.PropertyWrite | gatt.PropertyNotify,
				Permissions: gatt.PermissionRead | gatt.PermissionWrite,
				Descriptors: []gatt.Descriptor{{UUID: "2a13", Value: []byte{0x00, 0x01}}},
			},
			{UUID: "1209"},
		},
	}
}

// LoopbackTestSuite provides testify/suite for proper test isolation
type LoopbackTestSuite struct {
	suite.Suite
	events chan gatt.Event
	p      *Peripheral
}

func (s *LoopbackTestSuite) SetupTest() {
	s.events = make(chan gatt.Event, 64)
	s.p = NewPeripheral(s.events, quietLogger())
}

func (s *LoopbackTestSuite) TearDownTest() {
	_ = s.p.Close()
}

func (s *LoopbackTestSuite) TestPowerEventEmitted() {
	s.p.SetPowered(true)
	s.True(s.p.IsPowered())

	ev := <-s.events
	power, ok := ev.(gatt.PowerStateChanged)
	s.Require().True(ok)
	s.True(power.IsPowered)
}

func (s *LoopbackTestSuite) TestAddServiceOnce() {
	s.Require().NoError(s.p.AddService(testService()))
	err := s.p.AddService(testService())
	s.Error(err)
}

func (s *LoopbackTestSuite) TestAdvertisingRequiresService() {
	err := s.p.StartAdvertising("blep", []string{"1234"})
	s.Error(err)
	s.False(s.p.IsAdvertising())

	s.Require().NoError(s.p.AddService(testService()))
	s.Require().NoError(s.p.StartAdvertising("blep", []string{"1234"}))
	s.True(s.p.IsAdvertising())
	s.Equal("blep", s.p.AdvertisedName())
}

func (s *LoopbackTestSuite) TestSubscribeFanOut() {
	// GOAL: Verify notifications reach every subscriber of the
	// characteristic and nobody else

	s.Require().NoError(s.p.AddService(testService()))

	subA := s.p.Subscribe("central-a", "2a3d")
	subB := s.p.Subscribe("central-b", "2a3d")
	subAux := s.p.Subscribe("central-a", "1209")

	// Two subscribe events for 2a3d, one for 1209
	for i := 0; i < 3; i++ {
		ev := <-s.events
		change, ok := ev.(gatt.SubscriptionChanged)
		s.Require().True(ok)
		s.True(change.Subscribed)
	}

	s.Require().NoError(s.p.UpdateCharacteristic("2a3d", []byte("on")))

	s.Equal("on", string(<-subA.C()))
	s.Equal("on", string(<-subB.C()))
	select {
	case v := <-subAux.C():
		s.Failf("unexpected notification", "aux subscriber got %q", v)
	default:
	}
}

func (s *LoopbackTestSuite) TestCancelEmitsUnsubscribe() {
	s.Require().NoError(s.p.AddService(testService()))

	sub := s.p.Subscribe("central-a", "2a3d")
	<-s.events // subscribe event

	sub.Cancel()
	ev := <-s.events
	change, ok := ev.(gatt.SubscriptionChanged)
	s.Require().True(ok)
	s.False(change.Subscribed)

	// Queue is closed; no more values can arrive.
	_, open := <-sub.C()
	s.False(open)

	// Cancel is idempotent
	sub.Cancel()
}

func (s *LoopbackTestSuite) TestSlowSubscriberLosesOldestOnly() {
	s.Require().NoError(s.p.AddService(testService()))
	sub := s.p.Subscribe("central-a", "2a3d")
	<-s.events

	for i := 0; i < DefaultSubscriberQueueSize+10; i++ {
		s.Require().NoError(s.p.UpdateCharacteristic("2a3d", []byte{byte(i)}))
	}

	s.Equal(uint64(10), sub.Dropped())
	first := <-sub.C()
	s.Equal(byte(10), first[0])
}

func (s *LoopbackTestSuite) TestUpdateUnknownCharacteristic() {
	s.Require().NoError(s.p.AddService(testService()))
	err := s.p.UpdateCharacteristic("ffff", []byte("x"))
	s.Error(err)
}

func (s *LoopbackTestSuite) TestInjectReadAndWrite() {
	s.Require().NoError(s.p.AddService(testService()))

	r := s.p.InjectWrite("central-a", "2a3d", 0, []byte("on"))
	ev := <-s.events
	write, ok := ev.(gatt.WriteRequested)
	s.Require().True(ok)
	s.Equal("on", string(write.Value))
	s.Equal("central-a", write.Request.Central)
	s.Same(r, write.Responder)

	r = s.p.InjectRead("central-a", "2a3d", 4)
	ev = <-s.events
	read, ok := ev.(gatt.ReadRequested)
	s.Require().True(ok)
	s.Equal(4, read.Offset)
	s.Same(r, read.Responder)
}

func (s *LoopbackTestSuite) TestCloseIsIdempotentAndClosesEvents() {
	s.Require().NoError(s.p.Close())
	s.Require().NoError(s.p.Close())

	_, open := <-s.events
	s.False(open)
}

func TestLoopbackSuite(t *testing.T) {
	suite.Run(t, new(LoopbackTestSuite))
}

func TestInjectedWriteValueIsCopied(t *testing.T) {
	events := make(chan gatt.Event, 1)
	p := NewPeripheral(events, quietLogger())
	defer p.Close()

	payload := []byte("on")
	p.InjectWrite("central-a", "2a3d", 0, payload)
	payload[0] = 'X'

	ev := <-events
	write, ok := ev.(gatt.WriteRequested)
	require.True(t, ok)
	assert.Equal(t, "on", string(write.Value))
}
