package mesh

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingHandler is a FrameHandler backed by testify's mock
type recordingHandler struct {
	mock.Mock
}

func (h *recordingHandler) Handle(payload []byte, frame *Frame, err error) {
	h.Called(payload, frame, err)
}

func testMQTTConfig() *Config {
	return &Config{
		Mesh: "body.obj",
		Mode: ModeNormal,
		MQTT: MQTTConfig{
			FrameTopic:    "garment/frames",
			PublishPrefix: "garment",
		},
	}
}

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	client, err := InitMQTT(testMQTTConfig(), nil)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_NilConfig(t *testing.T) {
	_, err := InitMQTT(nil, nil)
	assert.Error(t, err)
}

func TestInitMQTT_NoFrameTopic(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	config := testMQTTConfig()
	config.MQTT.Broker = "tcp://localhost:1883"
	config.MQTT.FrameTopic = ""

	_, err := InitMQTT(config, nil)
	assert.ErrorContains(t, err, "frameTopic")
}

func TestEnvOr(t *testing.T) {
	t.Setenv("SMART_GARMENT_TEST_VAR", "")
	assert.Equal(t, "b", envOr("SMART_GARMENT_TEST_VAR", "", "b", "c"))
	assert.Equal(t, "", envOr("SMART_GARMENT_TEST_VAR"))

	t.Setenv("SMART_GARMENT_TEST_VAR", "env")
	assert.Equal(t, "env", envOr("SMART_GARMENT_TEST_VAR", "b"))
}

func TestMQTTClient_IsConnected(t *testing.T) {
	client := &MQTTClient{}
	assert.False(t, client.IsConnected(), "New client should not be connected")

	client.setConnected(true)
	assert.True(t, client.IsConnected(), "Client should be connected after setConnected(true)")

	client.setConnected(false)
	assert.False(t, client.IsConnected(), "Client should not be connected after setConnected(false)")
}

func TestMQTTClient_OnConnectSubscribes(t *testing.T) {
	mockClient := NewMockClient()
	config := testMQTTConfig()
	client := newMQTTClientWithMock(mockClient, config, nil)
	mockClient.SetOnConnect(client.onConnect)

	token := mockClient.Connect()
	require.NoError(t, token.Error())

	assert.True(t, client.IsConnected())
	assert.True(t, mockClient.Subscribed(config.MQTT.FrameTopic))
}

func TestMQTTClient_OnConnectSubscribeError(t *testing.T) {
	mockClient := NewMockClient()
	mockClient.SetSubscribeError(errors.New("denied"))
	config := testMQTTConfig()
	client := newMQTTClientWithMock(mockClient, config, nil)
	mockClient.SetOnConnect(client.onConnect)

	mockClient.Connect()
	assert.False(t, mockClient.Subscribed(config.MQTT.FrameTopic))
}

func TestMQTTClient_HandleFrameMessage(t *testing.T) {
	mockClient := NewMockClient()
	config := testMQTTConfig()
	handler := &recordingHandler{}
	client := newMQTTClientWithMock(mockClient, config, handler.Handle)
	mockClient.SetOnConnect(client.onConnect)
	mockClient.Connect()

	frame := &Frame{
		ID:     "mqtt-1",
		Cloths: encodedGrid(ClothsRows, ClothsCols),
		Pants:  encodedGrid(PantsRows, PantsCols),
	}

	handler.On("Handle", mock.Anything, mock.MatchedBy(func(f *Frame) bool {
		return f != nil && f.ID == "mqtt-1" && f.Cloths.At(3, 4) == 304
	}), nil).Twice()

	require.NoError(t, mockClient.SimulateFrame(config.MQTT.FrameTopic, frame, false))
	require.NoError(t, mockClient.SimulateFrame(config.MQTT.FrameTopic, frame, true))

	handler.AssertExpectations(t)
}

func TestMQTTClient_HandleFrameMessage_DecodeError(t *testing.T) {
	mockClient := NewMockClient()
	config := testMQTTConfig()
	handler := &recordingHandler{}
	client := newMQTTClientWithMock(mockClient, config, handler.Handle)
	mockClient.SetOnConnect(client.onConnect)
	mockClient.Connect()

	handler.On("Handle", []byte("garbage"), (*Frame)(nil), mock.MatchedBy(func(err error) bool {
		return err != nil
	})).Once()

	mockClient.SimulateMessage(config.MQTT.FrameTopic, []byte("garbage"))

	handler.AssertExpectations(t)
}

func TestMQTTClient_HandleFrameMessage_OrderPreserved(t *testing.T) {
	mockClient := NewMockClient()
	config := testMQTTConfig()

	var mu sync.Mutex
	var ids []string
	client := newMQTTClientWithMock(mockClient, config, func(_ []byte, f *Frame, err error) {
		require.NoError(t, err)
		mu.Lock()
		ids = append(ids, f.ID)
		mu.Unlock()
	})
	mockClient.SetOnConnect(client.onConnect)
	mockClient.Connect()

	for _, id := range []string{"1", "2", "3"} {
		f := &Frame{ID: id, Cloths: encodedGrid(1, 1), Pants: encodedGrid(1, 1)}
		require.NoError(t, mockClient.SimulateFrame(config.MQTT.FrameTopic, f, false))
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestMQTTClient_Disconnect(t *testing.T) {
	mockClient := NewMockClient()
	client := newMQTTClientWithMock(mockClient, testMQTTConfig(), nil)
	mockClient.SetOnConnect(client.onConnect)
	mockClient.Connect()
	require.True(t, client.IsConnected())

	client.Disconnect()
	assert.False(t, client.IsConnected())
	assert.False(t, mockClient.IsConnected())
	assert.Same(t, mockClient, client.GetClient())
}

func TestMQTTClient_ConnectionLost(t *testing.T) {
	client := newMQTTClientWithMock(NewMockClient(), testMQTTConfig(), nil)
	client.setConnected(true)

	client.onConnectionLost(nil, errors.New("broker went away"))
	assert.False(t, client.IsConnected())
}
