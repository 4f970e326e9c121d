package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPublishPrefix is the topic prefix used when none is configured
const DefaultPublishPrefix = "smart-garment"

// FrameStats is the summary published alongside each frame's scalars
type FrameStats struct {
	FrameID    string  `json:"frameId"`
	Timestamp  int64   `json:"timestamp"`
	Mode       Mode    `json:"mode"`
	Vertices   int     `json:"vertices"`
	Covered    int     `json:"covered"`
	MaxScalar  float64 `json:"maxScalar"`
	MeanScalar float64 `json:"meanScalar"`
	RangeMin   float64 `json:"rangeMin"`
	RangeMax   float64 `json:"rangeMax"`
}

// StatsOf summarizes a frame result without its scalar payload
func StatsOf(res *FrameResult) FrameStats {
	return FrameStats{
		FrameID:    res.FrameID,
		Timestamp:  res.Timestamp.UnixMilli(),
		Mode:       res.Mode,
		Vertices:   len(res.Scalars),
		Covered:    res.Covered,
		MaxScalar:  res.MaxScalar,
		MeanScalar: res.MeanScalar,
		RangeMin:   res.RangeMin,
		RangeMax:   res.RangeMax,
	}
}

// Publisher publishes assembled frames to MQTT:
//   - <prefix>/scalars: full FrameResult, retained so late subscribers get the latest frame
//   - <prefix>/stats: FrameStats, not retained
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	mu            sync.RWMutex
	last          *FrameStats
}

// NewPublisher creates a new frame publisher. An empty prefix uses
// DefaultPublishPrefix. If client is nil, publishing is disabled.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
	}
}

// ScalarsTopic returns the retained scalars topic
func (p *Publisher) ScalarsTopic() string {
	return p.publishPrefix + "/scalars"
}

// StatsTopic returns the stats topic
func (p *Publisher) StatsTopic() string {
	return p.publishPrefix + "/stats"
}

// PublishResult publishes the frame's scalars and its stats
func (p *Publisher) PublishResult(res *FrameResult) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	scalars, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling frame result: %w", err)
	}
	if err := p.publish(p.ScalarsTopic(), true, scalars); err != nil {
		return err
	}

	stats := StatsOf(res)
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling frame stats: %w", err)
	}
	if err := p.publish(p.StatsTopic(), false, payload); err != nil {
		return err
	}

	p.mu.Lock()
	p.last = &stats
	p.mu.Unlock()

	log.Printf("[MQTT] published frame %s: %d/%d covered, max=%.0f",
		res.FrameID, res.Covered, len(res.Scalars), res.MaxScalar)
	return nil
}

func (p *Publisher) publish(topic string, retain bool, payload []byte) error {
	token := p.client.Publish(topic, p.qos, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// LastStats returns the stats of the last successfully published frame
func (p *Publisher) LastStats() (FrameStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return FrameStats{}, false
	}
	return *p.last, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}
