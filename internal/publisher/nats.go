package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

// NATSPublisher emits day schedule state on <prefix>.day.<dayID>
type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("koku-travel-scheduler"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("[NATS] Disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("[NATS] Reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("[NATS] Closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return newPublisher(nc, prefix, logSubjects, m), nil
}

func newPublisher(nc *nats.Conn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	if prefix == "" {
		prefix = "itinerary"
	}
	return &NATSPublisher{nc: nc, prefix: subjectToken(prefix), logSubjects: logSubjects, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// DayMessage is the wire form of an emitted day state
type DayMessage struct {
	DayID     string            `json:"dayId"`
	Version   uint64            `json:"version"`
	Phase     string            `json:"phase"`
	Timestamp time.Time         `json:"timestamp"`
	Day       models.Day        `json:"day"`
	Conflicts []models.Conflict `json:"conflicts"`
	Pending   []string          `json:"pendingSegments"`
}

// Subject returns the subject a day's updates are published on
func (p *NATSPublisher) Subject(dayID string) string {
	return fmt.Sprintf("%s.day.%s", p.prefix, subjectToken(dayID))
}

func (p *NATSPublisher) PublishDay(state *models.DayState) error {
	subject := p.Subject(state.Day.ID)
	b, err := json.Marshal(DayMessage{
		DayID:     state.Day.ID,
		Version:   state.Version,
		Phase:     state.Phase,
		Timestamp: time.Now().UTC(),
		Day:       state.Day,
		Conflicts: state.Conflicts,
		Pending:   state.Pending,
	})
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("[NATS] Publish subject=%s version=%d", subject, state.Version)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
