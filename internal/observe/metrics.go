package observe

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	onlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_online_users",
		Help: "Number of authenticated users in the presence registry",
	})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_active_sessions",
		Help: "Number of open connections, authenticated or not",
	})

	connectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_connections_total",
		Help: "Total accepted connections",
	})

	envelopesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_envelopes_total",
			Help: "Total envelopes received by type",
		},
		[]string{"type"},
	)

	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total routed messages and files by outcome",
		},
		[]string{"result"}, // delivered|offline|rejected
	)

	droppedFramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_dropped_frames_total",
		Help: "Total outbound frames dropped due to session backpressure",
	})

	authTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_auth_total",
			Help: "Total login attempts by outcome",
		},
		[]string{"result"}, // ok|fail|displaced
	)

	fileBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_file_bytes_total",
		Help: "Total file payload bytes received",
	})

	faultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_faults_total",
			Help: "Total session faults by kind",
		},
		[]string{"kind"}, // protocol|transport|transfer|panic
	)

	busEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_bus_events_total",
			Help: "Total events consumed from the chat event stream by type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		onlineUsers,
		activeSessions,
		connectionsTotal,
		envelopesTotal,
		messagesTotal,
		droppedFramesTotal,
		authTotal,
		fileBytesTotal,
		faultsTotal,
		busEventsTotal,
	)
}

func SetOnline(n int)          { onlineUsers.Set(float64(n)) }
func AddSession(delta float64) { activeSessions.Add(delta) }
func IncConnection()           { connectionsTotal.Inc() }
func IncEnvelope(kind string)  { envelopesTotal.WithLabelValues(kind).Inc() }
func IncMessage(result string) { messagesTotal.WithLabelValues(result).Inc() }
func IncDropped()              { droppedFramesTotal.Inc() }
func IncAuth(result string)    { authTotal.WithLabelValues(result).Inc() }
func AddFileBytes(n int)       { fileBytesTotal.Add(float64(n)) }
func IncFault(kind string)     { faultsTotal.WithLabelValues(kind).Inc() }
func IncBusEvent(kind string)  { busEventsTotal.WithLabelValues(kind).Inc() }
