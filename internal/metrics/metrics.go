package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Ledger metrics
	CheckInsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_checkins_total",
			Help: "Total check-in events by outcome",
		},
		[]string{"outcome"},
	)

	CheckOutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_checkouts_total",
			Help: "Total check-out events by result",
		},
		[]string{"result"},
	)

	SessionHours = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attendance_session_hours",
			Help:    "Duration of closed sessions in hours",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 6, 8, 10, 12, 16, 24},
		},
	)

	// Reminder metrics
	RemindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_reminders_sent_total",
			Help: "Reminders delivered by shift and kind (user, admin)",
		},
		[]string{"shift", "kind"},
	)

	ReminderTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_reminder_ticks_total",
			Help: "Reminder engine ticks by result",
		},
		[]string{"result"},
	)

	OpenSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "attendance_open_sessions",
			Help: "Open sessions seen by the last reminder scan of an ending shift",
		},
	)

	// Delivery metrics
	NotificationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_notification_failures_total",
			Help: "Failed notification deliveries by kind",
		},
		[]string{"kind"},
	)

	// Storage metrics
	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_store_errors_total",
			Help: "Repository failures by operation",
		},
		[]string{"op"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		CheckInsTotal,
		CheckOutsTotal,
		SessionHours,
		RemindersSent,
		ReminderTicks,
		OpenSessions,
		NotificationFailures,
		StoreErrors,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			// Use systemd socket-activated listener
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
